package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetSink writes forecast rows to a Parquet file.
type ParquetSink struct {
	mu   sync.Mutex
	file source.ParquetFile
	pw   *writer.ParquetWriter
}

// NewLocalParquetSink creates a Parquet sink on the local filesystem.
func NewLocalParquetSink(path string) (*ParquetSink, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create local file writer: %w", err)
	}
	return NewParquetSink(fw)
}

// NewParquetSink creates a Parquet sink on an open file.
func NewParquetSink(file source.ParquetFile) (*ParquetSink, error) {
	pw, err := writer.NewParquetWriter(file, new(Row), 4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create ParquetWriter: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &ParquetSink{file: file, pw: pw}, nil
}

// Write implements Sink.
func (s *ParquetSink) Write(_ context.Context, result *models.ForecastResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range Rows(result) {
		if err := s.pw.Write(r); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	return nil
}

// Close writes the footer and closes the file.
func (s *ParquetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.pw.WriteStop(), s.file.Close())
}

// streamFile adapts a write-only stream to source.ParquetFile. The writer
// only appends, so seeking is tracked but never moves the stream.
type streamFile struct {
	w      io.WriteCloser
	offset int64
}

func newStreamFile(w io.WriteCloser) *streamFile {
	return &streamFile{w: w}
}

func (f *streamFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	default:
		return 0, errors.New("seek from end not supported on a stream")
	}
	return f.offset, nil
}

func (f *streamFile) Read([]byte) (int, error) {
	return 0, errors.New("read not supported on a stream")
}

func (f *streamFile) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.offset += int64(n)
	return n, err
}

func (f *streamFile) Close() error { return f.w.Close() }

func (f *streamFile) Open(string) (source.ParquetFile, error) {
	return nil, errors.New("open not supported on a stream")
}

func (f *streamFile) Create(string) (source.ParquetFile, error) {
	return f, nil
}
