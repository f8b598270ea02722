// Package export writes forecast results to files, object storage and Kafka.
//
// A destination is named by a URI:
//
//	-                         CSV on stdout
//	out/forecasts.csv         local CSV, JSON lines (.jsonl) or Parquet (.parquet)
//	s3://bucket/key.parquet   the same formats, uploaded when the sink is closed
//	kafka://topic             one JSON message per result, keyed by region
//
// Every format except Kafka is row-oriented: one row per forecast point.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// Sink receives forecast results.
type Sink interface {
	Write(ctx context.Context, result *models.ForecastResult) error
	Close() error
}

// Row is one forecast point with its result context.
type Row struct {
	ResultID    string  `json:"result_id" parquet:"name=result_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Region      string  `json:"region" parquet:"name=region, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Target      string  `json:"target" parquet:"name=target, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Tier        string  `json:"tier" parquet:"name=tier, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Model       string  `json:"model" parquet:"name=model, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date        string  `json:"date" parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Predicted   float64 `json:"predicted" parquet:"name=predicted, type=DOUBLE"`
	Lower       float64 `json:"lower" parquet:"name=lower, type=DOUBLE"`
	Upper       float64 `json:"upper" parquet:"name=upper, type=DOUBLE"`
	MAPE        float64 `json:"mape" parquet:"name=mape, type=DOUBLE"`
	GeneratedAt int64   `json:"generated_at" parquet:"name=generated_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Rows flattens a result into one row per point.
func Rows(r *models.ForecastResult) []Row {
	rows := make([]Row, len(r.Points))
	for i, p := range r.Points {
		rows[i] = Row{
			ResultID:    r.ID,
			Region:      r.Region,
			Target:      string(r.Target),
			Tier:        r.Tier,
			Model:       r.Model,
			Date:        p.Date.Format("2006-01-02"),
			Predicted:   p.Predicted,
			Lower:       p.Lower,
			Upper:       p.Upper,
			MAPE:        r.Metrics.MAPE,
			GeneratedAt: r.GeneratedAt.UnixMilli(),
		}
	}
	return rows
}

// Open creates the sink named by dest.
func Open(ctx context.Context, dest string, cfg config.ExportConfig) (Sink, error) {
	switch {
	case dest == "-":
		return NewCSVSink(nopCloser{os.Stdout}), nil

	case strings.HasPrefix(dest, "kafka://"):
		topic := strings.TrimPrefix(dest, "kafka://")
		if topic == "" {
			topic = cfg.KafkaTopic
		}
		return NewKafkaSink(cfg.KafkaBrokers, topic)

	case strings.HasPrefix(dest, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(dest, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid S3 destination %q, want s3://bucket/key", dest)
		}
		client, err := NewS3Client(ctx, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		return formatSink(key, NewS3Object(client, bucket, key))

	default:
		if dir := filepath.Dir(dest); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create export directory: %w", err)
			}
		}
		if strings.EqualFold(filepath.Ext(dest), ".parquet") {
			return NewLocalParquetSink(dest)
		}
		f, err := os.Create(dest)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dest, err)
		}
		return formatSink(dest, f)
	}
}

// formatSink wraps w in the sink for name's extension.
func formatSink(name string, w io.WriteCloser) (Sink, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return NewCSVSink(w), nil
	case ".jsonl", ".ndjson":
		return NewJSONLSink(w), nil
	case ".parquet":
		return NewParquetSink(newStreamFile(w))
	default:
		w.Close()
		return nil, fmt.Errorf("unsupported export format %q", filepath.Ext(name))
	}
}

// DefaultName is a timestamped file name for exports without an explicit destination.
func DefaultName(ext string, now time.Time) string {
	return fmt.Sprintf("forecasts-%s.%s", now.UTC().Format("20060102-150405"), ext)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
