package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

var day0 = time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)

func sampleResult(region string) *models.ForecastResult {
	r := &models.ForecastResult{
		ID:          "id-" + region,
		Region:      region,
		Target:      models.TargetNewCases,
		Tier:        "auto",
		Model:       "ARIMA(2,1,1)",
		Metrics:     models.Metrics{MAE: 3, RMSE: 4, MAPE: 5.5},
		GeneratedAt: day0.Add(36 * time.Hour),
	}
	for i := 0; i < 7; i++ {
		v := float64(100 + i)
		r.Points = append(r.Points, models.ForecastPoint{Date: day0.AddDate(0, 0, i+1), Predicted: v, Lower: v - 10, Upper: v + 10})
	}
	return r
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestRows(t *testing.T) {
	rows := Rows(sampleResult("India"))
	require.Len(t, rows, 7)
	assert.Equal(t, "2021-05-02", rows[0].Date)
	assert.Equal(t, "India", rows[6].Region)
	assert.Equal(t, 106.0, rows[6].Predicted)
	assert.Equal(t, 5.5, rows[3].MAPE)
	assert.Equal(t, day0.Add(36*time.Hour).UnixMilli(), rows[0].GeneratedAt)
}

func TestCSVSink(t *testing.T) {
	buf := &bufferCloser{}
	sink := NewCSVSink(buf)
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, sampleResult("India")))
	require.NoError(t, sink.Write(ctx, sampleResult("France")))
	require.NoError(t, sink.Close())
	assert.True(t, buf.closed)

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 15, "header written once plus 14 rows")
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"id-India", "India", "new_cases", "auto", "ARIMA(2,1,1)", "2021-05-02", "100", "90", "110", "5.5"}, records[1][:10])
	assert.Equal(t, "France", records[14][1])
}

func TestJSONLSink(t *testing.T) {
	buf := &bufferCloser{}
	sink := NewJSONLSink(buf)
	require.NoError(t, sink.Write(context.Background(), sampleResult("India")))
	require.NoError(t, sink.Write(context.Background(), sampleResult("Germany")))
	require.NoError(t, sink.Close())

	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	var rows []Row
	for scanner.Scan() {
		var r Row
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		rows = append(rows, r)
	}
	require.Len(t, rows, 14, "one line per forecast point")
	assert.Equal(t, "India", rows[0].Region)
	assert.Equal(t, "2021-05-02", rows[0].Date)
	assert.Equal(t, 100.0, rows[0].Predicted)
	assert.Equal(t, "Germany", rows[13].Region)
	assert.Equal(t, 106.0, rows[13].Predicted)
}

func TestLocalParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecasts.parquet")
	sink, err := NewLocalParquetSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), sampleResult("India")))
	require.NoError(t, sink.Write(context.Background(), sampleResult("France")))
	require.NoError(t, sink.Close())

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	require.Equal(t, 14, n)
	rows := make([]Row, n)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, "India", rows[0].Region)
	assert.Equal(t, "France", rows[13].Region)
	assert.Equal(t, 106.0, rows[13].Predicted)
}

type fakeS3 struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket, f.key = *in.Bucket, *in.Key
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(in.Body); err != nil {
		return nil, err
	}
	f.body = buf.Bytes()
	return &s3.PutObjectOutput{}, nil
}

func TestS3ObjectUploadsOnClose(t *testing.T) {
	client := &fakeS3{}
	sink, err := formatSink("daily/forecasts.jsonl", NewS3Object(client, "bucket", "daily/forecasts.jsonl"))
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), sampleResult("India")))
	assert.Nil(t, client.body, "nothing is uploaded before Close")

	require.NoError(t, sink.Close())
	assert.Equal(t, "bucket", client.bucket)
	assert.Equal(t, "daily/forecasts.jsonl", client.key)
	assert.Contains(t, string(client.body), `"region":"India"`)
}

func TestS3ParquetStream(t *testing.T) {
	client := &fakeS3{}
	sink, err := formatSink("f.parquet", NewS3Object(client, "bucket", "f.parquet"))
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), sampleResult("India")))
	require.NoError(t, sink.Close())

	require.True(t, len(client.body) > 8)
	assert.Equal(t, "PAR1", string(client.body[:4]))
	assert.Equal(t, "PAR1", string(client.body[len(client.body)-4:]))
}

func TestS3UploadFailure(t *testing.T) {
	obj := NewS3Object(&fakeS3{err: errors.New("access denied")}, "bucket", "k.csv")
	_, _ = obj.Write([]byte("x"))
	err := obj.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://bucket/k.csv")
}

func TestKafkaSink(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var r models.ForecastResult
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		if r.Region != "India" || len(r.Points) != 7 {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	sink := NewKafkaSinkWithProducer(producer, "forecasts")
	require.NoError(t, sink.Write(context.Background(), sampleResult("India")))
	err := sink.Write(context.Background(), sampleResult("France"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecasts")
	require.NoError(t, sink.Close())
}

func TestKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := Open(context.Background(), "kafka://forecasts", config.ExportConfig{})
	assert.Error(t, err)
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, name := range []string{"a.csv", "nested/b.jsonl", "c.parquet"} {
		path := filepath.Join(dir, name)
		sink, err := Open(ctx, path, config.ExportConfig{})
		require.NoError(t, err, name)
		require.NoError(t, sink.Write(ctx, sampleResult("India")), name)
		require.NoError(t, sink.Close(), name)

		info, err := os.Stat(path)
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	_, err := Open(ctx, filepath.Join(dir, "d.xml"), config.ExportConfig{})
	assert.Error(t, err)
	_, err = Open(ctx, "s3://bucket-only", config.ExportConfig{})
	assert.Error(t, err)
}

func TestWriteSeriesCSV(t *testing.T) {
	series := &models.Series{Region: "India", Target: models.TargetNewCases}
	for i := 0; i < 3; i++ {
		series.Observations = append(series.Observations, models.Observation{Date: day0.AddDate(0, 0, i-2), Value: float64(i) + 0.5})
	}
	result := sampleResult("India")

	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, series, result))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 11)
	assert.Equal(t, []string{"date", "actual", "predicted", "lower", "upper"}, records[0])
	assert.Equal(t, []string{"2021-04-29", "0.5", "", "", ""}, records[1])
	assert.Equal(t, []string{"2021-05-02", "", "100", "90", "110"}, records[4])
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, "forecasts-20210501-120000.csv", DefaultName("csv", day0.Add(12*time.Hour)))
}
