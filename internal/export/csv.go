package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rewired-gh/forecastkit/internal/models"
)

var csvHeader = []string{"result_id", "region", "target", "tier", "model", "date", "predicted", "lower", "upper", "mape", "generated_at"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CSVSink writes one CSV row per forecast point.
type CSVSink struct {
	w      io.WriteCloser
	csv    *csv.Writer
	header bool
}

// NewCSVSink creates a CSV sink. Closing the sink closes w.
func NewCSVSink(w io.WriteCloser) *CSVSink {
	return &CSVSink{w: w, csv: csv.NewWriter(w)}
}

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, result *models.ForecastResult) error {
	if !s.header {
		if err := s.csv.Write(csvHeader); err != nil {
			return err
		}
		s.header = true
	}
	for _, r := range Rows(result) {
		record := []string{
			r.ResultID, r.Region, r.Target, r.Tier, r.Model, r.Date,
			formatFloat(r.Predicted), formatFloat(r.Lower), formatFloat(r.Upper), formatFloat(r.MAPE),
			strconv.FormatInt(r.GeneratedAt, 10),
		}
		if err := s.csv.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	s.csv.Flush()
	return s.csv.Error()
}

// Close flushes and closes the underlying writer.
func (s *CSVSink) Close() error {
	s.csv.Flush()
	return errors.Join(s.csv.Error(), s.w.Close())
}

// JSONLSink writes one JSON object per forecast point.
type JSONLSink struct {
	w   io.WriteCloser
	enc *json.Encoder
}

// NewJSONLSink creates a JSON lines sink. Closing the sink closes w.
func NewJSONLSink(w io.WriteCloser) *JSONLSink {
	return &JSONLSink{w: w, enc: json.NewEncoder(w)}
}

// Write implements Sink.
func (s *JSONLSink) Write(_ context.Context, result *models.ForecastResult) error {
	for _, row := range Rows(result) {
		if err := s.enc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
	}
	return nil
}

// Close closes the underlying writer.
func (s *JSONLSink) Close() error {
	return s.w.Close()
}

// WriteSeriesCSV writes the observed series followed by the forecast as one
// table: date, actual, predicted, lower, upper. Cells that do not apply are empty.
func WriteSeriesCSV(w io.Writer, series *models.Series, result *models.ForecastResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "actual", "predicted", "lower", "upper"}); err != nil {
		return err
	}
	if series != nil {
		for _, o := range series.Observations {
			if err := cw.Write([]string{o.Date.Format("2006-01-02"), formatFloat(o.Value), "", "", ""}); err != nil {
				return err
			}
		}
	}
	if result != nil {
		for _, p := range result.Points {
			record := []string{p.Date.Format("2006-01-02"), "", formatFloat(p.Predicted), formatFloat(p.Lower), formatFloat(p.Upper)}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
