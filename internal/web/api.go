package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/rewired-gh/forecastkit/internal/covid"
	"github.com/rewired-gh/forecastkit/internal/export"
	"github.com/rewired-gh/forecastkit/internal/flight"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
)

const maxJSONBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func parseRange(start, end string) (covid.DateRange, error) {
	var r covid.DateRange
	var err error
	if r.Start, err = parseDay("start", start); err != nil {
		return r, err
	}
	if r.End, err = parseDay("end", end); err != nil {
		return r, err
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, &models.ValidationError{Field: "end", Reason: "must not be before start"}
	}
	return r, nil
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// queryFromValues reads a forecast query from URL or form values. Absent
// fields keep the defaults in q; checkboxes are only read when the form was
// submitted, since an unchecked box sends nothing.
func queryFromValues(q app.ForecastQuery, v url.Values) (app.ForecastQuery, error) {
	if region := strings.TrimSpace(v.Get("region")); region != "" {
		q.Region = region
	}
	if target := v.Get("target"); target != "" {
		t, err := models.ParseTarget(target)
		if err != nil {
			return q, err
		}
		q.Target = t
	}
	if horizon := v.Get("horizon"); horizon != "" {
		h, err := strconv.Atoi(horizon)
		if err != nil {
			return q, &models.ValidationError{Field: "horizon", Reason: "must be a whole number of days"}
		}
		q.HorizonDays = h
	}
	if v.Has("submitted") {
		q.Seasonal = parseFlag(v.Get("seasonal"))
		q.LogTransform = parseFlag(v.Get("log"))
	} else {
		if v.Has("seasonal") {
			q.Seasonal = parseFlag(v.Get("seasonal"))
		}
		if v.Has("log") {
			q.LogTransform = parseFlag(v.Get("log"))
		}
	}
	r, err := parseRange(v.Get("start"), v.Get("end"))
	if err != nil {
		return q, err
	}
	q.Range = r
	return q, nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var form flight.Form
	if err := decodeJSON(w, r, &form); err != nil {
		respondError(w, r, err)
		return
	}
	estimate, err := s.app.Fares.PredictForm(form)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, estimate)
}

type forecastBody struct {
	Region       string `json:"region"`
	Target       string `json:"target"`
	HorizonDays  int    `json:"horizon_days"`
	Seasonal     *bool  `json:"seasonal"`
	LogTransform bool   `json:"log_transform"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

type forecastResponse struct {
	Summary models.SeriesSummary   `json:"summary"`
	Result  *models.ForecastResult `json:"result"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var body forecastBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	q := s.app.DefaultQuery()
	if body.Region != "" {
		q.Region = body.Region
	}
	if body.Target != "" {
		t, err := models.ParseTarget(body.Target)
		if err != nil {
			respondError(w, r, err)
			return
		}
		q.Target = t
	}
	if body.HorizonDays != 0 {
		q.HorizonDays = body.HorizonDays
	}
	if body.Seasonal != nil {
		q.Seasonal = *body.Seasonal
	}
	q.LogTransform = body.LogTransform
	rng, err := parseRange(body.Start, body.End)
	if err != nil {
		respondError(w, r, err)
		return
	}
	q.Range = rng

	series, result, err := s.app.Forecast(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, forecastResponse{Summary: covid.Summarize(series), Result: result})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"regions": s.app.Loader.Regions(r.Context())})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromValues(s.app.DefaultQuery(), r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	series, err := s.app.Loader.Load(r.Context(), q.Region, q.Target, q.Range)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"series":  series,
		"summary": covid.Summarize(series),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromValues(s.app.DefaultQuery(), r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	series, result, err := s.app.Forecast(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}

	name := fmt.Sprintf("%s_%s_forecast.csv", strings.ReplaceAll(strings.ToLower(series.Region), " ", "_"), series.Target)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	// Headers are already sent; a failed write can only be logged.
	if err := export.WriteSeriesCSV(w, series, result); err != nil {
		logger.Warn("Failed to write %s: %v", name, err)
	}
}
