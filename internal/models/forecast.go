package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Target is an OWID column that can be forecast.
type Target string

const (
	TargetNewCases          Target = "new_cases"
	TargetNewCasesSmoothed  Target = "new_cases_smoothed"
	TargetNewDeaths         Target = "new_deaths"
	TargetNewDeathsSmoothed Target = "new_deaths_smoothed"
)

// Targets lists the supported forecast targets in display order.
var Targets = []Target{TargetNewCases, TargetNewCasesSmoothed, TargetNewDeaths, TargetNewDeathsSmoothed}

// ParseTarget validates a target column name.
func ParseTarget(s string) (Target, error) {
	for _, t := range Targets {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "target", Reason: fmt.Sprintf("unsupported target %q", s)}
}

// Observation is one dated value in a series
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an ordered daily series for one region and target.
type Series struct {
	Region       string        `json:"region"`
	Target       Target        `json:"target"`
	Observations []Observation `json:"observations"`
	// Filled counts values that were missing or negative and forward-filled.
	Filled int `json:"filled"`
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Observations) }

// Values returns the observation values in order.
func (s *Series) Values() []float64 {
	values := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		values[i] = o.Value
	}
	return values
}

// LastDate returns the date of the final observation, or the zero time for an empty series.
func (s *Series) LastDate() time.Time {
	if len(s.Observations) == 0 {
		return time.Time{}
	}
	return s.Observations[len(s.Observations)-1].Date
}

// Validate checks that the series is ordered and finite
func (s *Series) Validate() error {
	if len(s.Observations) == 0 {
		return errors.New("series must not be empty")
	}
	for i, o := range s.Observations {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return fmt.Errorf("observation %d is not finite", i)
		}
		if i > 0 && !o.Date.After(s.Observations[i-1].Date) {
			return fmt.Errorf("observation %d is not after its predecessor", i)
		}
	}
	return nil
}

// ForecastRequest is the prepared input of the forecast runner.
type ForecastRequest struct {
	Region             string `json:"region"`
	Target             Target `json:"target"`
	HorizonDays        int    `json:"horizon_days"`
	SeasonalPeriodDays int    `json:"seasonal_period_days"`
	Seasonal           bool   `json:"seasonal"`
	LogTransform       bool   `json:"log_transform"`
}

// ForecastPoint is one predicted day with its interval
type ForecastPoint struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Metrics holds in-sample accuracy of the tier that produced a forecast.
// MAPE is expressed in percent.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// ForecastResult is what the fallback chain always returns for a non-empty series.
type ForecastResult struct {
	ID          string          `json:"id"`
	Region      string          `json:"region"`
	Target      Target          `json:"target"`
	Tier        string          `json:"tier"`
	Model       string          `json:"model,omitempty"`
	Points      []ForecastPoint `json:"points"`
	Metrics     Metrics         `json:"metrics"`
	Notes       []string        `json:"notes,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Validate checks the non-negativity and ordering guarantees of a result
func (r *ForecastResult) Validate() error {
	if r.Tier == "" {
		return errors.New("tier must not be empty")
	}
	if len(r.Points) == 0 {
		return errors.New("forecast must contain at least one point")
	}
	for i, p := range r.Points {
		if !finite(p.Predicted) || !finite(p.Lower) || !finite(p.Upper) {
			return fmt.Errorf("point %d is not finite", i)
		}
		if p.Predicted < 0 || p.Lower < 0 || p.Upper < 0 {
			return fmt.Errorf("point %d has a negative value", i)
		}
		if p.Lower > p.Predicted || p.Upper < p.Predicted {
			return fmt.Errorf("point %d lies outside its interval", i)
		}
		if i > 0 && !p.Date.After(r.Points[i-1].Date) {
			return fmt.Errorf("point %d is not after its predecessor", i)
		}
	}
	if r.Metrics.MAE < 0 || r.Metrics.RMSE < 0 || r.Metrics.MAPE < 0 {
		return errors.New("metrics must not be negative")
	}
	if !finite(r.Metrics.MAE) || !finite(r.Metrics.RMSE) || !finite(r.Metrics.MAPE) {
		return errors.New("metrics must be finite")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SeriesSummary describes a loaded series for the analysis panel.
type SeriesSummary struct {
	Count      int       `json:"count"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Mean       float64   `json:"mean"`
	Std        float64   `json:"std"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Missing    int       `json:"missing"`
	TrendSlope float64   `json:"trend_slope"`
}

// RegionDay is one raw dataset row for a region. Missing values are NaN.
type RegionDay struct {
	Date              time.Time `json:"date"`
	NewCases          float64   `json:"new_cases"`
	NewCasesSmoothed  float64   `json:"new_cases_smoothed"`
	NewDeaths         float64   `json:"new_deaths"`
	NewDeathsSmoothed float64   `json:"new_deaths_smoothed"`
}

// Value returns the column for target, or NaN for an unknown target.
func (d RegionDay) Value(t Target) float64 {
	switch t {
	case TargetNewCases:
		return d.NewCases
	case TargetNewCasesSmoothed:
		return d.NewCasesSmoothed
	case TargetNewDeaths:
		return d.NewDeaths
	case TargetNewDeathsSmoothed:
		return d.NewDeathsSmoothed
	default:
		return math.NaN()
	}
}
