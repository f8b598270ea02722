// Package forecast runs COVID-19 series through an ordered fallback chain of
// forecasting strategies.
//
// The default chain is:
//
//	seasonal  ARIMA(1,1,1)(1,0,1)[7], or ARIMA(1,1,1) with seasonality off
//	auto      ARIMA order search by AIC (p, q <= 3; P, Q <= 1)
//	naive     moving average plus mean-difference trend
//
// Each tier either returns an Output or an error. The chain stops at the first
// success; every failure before it becomes a note on the result. Naive cannot
// fail on a non-empty series, so a chain ending in naive always yields a
// result. An optional fourier tier backed by go-forecaster can be inserted
// through configuration.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/timeseries"
)

// Chain is an ordered list of strategies.
type Chain struct {
	strategies []Strategy
	now        func() time.Time
}

// NewChain creates a chain that tries strategies in order.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, now: time.Now}
}

// DefaultChain returns seasonal → auto → naive with default fitting options.
func DefaultChain() *Chain {
	search := timeseries.DefaultSearchOptions()
	return NewChain(
		&SeasonalStrategy{Options: timeseries.DefaultOptions(), Z: 1.96},
		&AutoStrategy{Search: search, Z: 1.96},
		&NaiveStrategy{},
	)
}

// ChainFromConfig builds the chain named by forecast.strategies.
func ChainFromConfig(cfg config.ForecastConfig) (*Chain, error) {
	fit := timeseries.Options{MaxIterations: cfg.MaxIterations}
	search := timeseries.DefaultSearchOptions()
	search.MaxOrder = cfg.MaxOrder
	search.Fit = fit

	var strategies []Strategy
	for _, name := range cfg.Strategies {
		switch name {
		case TierSeasonal:
			strategies = append(strategies, &SeasonalStrategy{Options: fit, Z: cfg.ConfidenceZ})
		case TierAuto:
			strategies = append(strategies, &AutoStrategy{Search: search, Z: cfg.ConfidenceZ})
		case TierFourier:
			strategies = append(strategies, &FourierStrategy{})
		case TierNaive:
			strategies = append(strategies, &NaiveStrategy{})
		default:
			return nil, fmt.Errorf("unknown forecast strategy %q", name)
		}
	}
	if len(strategies) == 0 {
		return nil, errors.New("no forecast strategies configured")
	}
	return NewChain(strategies...), nil
}

// Tiers returns the strategy names in order.
func (c *Chain) Tiers() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run forecasts req.HorizonDays days past the end of series. An empty series
// is a ValidationError; tier failures only surface as notes.
func (c *Chain) Run(ctx context.Context, series *models.Series, req models.ForecastRequest) (*models.ForecastResult, error) {
	if series == nil || series.Len() == 0 {
		return nil, &models.ValidationError{Field: "series", Reason: "no observations to forecast"}
	}
	if err := series.Validate(); err != nil {
		return nil, &models.ValidationError{Field: "series", Reason: err.Error()}
	}
	if req.HorizonDays < 1 {
		return nil, &models.ValidationError{Field: "horizon_days", Reason: "must be at least 1"}
	}

	var notes []string
	var lastErr error
	for _, s := range c.strategies {
		start := time.Now()
		out, err := s.Forecast(ctx, series, req)
		if err == nil {
			result := c.assemble(series, req, s.Name(), out, notes)
			if err = result.Validate(); err == nil {
				logger.Debug("Tier %s (%s) produced %d days for %s in %v", s.Name(), out.Model, len(out.Predicted), series.Region, time.Since(start))
				return result, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		fitErr := &models.ModelFittingError{Tier: s.Name(), Err: err}
		logger.Warn("Forecast tier failed for %s: %v", series.Region, fitErr)
		notes = append(notes, fitErr.Error())
		lastErr = fitErr
	}
	return nil, fmt.Errorf("all %d forecast tiers failed: %w", len(c.strategies), lastErr)
}

func (c *Chain) assemble(series *models.Series, req models.ForecastRequest, tier string, out *Output, notes []string) *models.ForecastResult {
	last := series.LastDate()
	points := make([]models.ForecastPoint, len(out.Predicted))
	for i := range points {
		points[i] = models.ForecastPoint{
			Date:      last.AddDate(0, 0, i+1),
			Predicted: out.Predicted[i],
			Lower:     out.Lower[i],
			Upper:     out.Upper[i],
		}
	}
	target := req.Target
	if target == "" {
		target = series.Target
	}
	return &models.ForecastResult{
		ID:          uuid.New().String(),
		Region:      series.Region,
		Target:      target,
		Tier:        tier,
		Model:       out.Model,
		Points:      points,
		Metrics:     out.Metrics,
		Notes:       append([]string(nil), notes...),
		GeneratedAt: c.now().UTC(),
	}
}
