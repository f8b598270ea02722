package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	forecaster "github.com/aouyang1/go-forecaster"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/timeseries"
)

// Tier names reported on results and accepted in forecast.strategies.
const (
	TierSeasonal = "seasonal"
	TierAuto     = "auto"
	TierFourier  = "fourier"
	TierNaive    = "naive"
)

// Output is what a strategy produces for one series: values on the original
// scale, one per horizon day.
type Output struct {
	Predicted []float64
	Lower     []float64
	Upper     []float64
	Metrics   models.Metrics
	// Model describes the fitted model, e.g. "ARIMA(1,1,1)(1,0,1)[7]".
	Model string
}

// Strategy is one tier of the fallback chain.
type Strategy interface {
	Name() string
	Forecast(ctx context.Context, series *models.Series, req models.ForecastRequest) (*Output, error)
}

// transform applies log1p when requested. Negative values cannot be logged
// and are treated as zero, matching the loader's cleaning rule.
func transform(y []float64, logTransform bool) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		if logTransform {
			out[i] = math.Log1p(math.Max(v, 0))
		} else {
			out[i] = v
		}
	}
	return out
}

func untransform(v float64, logTransform bool) float64 {
	if logTransform {
		return math.Expm1(v)
	}
	return v
}

// finish back-transforms, clamps to non-negative and checks every value is finite.
func finish(fc timeseries.Forecast, logTransform bool) (*Output, error) {
	out := &Output{
		Predicted: make([]float64, len(fc.Mean)),
		Lower:     make([]float64, len(fc.Mean)),
		Upper:     make([]float64, len(fc.Mean)),
	}
	for i := range fc.Mean {
		p := math.Max(untransform(fc.Mean[i], logTransform), 0)
		lo := math.Max(untransform(fc.Lower[i], logTransform), 0)
		hi := math.Max(untransform(fc.Upper[i], logTransform), 0)
		for _, v := range []float64{p, lo, hi} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("forecast day %d is not finite", i+1)
			}
		}
		out.Predicted[i] = p
		out.Lower[i] = math.Min(lo, p)
		out.Upper[i] = math.Max(hi, p)
	}
	return out, nil
}

func metricsFor(actual []float64, fitted []float64, logTransform bool) models.Metrics {
	back := make([]float64, len(fitted))
	for i, v := range fitted {
		back[i] = untransform(v, logTransform)
	}
	acc := timeseries.Score(actual, back)
	return models.Metrics{MAE: acc.MAE, RMSE: acc.RMSE, MAPE: acc.MAPE}
}

func arimaOutput(m *timeseries.Model, series *models.Series, req models.ForecastRequest, z float64) (*Output, error) {
	out, err := finish(m.Forecast(req.HorizonDays, z), req.LogTransform)
	if err != nil {
		return nil, err
	}
	out.Metrics = metricsFor(series.Values(), m.Fitted(), req.LogTransform)
	out.Model = m.Order.String()
	return out, nil
}

// SeasonalStrategy fits the fixed ARIMA(1,1,1)(1,0,1)[period] model, or
// ARIMA(1,1,1) when seasonality is off.
type SeasonalStrategy struct {
	Options timeseries.Options
	Z       float64
}

func (s *SeasonalStrategy) Name() string { return TierSeasonal }

func (s *SeasonalStrategy) Forecast(ctx context.Context, series *models.Series, req models.ForecastRequest) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order := timeseries.Order{P: 1, D: 1, Q: 1}
	if req.Seasonal {
		order.SP, order.SQ, order.Period = 1, 1, req.SeasonalPeriodDays
	}
	m, err := timeseries.Fit(transform(series.Values(), req.LogTransform), order, s.Options)
	if err != nil {
		return nil, err
	}
	return arimaOutput(m, series, req, s.Z)
}

// AutoStrategy searches ARIMA orders by AIC.
type AutoStrategy struct {
	Search timeseries.SearchOptions
	Z      float64
}

func (s *AutoStrategy) Name() string { return TierAuto }

func (s *AutoStrategy) Forecast(ctx context.Context, series *models.Series, req models.ForecastRequest) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := s.Search
	opts.Seasonal = req.Seasonal
	opts.Period = req.SeasonalPeriodDays
	m, err := timeseries.AutoSelect(transform(series.Values(), req.LogTransform), opts)
	if err != nil {
		return nil, err
	}
	return arimaOutput(m, series, req, s.Z)
}

// FourierStrategy fits a linear trend plus Fourier seasonal terms with
// go-forecaster. It is not part of the default chain.
type FourierStrategy struct{}

func (s *FourierStrategy) Name() string { return TierFourier }

func (s *FourierStrategy) Forecast(ctx context.Context, series *models.Series, req models.ForecastRequest) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if series.Len() < 2*req.SeasonalPeriodDays {
		return nil, fmt.Errorf("need at least %d observations, have %d", 2*req.SeasonalPeriodDays, series.Len())
	}

	t := make([]time.Time, series.Len())
	for i, o := range series.Observations {
		t[i] = o.Date
	}
	y := transform(series.Values(), req.LogTransform)

	f, err := forecaster.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create forecaster: %w", err)
	}
	if err := f.Fit(t, y); err != nil {
		return nil, fmt.Errorf("failed to fit: %w", err)
	}

	future := make([]time.Time, req.HorizonDays)
	for i := range future {
		future[i] = series.LastDate().AddDate(0, 0, i+1)
	}
	pred, err := f.Predict(future)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}
	if len(pred.Forecast) != req.HorizonDays || len(pred.Lower) != req.HorizonDays || len(pred.Upper) != req.HorizonDays {
		return nil, errors.New("forecaster returned a short prediction")
	}

	out, err := finish(timeseries.Forecast{Mean: pred.Forecast, Lower: pred.Lower, Upper: pred.Upper}, req.LogTransform)
	if err != nil {
		return nil, err
	}
	inSample, err := f.Predict(t)
	if err == nil {
		out.Metrics = metricsFor(series.Values(), inSample.Forecast, req.LogTransform)
	}
	out.Model = "fourier"
	return out, nil
}

// NaiveStrategy projects a moving average with its recent trend. It works on
// the raw series and never fails on non-empty input.
type NaiveStrategy struct{}

func (s *NaiveStrategy) Name() string { return TierNaive }

func (s *NaiveStrategy) Forecast(_ context.Context, series *models.Series, req models.ForecastRequest) (*Output, error) {
	y := series.Values()
	if len(y) == 0 {
		return nil, errors.New("empty series")
	}
	res := timeseries.Naive(y, req.HorizonDays)
	acc := timeseries.Score(y, res.Smoothed)
	return &Output{
		Predicted: res.Mean,
		Lower:     res.Lower,
		Upper:     res.Upper,
		Metrics:   models.Metrics{MAE: acc.MAE, RMSE: acc.RMSE, MAPE: acc.MAPE},
		Model:     fmt.Sprintf("moving average (window %d)", res.Window),
	}, nil
}
