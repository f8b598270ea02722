package timeseries

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Naive band multipliers applied around the point forecast.
const (
	NaiveLowerFactor = 0.8
	NaiveUpperFactor = 1.2
)

// NaiveWindow returns the moving-average window for a series of length n:
// a quarter of the series, capped at a week and never below one.
func NaiveWindow(n int) int {
	w := n / 4
	if w > 7 {
		w = 7
	}
	if w < 1 {
		w = 1
	}
	return w
}

// MovingAverage is a trailing mean over window points. The first points use
// whatever history is available.
func MovingAverage(y []float64, window int) []float64 {
	out := make([]float64, len(y))
	var sum float64
	for i, v := range y {
		sum += v
		if i >= window {
			sum -= y[i-window]
		}
		count := i + 1
		if count > window {
			count = window
		}
		out[i] = sum / float64(count)
	}
	return out
}

// NaiveResult is a moving-average forecast with a linear trend.
type NaiveResult struct {
	Forecast
	// Smoothed is the in-sample moving average, used for accuracy metrics.
	Smoothed []float64
	Window   int
	Trend    float64
}

// Naive projects the last moving-average value forward by the mean step of
// the trailing window. It never fails on a non-empty series; an empty series
// yields an empty result.
func Naive(y []float64, h int) NaiveResult {
	if len(y) == 0 {
		return NaiveResult{}
	}
	window := NaiveWindow(len(y))
	ma := MovingAverage(y, window)
	tail := ma[len(ma)-window:]

	trend := 0.0
	if len(tail) > 1 {
		diffs := make([]float64, len(tail)-1)
		for i := range diffs {
			diffs[i] = tail[i+1] - tail[i]
		}
		trend = stat.Mean(diffs, nil)
	}

	if math.IsNaN(trend) || math.IsInf(trend, 0) {
		trend = 0
	}
	last := clampFinite(tail[len(tail)-1])
	res := NaiveResult{
		Forecast: Forecast{Mean: make([]float64, h), Lower: make([]float64, h), Upper: make([]float64, h)},
		Smoothed: ma,
		Window:   window,
		Trend:    trend,
	}
	for i := 0; i < h; i++ {
		v := clampFinite(math.Max(last+trend*float64(i+1), 0))
		res.Mean[i] = v
		res.Lower[i] = v * NaiveLowerFactor
		res.Upper[i] = clampFinite(v * NaiveUpperFactor)
	}
	return res
}

// clampFinite maps ±Inf to ±MaxFloat64 and NaN to zero.
func clampFinite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

// TrendSlope is the least-squares slope of y against its index.
func TrendSlope(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	return beta
}
