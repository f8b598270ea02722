package timeseries

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// SearchOptions bounds the automatic order search.
type SearchOptions struct {
	MaxOrder int
	MaxDiff  int
	Seasonal bool
	Period   int
	Fit      Options
}

// DefaultSearchOptions mirrors the usual stepwise search limits: p, q up to 3,
// seasonal P, Q up to 1.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{MaxOrder: 3, MaxDiff: 2, Seasonal: true, Period: 7, Fit: DefaultOptions()}
}

// ChooseDiff picks the differencing order that minimises the variance of the
// differenced series, stopping at the first order that does not reduce it.
func ChooseDiff(y []float64, maxDiff int) int {
	d := 0
	cur := y
	best := variance(cur)
	for d < maxDiff {
		next := difference(cur, 1, 1)
		if len(next) < 3 {
			break
		}
		v := variance(next)
		if v >= best {
			break
		}
		best, cur = v, next
		d++
	}
	return d
}

func variance(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	return stat.Variance(y, nil)
}

// AutoSelect fits every order in the search grid and returns the model with
// the lowest AIC. Orders that fail to fit are skipped.
func AutoSelect(y []float64, opts SearchOptions) (*Model, error) {
	if len(y) == 0 {
		return nil, ErrInsufficientData
	}
	d := ChooseDiff(y, opts.MaxDiff)

	maxSeasonal := 0
	if opts.Seasonal && opts.Period > 1 {
		maxSeasonal = 1
	}

	var best *Model
	var lastErr error
	for p := 0; p <= opts.MaxOrder; p++ {
		for q := 0; q <= opts.MaxOrder; q++ {
			for sp := 0; sp <= maxSeasonal; sp++ {
				for sq := 0; sq <= maxSeasonal; sq++ {
					order := Order{P: p, D: d, Q: q, SP: sp, SQ: sq, Period: opts.Period}
					m, err := Fit(y, order, opts.Fit)
					if err != nil {
						lastErr = err
						continue
					}
					if best == nil || m.AIC < best.AIC {
						best = m
					}
				}
			}
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = errors.New("empty search grid")
		}
		return nil, fmt.Errorf("no order in the search grid could be fitted: %w", lastErr)
	}
	return best, nil
}
