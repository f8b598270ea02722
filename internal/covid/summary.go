package covid

import (
	"math"

	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/timeseries"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summarize describes a cleaned series. An empty series yields a zero summary.
func Summarize(s *models.Series) models.SeriesSummary {
	if s == nil || s.Len() == 0 {
		return models.SeriesSummary{}
	}
	values := s.Values()

	summary := models.SeriesSummary{
		Count:      len(values),
		Start:      s.Observations[0].Date,
		End:        s.LastDate(),
		Mean:       stat.Mean(values, nil),
		Min:        floats.Min(values),
		Max:        floats.Max(values),
		Missing:    s.Filled,
		TrendSlope: timeseries.TrendSlope(values),
	}
	if len(values) > 1 {
		summary.Std = math.Sqrt(stat.Variance(values, nil))
	}
	return summary
}
