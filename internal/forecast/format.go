package forecast

import (
	"math"
	"strconv"
)

// FormatMetric renders an accuracy value with precision that shrinks as the
// magnitude grows: 4 decimals below 1, 2 below 100, none above.
func FormatMetric(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "n/a"
	case math.Abs(v) < 1:
		return strconv.FormatFloat(v, 'f', 4, 64)
	case math.Abs(v) < 100:
		return strconv.FormatFloat(v, 'f', 2, 64)
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}

// TierLabel is the human-readable name of a tier.
func TierLabel(tier string) string {
	switch tier {
	case TierSeasonal:
		return "Seasonal ARIMA"
	case TierAuto:
		return "Auto ARIMA"
	case TierFourier:
		return "Fourier regression"
	case TierNaive:
		return "Moving average"
	default:
		return tier
	}
}
