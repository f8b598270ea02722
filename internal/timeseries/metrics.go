package timeseries

import "math"

// Accuracy holds in-sample error measures. MAPE is in percent.
type Accuracy struct {
	MAE  float64
	RMSE float64
	MAPE float64
}

// Score compares predictions with actual values, skipping pairs where either
// side is NaN. Zero actuals are left out of MAPE only. Overflowing errors
// saturate at math.MaxFloat64.
func Score(actual, predicted []float64) Accuracy {
	var absSum, sqSum, pctSum float64
	var n, pctN int
	for i := 0; i < len(actual) && i < len(predicted); i++ {
		a, p := actual[i], predicted[i]
		if math.IsNaN(a) || math.IsNaN(p) {
			continue
		}
		d := a - p
		absSum += math.Abs(d)
		sqSum += d * d
		n++
		if a != 0 {
			pctSum += math.Abs(d / a)
			pctN++
		}
	}
	if n == 0 {
		return Accuracy{}
	}
	acc := Accuracy{
		MAE:  clampFinite(absSum / float64(n)),
		RMSE: clampFinite(math.Sqrt(sqSum / float64(n))),
	}
	if pctN > 0 {
		acc.MAPE = clampFinite(pctSum / float64(pctN) * 100)
	}
	return acc
}
