package timeseries

import "math"

// difference applies (1 - B^lag)^times to y.
func difference(y []float64, times, lag int) []float64 {
	out := y
	for k := 0; k < times; k++ {
		if len(out) <= lag {
			return nil
		}
		next := make([]float64, len(out)-lag)
		for i := range next {
			next[i] = out[i+lag] - out[i]
		}
		out = next
	}
	return out
}

// toLagOperator builds the polynomial 1 + sign*(c_1 B^step + c_2 B^2step + ...).
func toLagOperator(coefs []float64, step, sign int) []float64 {
	if len(coefs) == 0 {
		return []float64{1}
	}
	p := make([]float64, step*len(coefs)+1)
	p[0] = 1
	for i, c := range coefs {
		p[step*(i+1)] = float64(sign) * c
	}
	return p
}

// fromLagOperator is the inverse of toLagOperator for step 1.
func fromLagOperator(p []float64, sign int) []float64 {
	out := make([]float64, len(p)-1)
	for i := range out {
		out[i] = float64(sign) * p[i+1]
	}
	return out
}

func multiply(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// integrate folds regular and seasonal differencing into an AR coefficient
// vector, giving the operator that forecasts the undifferenced series.
func integrate(ar []float64, d, sd, period int) []float64 {
	p := toLagOperator(ar, 1, -1)
	for k := 0; k < d; k++ {
		p = multiply(p, []float64{1, -1})
	}
	if period > 0 {
		seasonal := make([]float64, period+1)
		seasonal[0], seasonal[period] = 1, -1
		for k := 0; k < sd; k++ {
			p = multiply(p, seasonal)
		}
	}
	return fromLagOperator(p, -1)
}

// maxPartial keeps saturated partial autocorrelations off the unit circle.
const maxPartial = 0.9999

// pacfToCoefficients maps unconstrained values to the coefficients of a
// stationary AR polynomial: each value is squashed into (-1, 1) as a partial
// autocorrelation and expanded with the Durbin-Levinson recursion.
func pacfToCoefficients(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	phi := make([]float64, 0, len(x))
	for k, v := range x {
		r := math.Max(-maxPartial, math.Min(maxPartial, math.Tanh(v)))
		next := make([]float64, k+1)
		for j := 0; j < k; j++ {
			next[j] = phi[j] - r*phi[k-1-j]
		}
		next[k] = r
		phi = next
	}
	return phi
}

func negate(v []float64) []float64 {
	for i := range v {
		v[i] = -v[i]
	}
	return v
}
