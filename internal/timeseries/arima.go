// Package timeseries fits seasonal ARIMA models by conditional sum of squares
// and produces point forecasts with normal-approximation intervals.
//
// Coefficients are estimated in an unconstrained space and mapped through
// partial autocorrelations, so every fitted AR part is stationary and every
// MA part is invertible.
package timeseries

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrInsufficientData is returned when the series is too short for the requested order.
	ErrInsufficientData = errors.New("not enough observations for model order")
	// ErrNotConverged is returned when the optimizer stops before converging.
	ErrNotConverged = errors.New("optimizer did not converge")
	// ErrNonFinite is returned when the series or the fitted objective is not finite.
	ErrNonFinite = errors.New("non-finite value")
)

// Order is an ARIMA(p,d,q) order with an optional seasonal (P,D,Q)[Period] part.
type Order struct {
	P, D, Q    int
	SP, SD, SQ int
	Period     int
}

// Seasonal reports whether the order has a seasonal component.
func (o Order) Seasonal() bool {
	return o.Period > 1 && o.SP+o.SD+o.SQ > 0
}

func (o Order) String() string {
	if o.Seasonal() {
		return fmt.Sprintf("ARIMA(%d,%d,%d)(%d,%d,%d)[%d]", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.Period)
	}
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

func (o Order) validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 || o.SP < 0 || o.SD < 0 || o.SQ < 0 {
		return fmt.Errorf("negative order in %s", o)
	}
	if o.SP+o.SD+o.SQ > 0 && o.Period < 2 {
		return fmt.Errorf("seasonal order needs a period of at least 2, got %d", o.Period)
	}
	return nil
}

// season returns the effective period, or 0 when there is no seasonal part.
func (o Order) season() int {
	if o.Seasonal() {
		return o.Period
	}
	return 0
}

func (o Order) numParams() int {
	n := o.P + o.Q
	if o.Seasonal() {
		n += o.SP + o.SQ
	}
	return n
}

// Options controls fitting.
type Options struct {
	MaxIterations int
}

// DefaultOptions returns the fitting options used when none are configured.
func DefaultOptions() Options {
	return Options{MaxIterations: 2000}
}

// Model is a fitted ARIMA model.
type Model struct {
	Order  Order
	AR     []float64
	MA     []float64
	SAR    []float64
	SMA    []float64
	Mean   float64
	Sigma2 float64
	AIC    float64

	y        []float64
	resid    []float64 // aligned with y, zero where undefined
	start    int       // first index of y with a conditional residual
	arTotal  []float64 // AR operator including differencing
	maFull   []float64
	withMean bool
}

// Fit estimates an ARIMA model of the given order on y.
func Fit(y []float64, order Order, opts Options) (*Model, error) {
	if err := order.validate(); err != nil {
		return nil, err
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNonFinite
		}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}

	s := order.season()
	w := difference(y, order.D, 1)
	if s > 0 {
		w = difference(w, order.SD, s)
	}
	offset := len(y) - len(w)

	withMean := order.D == 0 && (s == 0 || order.SD == 0)
	mean := 0.0
	if withMean && len(w) > 0 {
		mean = floats.Sum(w) / float64(len(w))
		w = append([]float64(nil), w...)
		floats.AddConst(-mean, w)
	}

	arLags := order.P + order.SP*s
	k := order.numParams()
	if withMean {
		k++
	}
	nEff := len(w) - arLags
	if nEff < k+3 {
		return nil, fmt.Errorf("%w: %s needs more than %d points after differencing, have %d", ErrInsufficientData, order, k+3+arLags, len(w))
	}

	m := &Model{Order: order, Mean: mean, y: y, withMean: withMean}
	objective := func(x []float64) float64 {
		m.setParams(x)
		ar, ma := m.fullPolynomials()
		ss, _ := css(w, ar, ma, arLags)
		return ss
	}

	x := make([]float64, order.numParams())
	if len(x) > 0 {
		problem := optimize.Problem{Func: objective}
		settings := &optimize.Settings{
			MajorIterations: opts.MaxIterations,
			FuncEvaluations: opts.MaxIterations * (len(x) + 2),
			Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Relative: 1e-9, Iterations: 50},
		}
		result, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		if result == nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
		}
		if result.Status == optimize.IterationLimit || result.Status == optimize.FunctionEvaluationLimit {
			return nil, fmt.Errorf("%w: %s after %d iterations", ErrNotConverged, order, result.MajorIterations)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
		}
		x = result.X
	}

	m.setParams(x)
	ar, ma := m.fullPolynomials()
	ss, e := css(w, ar, ma, arLags)
	if math.IsNaN(ss) || math.IsInf(ss, 0) {
		return nil, fmt.Errorf("%w: sum of squares for %s", ErrNonFinite, order)
	}

	m.Sigma2 = math.Max(ss/float64(nEff), 1e-12)
	m.AIC = float64(nEff)*math.Log(m.Sigma2) + 2*float64(k+1)
	m.maFull = ma
	m.arTotal = integrate(ar, order.D, order.SD, s)
	m.start = offset + arLags
	m.resid = make([]float64, len(y))
	copy(m.resid[offset:], e)
	return m, nil
}

// setParams maps unconstrained optimizer values to stationary/invertible coefficients.
func (m *Model) setParams(x []float64) {
	o := m.Order
	i := 0
	take := func(n int) []float64 {
		v := x[i : i+n]
		i += n
		return v
	}
	m.AR = pacfToCoefficients(take(o.P))
	m.MA = negate(pacfToCoefficients(take(o.Q)))
	if o.Seasonal() {
		m.SAR = pacfToCoefficients(take(o.SP))
		m.SMA = negate(pacfToCoefficients(take(o.SQ)))
	} else {
		m.SAR, m.SMA = nil, nil
	}
}

// fullPolynomials expands the multiplicative seasonal model into plain AR
// coefficients (w_t = sum ar_i w_{t-i} + ...) and MA coefficients.
func (m *Model) fullPolynomials() ([]float64, []float64) {
	s := m.Order.season()
	ar := fromLagOperator(multiply(toLagOperator(m.AR, 1, -1), toLagOperator(m.SAR, s, -1)), -1)
	ma := fromLagOperator(multiply(toLagOperator(m.MA, 1, 1), toLagOperator(m.SMA, s, 1)), 1)
	return ar, ma
}

// css returns the conditional sum of squares and the residuals, with the first
// arLags residuals fixed at zero.
func css(w, ar, ma []float64, arLags int) (float64, []float64) {
	e := make([]float64, len(w))
	var ss float64
	for t := arLags; t < len(w); t++ {
		pred := 0.0
		for i, a := range ar {
			pred += a * w[t-1-i]
		}
		for j, b := range ma {
			if t-1-j < 0 {
				break
			}
			pred += b * e[t-1-j]
		}
		e[t] = w[t] - pred
		ss += e[t] * e[t]
	}
	return ss, e
}

// Fitted returns one-step in-sample predictions aligned with the input series.
// Entries before the first conditional residual are NaN.
func (m *Model) Fitted() []float64 {
	out := make([]float64, len(m.y))
	for t := range out {
		if t < m.start {
			out[t] = math.NaN()
			continue
		}
		out[t] = m.y[t] - m.resid[t]
	}
	return out
}

// Forecast holds h-step-ahead predictions and their interval bounds.
type Forecast struct {
	Mean  []float64
	Lower []float64
	Upper []float64
}

// Forecast predicts h steps past the end of the series with intervals of
// ±z standard errors.
func (m *Model) Forecast(h int, z float64) Forecast {
	n := len(m.y)
	ext := make([]float64, n+h)
	copy(ext, m.y)
	if m.withMean {
		floats.AddConst(-m.Mean, ext[:n])
	}
	res := make([]float64, n+h)
	copy(res, m.resid)

	for t := n; t < n+h; t++ {
		v := 0.0
		for i, a := range m.arTotal {
			if t-1-i < 0 {
				break
			}
			v += a * ext[t-1-i]
		}
		for j, b := range m.maFull {
			if t-1-j < 0 {
				break
			}
			v += b * res[t-1-j]
		}
		ext[t] = v
	}

	psi := psiWeights(m.arTotal, m.maFull, h)
	out := Forecast{Mean: make([]float64, h), Lower: make([]float64, h), Upper: make([]float64, h)}
	var cum float64
	for i := 0; i < h; i++ {
		cum += psi[i] * psi[i]
		se := math.Sqrt(m.Sigma2 * cum)
		mean := ext[n+i] + m.Mean
		out.Mean[i] = mean
		out.Lower[i] = mean - z*se
		out.Upper[i] = mean + z*se
	}
	return out
}

// psiWeights returns the first h coefficients of the MA(∞) representation.
func psiWeights(ar, ma []float64, h int) []float64 {
	psi := make([]float64, h)
	if h == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < h; j++ {
		v := 0.0
		if j-1 < len(ma) {
			v = ma[j-1]
		}
		for i := 1; i <= j && i <= len(ar); i++ {
			v += ar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
