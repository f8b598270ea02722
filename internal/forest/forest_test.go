package forest

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepData builds rows whose target depends on a threshold in feature 0
// plus a linear term in feature 1; feature 2 is noise.
func stepData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		a := float64(rng.Intn(10))
		b := rng.Float64() * 10
		x[i] = []float64{a, b, rng.Float64()}
		y[i] = 1000 * b
		if a >= 5 {
			y[i] += 20000
		}
	}
	return x, y
}

func TestFitLearnsStepFunction(t *testing.T) {
	x, y := stepData(600, 1)
	params := DefaultParams()
	params.Trees = 20
	params.FeatureRatio = 1

	f, err := Fit(x, y, params, nil)
	require.NoError(t, err)
	require.Len(t, f.Trees, 20)

	low, err := f.Predict([]float64{1, 5, 0.5})
	require.NoError(t, err)
	high, err := f.Predict([]float64{8, 5, 0.5})
	require.NoError(t, err)

	assert.InDelta(t, 5000, low, 1500)
	assert.InDelta(t, 25000, high, 1500)

	testX, testY := stepData(200, 2)
	score, err := f.Evaluate(testX, testY)
	require.NoError(t, err)
	assert.Greater(t, score.R2, 0.9)
	assert.Less(t, score.MAE, 2000.0)
}

func TestFitCallsProgress(t *testing.T) {
	x, y := stepData(50, 3)
	params := DefaultParams()
	params.Trees = 5

	calls := 0
	_, err := Fit(x, y, params, func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestFitRejectsBadInput(t *testing.T) {
	_, err := Fit(nil, nil, DefaultParams(), nil)
	assert.Error(t, err)

	_, err = Fit([][]float64{{1, 2}, {3}}, []float64{1, 2}, DefaultParams(), nil)
	assert.Error(t, err)

	_, err = Fit([][]float64{{1}}, []float64{1, 2}, DefaultParams(), nil)
	assert.Error(t, err)

	bad := DefaultParams()
	bad.MaxDepth = 0
	_, err = Fit([][]float64{{1}}, []float64{1}, bad, nil)
	assert.Error(t, err)
}

func TestPredictFeatureCountMismatch(t *testing.T) {
	x, y := stepData(30, 4)
	params := DefaultParams()
	params.Trees = 2
	f, err := Fit(x, y, params, nil)
	require.NoError(t, err)

	_, err = f.Predict([]float64{1})
	assert.Error(t, err)
}

func TestMinSamplesLeafRespected(t *testing.T) {
	x, y := stepData(40, 5)
	params := DefaultParams()
	params.Trees = 1
	params.MinSamplesLeaf = 40

	f, err := Fit(x, y, params, nil)
	require.NoError(t, err)
	// A leaf floor equal to the sample size forbids any split.
	assert.Len(t, f.Trees[0].Nodes, 1)
}

func TestForestGobRoundTrip(t *testing.T) {
	x, y := stepData(100, 6)
	params := DefaultParams()
	params.Trees = 3
	f, err := Fit(x, y, params, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(f))

	var restored Forest
	require.NoError(t, gob.NewDecoder(&buf).Decode(&restored))

	want, _ := f.Predict(x[0])
	got, err := restored.Predict(x[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
