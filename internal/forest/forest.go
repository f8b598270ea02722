// Package forest implements a bagged random forest of CART regression trees.
//
// The forest is trained once on a static table and then only queried, so it
// favours a compact, gob-friendly representation over incremental updates.
// Hyperparameters are plain configuration values; the defaults match the
// tuning of the shipped fare model (depth 15, two samples per leaf).
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// Params controls forest training.
type Params struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	// FeatureRatio is the fraction of features considered at each split.
	FeatureRatio float64
	Seed         int64
}

// DefaultParams returns the tuning used for the shipped fare model.
func DefaultParams() Params {
	return Params{
		Trees:          100,
		MaxDepth:       15,
		MinSamplesLeaf: 2,
		FeatureRatio:   0.6,
		Seed:           42,
	}
}

// Forest is an ensemble of regression trees whose prediction is the mean of its trees.
type Forest struct {
	Trees    []*Tree
	Features int
	Params   Params
}

// Fit trains a forest on rows x with targets y. onTree, if non-nil, is called
// after each tree is grown.
func Fit(x [][]float64, y []float64, params Params, onTree func()) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("row count %d does not match target count %d", len(x), len(y))
	}
	nFeatures := len(x[0])
	if nFeatures == 0 {
		return nil, errors.New("rows have no features")
	}
	for i, row := range x {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}
	if params.Trees < 1 || params.MaxDepth < 1 || params.MinSamplesLeaf < 1 {
		return nil, fmt.Errorf("invalid params: %+v", params)
	}

	mtry := int(math.Round(params.FeatureRatio * float64(nFeatures)))
	if mtry < 1 {
		mtry = 1
	}
	if mtry > nFeatures {
		mtry = nFeatures
	}

	f := &Forest{Features: nFeatures, Params: params}
	n := len(x)
	for t := 0; t < params.Trees; t++ {
		rng := rand.New(rand.NewSource(params.Seed + int64(t)))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		f.Trees = append(f.Trees, buildTree(x, y, sample, params, mtry, rng))
		if onTree != nil {
			onTree()
		}
	}
	return f, nil
}

// Predict returns the mean tree prediction for one feature vector.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.Features {
		return 0, fmt.Errorf("got %d features, expected %d", len(x), f.Features)
	}
	preds := make([]float64, len(f.Trees))
	for i, t := range f.Trees {
		preds[i] = t.Predict(x)
	}
	return stat.Mean(preds, nil), nil
}

// Score holds regression accuracy on a labelled set.
type Score struct {
	MAE  float64 `yaml:"mae" json:"mae"`
	RMSE float64 `yaml:"rmse" json:"rmse"`
	R2   float64 `yaml:"r2" json:"r2"`
}

// Evaluate scores the forest against labelled rows.
func (f *Forest) Evaluate(x [][]float64, y []float64) (Score, error) {
	if len(x) == 0 || len(x) != len(y) {
		return Score{}, errors.New("evaluation set is empty or mismatched")
	}
	preds := make([]float64, len(x))
	var absSum, sqSum float64
	for i, row := range x {
		p, err := f.Predict(row)
		if err != nil {
			return Score{}, err
		}
		preds[i] = p
		d := p - y[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(x))
	return Score{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		R2:   stat.RSquaredFrom(preds, y, nil),
	}, nil
}
