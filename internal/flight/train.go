package flight

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/forecastkit/internal/forest"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
	"gopkg.in/yaml.v3"
)

// TrainOptions controls a training run.
type TrainOptions struct {
	Params forest.Params
	// HoldoutRatio is the fraction of rows kept aside for scoring; 0 scores in-sample.
	HoldoutRatio float64
	// OnTree is called after each tree is grown.
	OnTree func()
}

// Report summarises a training run.
type Report struct {
	TrainedAt    time.Time      `yaml:"trained_at"`
	Rows         int            `yaml:"rows"`
	TrainRows    int            `yaml:"train_rows"`
	HoldoutRows  int            `yaml:"holdout_rows"`
	Trees        int            `yaml:"trees"`
	MaxDepth     int            `yaml:"max_depth"`
	Features     []string       `yaml:"features"`
	Vocabularies map[string]int `yaml:"vocabulary_sizes"`
	Holdout      forest.Score   `yaml:"holdout"`
	Duration     string         `yaml:"duration"`
}

// Train fits a forest on labelled examples and returns the model and its report.
func Train(examples []Example, opts TrainOptions) (*Model, *Report, error) {
	if len(examples) == 0 {
		return nil, nil, errors.New("no training examples")
	}
	if opts.HoldoutRatio < 0 || opts.HoldoutRatio >= 1 {
		return nil, nil, fmt.Errorf("holdout ratio must be in [0,1), got %v", opts.HoldoutRatio)
	}
	start := time.Now()

	order := rand.New(rand.NewSource(opts.Params.Seed)).Perm(len(examples))
	holdoutN := int(float64(len(examples)) * opts.HoldoutRatio)
	if len(examples)-holdoutN < 1 {
		holdoutN = 0
	}
	trainIdx, holdoutIdx := order[holdoutN:], order[:holdoutN]

	records := make([]*models.FlightRecord, 0, len(trainIdx))
	for _, i := range trainIdx {
		records = append(records, examples[i].Record)
	}
	enc := NewEncoder(records)

	x, y := matrix(examples, trainIdx, enc)
	f, err := forest.Fit(x, y, opts.Params, opts.OnTree)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	scoreIdx := holdoutIdx
	if len(scoreIdx) == 0 {
		scoreIdx = trainIdx
	}
	hx, hy := matrix(examples, scoreIdx, enc)
	score, err := f.Evaluate(hx, hy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to score forest: %w", err)
	}

	now := time.Now().UTC()
	model := &Model{
		Version:   ArtifactVersion,
		Forest:    f,
		Encoder:   enc,
		TrainedAt: now,
		Score:     score,
		Rows:      len(trainIdx),
	}
	report := &Report{
		TrainedAt:   now,
		Rows:        len(examples),
		TrainRows:   len(trainIdx),
		HoldoutRows: len(holdoutIdx),
		Trees:       opts.Params.Trees,
		MaxDepth:    opts.Params.MaxDepth,
		Features:    FeatureNames,
		Vocabularies: map[string]int{
			"airline":         enc.Airline.Len(),
			"source":          enc.Source.Len(),
			"destination":     enc.Destination.Len(),
			"additional_info": enc.AdditionalInfo.Len(),
		},
		Holdout:  score,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	logger.Info("Trained %d trees on %d rows (holdout MAE %.0f, R2 %.3f)", len(f.Trees), len(trainIdx), score.MAE, score.R2)
	return model, report, nil
}

func matrix(examples []Example, idx []int, enc *Encoder) ([][]float64, []float64) {
	x := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for k, i := range idx {
		x[k] = enc.Features(examples[i].Record)
		y[k] = examples[i].Price
	}
	return x, y
}

// WriteReport saves the report as YAML.
func WriteReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
