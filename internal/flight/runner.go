package flight

import (
	"fmt"
	"sync"

	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// Runner scores prepared flights against the loaded model.
// It is safe for concurrent use; the model is replaced atomically by Reload.
type Runner struct {
	path     string
	preparer *Preparer

	mu      sync.RWMutex
	model   *Model
	loadErr error
}

// NewRunner loads the model at path. A missing or unreadable artifact does not
// fail construction: the runner stays usable and every Predict call reports
// ModelUnavailableError until Reload succeeds.
func NewRunner(path string) *Runner {
	r := &Runner{path: path, preparer: NewPreparer()}
	if err := r.Reload(); err != nil {
		logger.Warn("Flight model not loaded: %v", err)
	}
	return r
}

// NewRunnerWithModel wraps an already loaded model.
func NewRunnerWithModel(m *Model) *Runner {
	return &Runner{preparer: NewPreparer(), model: m}
}

// Reload re-reads the artifact from disk.
func (r *Runner) Reload() error {
	m, err := LoadModel(r.path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.loadErr = err
		return err
	}
	r.model = m
	r.loadErr = nil
	logger.Info("Loaded flight model trained at %s (%d trees)", m.TrainedAt.Format("2006-01-02 15:04"), len(m.Forest.Trees))
	return nil
}

// Model returns the loaded model or ModelUnavailableError.
func (r *Runner) Model() (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.model == nil {
		if r.loadErr != nil {
			return nil, r.loadErr
		}
		return nil, &models.ModelUnavailableError{Path: r.path}
	}
	return r.model, nil
}

// Ready reports whether a model is loaded.
func (r *Runner) Ready() bool {
	_, err := r.Model()
	return err == nil
}

// Preparer returns the form preparer used by PredictForm.
func (r *Runner) Preparer() *Preparer { return r.preparer }

// Predict encodes the record, scores it and maps the clamped value to a category.
func (r *Runner) Predict(record *models.FlightRecord) (models.PriceEstimate, error) {
	m, err := r.Model()
	if err != nil {
		return models.PriceEstimate{}, err
	}
	value, err := m.Forest.Predict(m.Encoder.Features(record))
	if err != nil {
		return models.PriceEstimate{}, fmt.Errorf("failed to score flight: %w", err)
	}
	return models.NewPriceEstimate(value), nil
}

// PredictForm prepares a raw form and predicts its price.
func (r *Runner) PredictForm(form Form) (models.PriceEstimate, error) {
	record, err := r.preparer.Prepare(form)
	if err != nil {
		return models.PriceEstimate{}, err
	}
	return r.Predict(record)
}

// Vocabularies returns the known labels per categorical column, for form dropdowns.
// It returns nil when no model is loaded.
func (r *Runner) Vocabularies() map[string][]string {
	m, err := r.Model()
	if err != nil {
		return nil
	}
	return map[string][]string{
		"airline":         m.Encoder.Airline.Labels,
		"source":          m.Encoder.Source.Labels,
		"destination":     m.Encoder.Destination.Labels,
		"additional_info": m.Encoder.AdditionalInfo.Labels,
	}
}
