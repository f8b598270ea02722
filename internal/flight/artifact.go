package flight

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/forecastkit/internal/forest"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// ArtifactVersion is bumped whenever the feature layout changes.
const ArtifactVersion = 1

// Model is the persisted fare model: the forest plus the vocabularies it was trained with.
type Model struct {
	Version   int
	Forest    *forest.Forest
	Encoder   *Encoder
	TrainedAt time.Time
	Score     forest.Score
	Rows      int
}

// SaveModel writes the model as gzip-compressed gob. The file is written to a
// temp file in the same directory and renamed into place.
func SaveModel(path string, m *Model) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(zw).Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename model file: %w", err)
	}
	return nil
}

// LoadModel reads a model written by SaveModel. Every failure is reported as a
// ModelUnavailableError; a missing file additionally wraps MissingFileError.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &models.ModelUnavailableError{Path: path, Err: &models.MissingFileError{Path: path}}
		}
		return nil, &models.ModelUnavailableError{Path: path, Err: err}
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, &models.ModelUnavailableError{Path: path, Err: fmt.Errorf("not a gzip stream: %w", err)}
	}
	defer zr.Close()

	var m Model
	if err := gob.NewDecoder(zr).Decode(&m); err != nil {
		return nil, &models.ModelUnavailableError{Path: path, Err: fmt.Errorf("failed to decode model: %w", err)}
	}
	if m.Version != ArtifactVersion {
		return nil, &models.ModelUnavailableError{Path: path, Err: fmt.Errorf("artifact version %d, expected %d", m.Version, ArtifactVersion)}
	}
	if m.Forest == nil || m.Encoder == nil || len(m.Forest.Trees) == 0 {
		return nil, &models.ModelUnavailableError{Path: path, Err: errors.New("artifact is incomplete")}
	}
	if m.Forest.Features != len(FeatureNames) {
		return nil, &models.ModelUnavailableError{Path: path, Err: fmt.Errorf("artifact has %d features, expected %d", m.Forest.Features, len(FeatureNames))}
	}
	m.Encoder.reindex()
	return &m, nil
}
