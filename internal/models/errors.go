package models

import "fmt"

// MissingFileError reports an absent data or model file.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

// ValidationError reports malformed user input on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ModelUnavailableError reports that no trained model can be invoked.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model unavailable at %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("model unavailable at %s", e.Path)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ModelFittingError reports that one forecast tier failed to fit.
// The fallback chain absorbs it; callers only ever see it as a note.
type ModelFittingError struct {
	Tier string
	Err  error
}

func (e *ModelFittingError) Error() string {
	return fmt.Sprintf("%s fit failed: %v", e.Tier, e.Err)
}

func (e *ModelFittingError) Unwrap() error { return e.Err }

// TrainingHint is shown whenever a model or data file is missing.
const TrainingHint = "run `forecastkit train` to build the flight price model"
