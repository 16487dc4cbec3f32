package classifier

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTrainingSet is returned by Train when no usable labeled example remains.
	ErrEmptyTrainingSet = errors.New("no valid 'intent: sentence' examples found")

	// ErrModelNotLoaded is returned by Predict before any successful Train or Load.
	ErrModelNotLoaded = errors.New("model not loaded: train first or supply saved assets")

	// ErrBackend marks failures of a remote classification backend.
	ErrBackend = errors.New("classification backend failed")
)

// RuntimeError wraps a failure that happened while tokenizing or running inference.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("classification %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Kind returns a short label for err suitable for structured logs.
func Kind(err error) string {
	var rt *RuntimeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelNotLoaded):
		return "model_not_loaded"
	case errors.As(err, &rt):
		return "runtime"
	case errors.Is(err, ErrBackend):
		return "backend"
	default:
		return "unknown"
	}
}
