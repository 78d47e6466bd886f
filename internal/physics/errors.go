package physics

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownParam is returned for a parameter key the engine does not
	// know.
	ErrUnknownParam = errors.New("physics: unknown parameter")

	// ErrParamType indicates a parameter value of the wrong type.
	ErrParamType = errors.New("physics: wrong parameter type")

	// ErrParamRange indicates a parameter value outside its valid range.
	ErrParamRange = errors.New("physics: parameter out of range")

	// ErrUnsupportedParam indicates a known parameter that cannot be set in
	// the current state.
	ErrUnsupportedParam = errors.New("physics: parameter cannot be set")

	// ErrInvalidMessage indicates a control message field out of range.
	ErrInvalidMessage = errors.New("physics: invalid message")

	// ErrDuplicateModel is returned when a model id is added twice.
	ErrDuplicateModel = errors.New("physics: model already added")

	// ErrUnknownModel is returned when removing a model that was never
	// added.
	ErrUnknownModel = errors.New("physics: unknown model")
)

// LoadError reports a model that could not be added. The engine is left
// with the models it had before.
type LoadError struct {
	Model   string
	Wrapped error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Model, e.Wrapped)
}

func (e *LoadError) Unwrap() error {
	return e.Wrapped
}

// TickError reports a step that failed after its retry.
type TickError struct {
	Target  float64
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("physics tick to t=%.6f: %v", e.Target, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}
