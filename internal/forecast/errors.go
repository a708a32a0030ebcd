package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput matches every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDegenerateDistribution matches every *DegenerateDistributionError.
	ErrDegenerateDistribution = errors.New("degenerate distribution")
	// ErrNoEnsemble is returned when a summary is requested before any run completed.
	ErrNoEnsemble = errors.New("no ensemble available")
)

// InvalidInputError reports malformed or insufficient input to the engine.
type InvalidInputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func (e *InvalidInputError) Unwrap() error { return e.Err }

func invalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// DegenerateDistributionError reports an entity whose historical returns have zero variance.
type DegenerateDistributionError struct {
	Entity string
	Mean   float64
}

func (e *DegenerateDistributionError) Error() string {
	return fmt.Sprintf("entity %q has zero return variance (mean %.6f)", e.Entity, e.Mean)
}

func (e *DegenerateDistributionError) Is(target error) bool {
	return target == ErrDegenerateDistribution
}
