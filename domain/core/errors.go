package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)

	// Data-integrity errors: the layout and the QA data describe different plates
	ErrDataIntegrity    = errors.New("inconsistent plate map")
	ErrCompoundNotFound = fmt.Errorf("%w: no compound for well", ErrDataIntegrity)
	ErrMalformedDataset = fmt.Errorf("%w: malformed dataset", ErrDataIntegrity)
	ErrUnknownFeature   = errors.New("unknown feature")
	ErrInsufficientData = errors.New("insufficient data for well")
	ErrInvalidSelection = errors.New("invalid well selection")
	ErrInvalidThreshold = errors.New("invalid variation threshold")

	// Degenerate-control errors: variation cannot be expressed
	ErrDegenerateControl = errors.New("degenerate control")
	ErrZeroControlMedian = fmt.Errorf("%w: control median is zero, variation undefined", ErrDegenerateControl)
	ErrControlUndefined  = fmt.Errorf("%w: control median is undefined, no control data", ErrDegenerateControl)
)

// NewCompoundNotFoundError reports a well absent from the assay layout
func NewCompoundNotFoundError(row, column int) error {
	return fmt.Errorf("%w (row %d, column %d)", ErrCompoundNotFound, row, column)
}

// NewUnknownFeatureError reports a feature column absent from the QA data
func NewUnknownFeatureError(feature string) error {
	return fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDataIntegrityError(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

func IsDegenerateControlError(err error) bool {
	return errors.Is(err, ErrDegenerateControl)
}
