package propagation

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates a malformed description or channel setup,
	// including queries for source depths the grid cannot interpolate.
	ErrConfiguration = errors.New("invalid channel configuration")
	// ErrRange indicates a propagation range outside the built grid.
	ErrRange = errors.New("propagation range out of bounds")
	// ErrSolverFailure indicates the external solver failed or timed out for
	// a grid cell a query depends on.
	ErrSolverFailure = errors.New("propagation solver failure")
	// ErrLayerNotFound indicates a layer removal for a depth not present.
	ErrLayerNotFound = errors.New("layer not found")
)

// CellError records why a grid cell has no response.
type CellError struct {
	DepthIndex int
	RangeIndex int
	DepthM     float64
	RangeM     float64
	Err        error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("grid cell [%d,%d] (source depth %.2f m, range %.2f m): %v",
		e.DepthIndex, e.RangeIndex, e.DepthM, e.RangeM, e.Err)
}

// Unwrap exposes both ErrSolverFailure and the underlying cause to errors.Is.
func (e *CellError) Unwrap() []error {
	return []error{ErrSolverFailure, e.Err}
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
