// Package mesherr defines the error taxonomy shared by every mesh variant
// and operator assembler.
package mesherr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration reports invalid construction parameters (widths,
	// counts, non-positive dimensions).
	ErrConfiguration = errors.New("configuration error")
	// ErrTopology reports refinement past the maximum level, coarsening a
	// cell with refined children, or a non-repairable imbalance.
	ErrTopology = errors.New("topology error")
	// ErrState reports queries before finalize or mutation after finalize.
	ErrState = errors.New("state error")
	// ErrShape reports a property tensor that does not match the cell count
	// or tensor kind.
	ErrShape = errors.New("shape error")
	// ErrNotSupported reports an operator that is not defined for the mesh
	// dimensionality or variant.
	ErrNotSupported = errors.New("not supported")
)

// Error carries the context of a failed call. Kind is one of the sentinel
// errors above, so errors.Is(err, ErrShape) works on wrapped values.
type Error struct {
	Kind     error
	Op       string
	Cell     int // offending cell, -1 when not applicable
	Expected int // expected length, -1 when not applicable
	Actual   int
	Msg      string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Op != "" {
		sb.WriteString(": " + e.Op)
	}
	if e.Msg != "" {
		sb.WriteString(": " + e.Msg)
	}
	if e.Cell >= 0 {
		sb.WriteString(fmt.Sprintf(" (cell %d)", e.Cell))
	}
	if e.Expected >= 0 {
		sb.WriteString(fmt.Sprintf(" (expected %d, got %d)", e.Expected, e.Actual))
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Cell:     -1,
		Expected: -1,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// Configuration returns an ErrConfiguration for op.
func Configuration(op, format string, args ...interface{}) error {
	return newError(ErrConfiguration, op, format, args...)
}

// Topology returns an ErrTopology for op naming the offending cell.
func Topology(op string, cell int, format string, args ...interface{}) error {
	e := newError(ErrTopology, op, format, args...)
	e.Cell = cell
	return e
}

// State returns an ErrState for op.
func State(op, format string, args ...interface{}) error {
	return newError(ErrState, op, format, args...)
}

// Shape returns an ErrShape for op with the expected and actual lengths.
func Shape(op string, expected, actual int, format string, args ...interface{}) error {
	e := newError(ErrShape, op, format, args...)
	e.Expected = expected
	e.Actual = actual
	return e
}

// NotSupported returns an ErrNotSupported for op.
func NotSupported(op, format string, args ...interface{}) error {
	return newError(ErrNotSupported, op, format, args...)
}
