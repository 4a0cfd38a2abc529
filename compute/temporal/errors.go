package temporal

import (
	"errors"
	"fmt"
)

// Common errors for temporal operations
var (
	ErrUnitMismatch       = errors.New("incompatible time units")
	ErrUnsupportedKind    = errors.New("unsupported array kind")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrLengthMismatch     = errors.New("array length mismatch")
	ErrUnknownOp          = errors.New("unknown operation")
)

// Error codes reported over the wire for each error kind.
const (
	CodeUnitMismatch       = "UNIT_MISMATCH"
	CodeUnsupportedKind    = "UNSUPPORTED_KIND"
	CodeArithmeticOverflow = "ARITHMETIC_OVERFLOW"
	CodeLengthMismatch     = "LENGTH_MISMATCH"
	CodeUnknownOp          = "UNKNOWN_OP"
	CodeInternal           = "INTERNAL"
)

// ErrorCode maps an error returned by this package to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnitMismatch):
		return CodeUnitMismatch
	case errors.Is(err, ErrUnsupportedKind):
		return CodeUnsupportedKind
	case errors.Is(err, ErrArithmeticOverflow):
		return CodeArithmeticOverflow
	case errors.Is(err, ErrLengthMismatch):
		return CodeLengthMismatch
	case errors.Is(err, ErrUnknownOp):
		return CodeUnknownOp
	default:
		return CodeInternal
	}
}

// RowOverflowError reports the first row whose result does not fit in int64.
// It unwraps to ErrArithmeticOverflow.
type RowOverflowError struct {
	Op    Op
	Index int
}

func (e *RowOverflowError) Error() string {
	return fmt.Sprintf("%s: %v at index %d", e.Op, ErrArithmeticOverflow, e.Index)
}

func (e *RowOverflowError) Unwrap() error {
	return ErrArithmeticOverflow
}

func overflowError(op Op, idx int) error {
	return &RowOverflowError{Op: op, Index: idx}
}
