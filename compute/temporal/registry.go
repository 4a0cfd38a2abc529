package temporal

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Op names a temporal operation.
type Op string

const (
	OpAddDuration        Op = "add_duration"
	OpSubtractDuration   Op = "subtract_duration"
	OpAddInterval        Op = "add_interval"
	OpSubtractTimestamps Op = "subtract_timestamps"
)

// Ops returns every supported operation in a stable order.
func Ops() []Op {
	return []Op{OpAddDuration, OpSubtractDuration, OpAddInterval, OpSubtractTimestamps}
}

// Valid reports whether op names a supported operation.
func (op Op) Valid() bool {
	switch op {
	case OpAddDuration, OpSubtractDuration, OpAddInterval, OpSubtractTimestamps:
		return true
	default:
		return false
	}
}

// Apply runs op over lhs and rhs. For OpAddInterval, rhs is an interval
// array; pass a length-1 array to apply a single interval to every element.
func Apply(op Op, lhs, rhs arrow.Array, opts ...Option) (arrow.Array, error) {
	switch op {
	case OpAddDuration:
		return AddDuration(lhs, rhs, opts...)
	case OpSubtractDuration:
		return SubtractDuration(lhs, rhs, opts...)
	case OpAddInterval:
		return AddIntervalArray(lhs, rhs, opts...)
	case OpSubtractTimestamps:
		return SubtractTimestamps(lhs, rhs, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, string(op))
	}
}
