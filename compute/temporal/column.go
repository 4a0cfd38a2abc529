package temporal

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// column is a read-only int64 view over a fixed-width temporal array.
type column struct {
	arr    arrow.Array
	values []int64
}

// newColumn widens the stored values of arr to int64.
func newColumn(op Op, arr arrow.Array) (column, error) {
	n := arr.Len()
	values := make([]int64, n)

	switch a := arr.(type) {
	case *array.Timestamp:
		for i, v := range a.TimestampValues() {
			values[i] = int64(v)
		}
	case *array.Duration:
		for i, v := range a.DurationValues() {
			values[i] = int64(v)
		}
	case *array.Time32:
		for i, v := range a.Time32Values() {
			values[i] = int64(v)
		}
	case *array.Time64:
		for i, v := range a.Time64Values() {
			values[i] = int64(v)
		}
	case *array.Date32:
		for i, v := range a.Date32Values() {
			values[i] = int64(v)
		}
	case *array.Date64:
		for i, v := range a.Date64Values() {
			values[i] = int64(v)
		}
	default:
		return column{}, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedKind, arr.DataType())
	}

	return column{arr: arr, values: values}, nil
}

// Len returns the number of elements.
func (c column) Len() int {
	return len(c.values)
}

// at returns the value at output position i, broadcasting a length-1
// column, and whether it is non-null.
func (c column) at(i int) (int64, bool) {
	if len(c.values) == 1 {
		i = 0
	}
	if c.arr.IsNull(i) {
		return 0, false
	}
	return c.values[i], true
}

// BroadcastLen returns the output length for operands of lengths a and b.
// Lengths must be equal unless one of them is 1.
func BroadcastLen(a, b int) (int, error) {
	switch {
	case a == b:
		return a, nil
	case a == 1:
		return b, nil
	case b == 1:
		return a, nil
	default:
		return 0, fmt.Errorf("%w: %d and %d", ErrLengthMismatch, a, b)
	}
}

func broadcastLen(op Op, a, b int) (int, error) {
	n, err := BroadcastLen(a, b)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// buildArray materializes values into a new array of type dt. Positions
// where valid is false become null. Narrow types must have been range
// checked by the caller.
func buildArray(mem memory.Allocator, dt arrow.DataType, values []int64, valid []bool) (arrow.Array, error) {
	switch t := dt.(type) {
	case *arrow.TimestampType:
		b := array.NewTimestampBuilder(mem, t)
		defer b.Release()
		out := make([]arrow.Timestamp, len(values))
		for i, v := range values {
			out[i] = arrow.Timestamp(v)
		}
		b.AppendValues(out, valid)
		return b.NewArray(), nil
	case *arrow.DurationType:
		b := array.NewDurationBuilder(mem, t)
		defer b.Release()
		out := make([]arrow.Duration, len(values))
		for i, v := range values {
			out[i] = arrow.Duration(v)
		}
		b.AppendValues(out, valid)
		return b.NewArray(), nil
	case *arrow.Time32Type:
		b := array.NewTime32Builder(mem, t)
		defer b.Release()
		out := make([]arrow.Time32, len(values))
		for i, v := range values {
			out[i] = arrow.Time32(v)
		}
		b.AppendValues(out, valid)
		return b.NewArray(), nil
	case *arrow.Time64Type:
		b := array.NewTime64Builder(mem, t)
		defer b.Release()
		out := make([]arrow.Time64, len(values))
		for i, v := range values {
			out[i] = arrow.Time64(v)
		}
		b.AppendValues(out, valid)
		return b.NewArray(), nil
	case *arrow.Date32Type:
		b := array.NewDate32Builder(mem)
		defer b.Release()
		out := make([]arrow.Date32, len(values))
		for i, v := range values {
			out[i] = arrow.Date32(v)
		}
		b.AppendValues(out, valid)
		return b.NewArray(), nil
	case *arrow.Date64Type:
		b := array.NewDate64Builder(mem)
		defer b.Release()
		out := make([]arrow.Date64, len(values))
		for i, v := range values {
			out[i] = arrow.Date64(v)
		}
		b.AppendValues(out, valid)
		return b.NewArray(), nil
	default:
		return nil, fmt.Errorf("%w: cannot build %s", ErrUnsupportedKind, dt)
	}
}
