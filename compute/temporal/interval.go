package temporal

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// AddInterval adds a single calendar interval to every element of a
// Timestamp array. Months are added first, clamping the day of month to the
// end of the target month, then days, then the sub-day component. The
// arithmetic is timezone-naive: the timestamp's timezone is carried to the
// output unchanged and no conversion is performed. Negative intervals are
// supported.
func AddInterval(timestamps arrow.Array, interval arrow.MonthDayNanoInterval, opts ...Option) (arrow.Array, error) {
	return applyInterval(timestamps, 1, func(int) (arrow.MonthDayNanoInterval, bool) {
		return interval, true
	}, opts)
}

// AddIntervalArray adds an array of intervals to a Timestamp array
// element-wise. Intervals may be MonthDayNanoInterval, MonthInterval or
// DayTimeInterval arrays; a length-1 interval array is broadcast.
func AddIntervalArray(timestamps, intervals arrow.Array, opts ...Option) (arrow.Array, error) {
	at, err := intervalReader(intervals)
	if err != nil {
		return nil, err
	}
	return applyInterval(timestamps, intervals.Len(), at, opts)
}

// intervalReader returns an accessor widening any interval array to
// month/day/nanosecond triples.
func intervalReader(arr arrow.Array) (func(int) (arrow.MonthDayNanoInterval, bool), error) {
	n := arr.Len()
	index := func(i int) int {
		if n == 1 {
			return 0
		}
		return i
	}

	switch a := arr.(type) {
	case *array.MonthDayNanoInterval:
		return func(i int) (arrow.MonthDayNanoInterval, bool) {
			i = index(i)
			if a.IsNull(i) {
				return arrow.MonthDayNanoInterval{}, false
			}
			return a.Value(i), true
		}, nil
	case *array.MonthInterval:
		return func(i int) (arrow.MonthDayNanoInterval, bool) {
			i = index(i)
			if a.IsNull(i) {
				return arrow.MonthDayNanoInterval{}, false
			}
			return arrow.MonthDayNanoInterval{Months: int32(a.Value(i))}, true
		}, nil
	case *array.DayTimeInterval:
		return func(i int) (arrow.MonthDayNanoInterval, bool) {
			i = index(i)
			if a.IsNull(i) {
				return arrow.MonthDayNanoInterval{}, false
			}
			v := a.Value(i)
			return arrow.MonthDayNanoInterval{
				Days:        v.Days,
				Nanoseconds: int64(v.Milliseconds) * 1_000_000,
			}, true
		}, nil
	default:
		return nil, fmt.Errorf("%s: %w: expected an interval, got %s", OpAddInterval, ErrUnsupportedKind, arr.DataType())
	}
}

func applyInterval(timestamps arrow.Array, intervalLen int, intervalAt func(int) (arrow.MonthDayNanoInterval, bool), opts []Option) (arrow.Array, error) {
	const op = OpAddInterval
	cfg := newCallConfig(opts)

	tt, err := classify(op, timestamps.DataType())
	if err != nil {
		return nil, err
	}
	if tt.kind != KindTimestamp {
		return nil, fmt.Errorf("%s: %w: intervals need calendar context, got %s", op, ErrUnsupportedKind, tt.kind)
	}
	n, err := broadcastLen(op, timestamps.Len(), intervalLen)
	if err != nil {
		return nil, err
	}
	ts, err := newColumn(op, timestamps)
	if err != nil {
		return nil, err
	}

	values := make([]int64, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		t, ok := ts.at(i)
		if !ok {
			continue
		}
		iv, ok := intervalAt(i)
		if !ok {
			continue
		}

		r, ok, err := shiftTimestamp(t, tt.unit, iv)
		if err != nil {
			return nil, err
		}
		if !ok {
			if cfg.overflow == OverflowNull {
				continue
			}
			return nil, overflowError(op, i)
		}

		values[i] = r
		valid[i] = true
	}

	return buildArray(cfg.mem, tt.dt, values, valid)
}

// shiftTimestamp applies iv to a timestamp value v expressed in unit.
func shiftTimestamp(v int64, unit arrow.TimeUnit, iv arrow.MonthDayNanoInterval) (int64, bool, error) {
	perTick := nanosPerTick(unit)
	if iv.Nanoseconds%perTick != 0 {
		return 0, false, fmt.Errorf("%s: %w: %dns is not a whole number of %s",
			OpAddInterval, ErrUnitMismatch, iv.Nanoseconds, unit)
	}
	sub := iv.Nanoseconds / perTick

	perDay := ticksPerDay(unit)
	days := floorDiv(v, perDay)

	// Apply the day change as a delta: days*perDay itself can fall outside
	// int64 near either end of the range.
	shifted := addMonths(days, int64(iv.Months)) + int64(iv.Days)
	delta, ok := subChecked(shifted, days)
	if !ok {
		return 0, false, nil
	}
	shift, ok := mulChecked(delta, perDay)
	if !ok {
		return 0, false, nil
	}
	r, ok := addExact(v, shift, sub)
	return r, ok, nil
}

// addExact returns v+a+b, reporting overflow only when the exact sum does
// not fit in int64.
func addExact(v, a, b int64) (int64, bool) {
	if ab, ok := addChecked(a, b); ok {
		return addChecked(v, ab)
	}
	// a and b share a sign here; v+a cannot overflow unless the sum does.
	r, ok := addChecked(v, a)
	if !ok {
		return 0, false
	}
	return addChecked(r, b)
}
