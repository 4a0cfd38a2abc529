package temporal

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// AddDuration adds a Duration array to a time array (Timestamp, Time32,
// Time64, Date32 or Date64). The duration is scaled to the unit of the time
// array; durations finer than that unit are rejected with ErrUnitMismatch.
// The result has the same type as times.
func AddDuration(times, durations arrow.Array, opts ...Option) (arrow.Array, error) {
	return applyDuration(OpAddDuration, times, durations, opts)
}

// SubtractDuration subtracts a Duration array from a time array. It follows
// the same unit and overflow rules as AddDuration.
func SubtractDuration(times, durations arrow.Array, opts ...Option) (arrow.Array, error) {
	return applyDuration(OpSubtractDuration, times, durations, opts)
}

func applyDuration(op Op, times, durations arrow.Array, opts []Option) (arrow.Array, error) {
	cfg := newCallConfig(opts)

	tt, err := classify(op, times.DataType())
	if err != nil {
		return nil, err
	}
	unit, err := durationUnit(op, durations.DataType())
	if err != nil {
		return nil, err
	}
	n, err := broadcastLen(op, times.Len(), durations.Len())
	if err != nil {
		return nil, err
	}
	scale, err := newScaler(op, unit, tt)
	if err != nil {
		return nil, err
	}

	lhs, err := newColumn(op, times)
	if err != nil {
		return nil, err
	}
	rhs, err := newColumn(op, durations)
	if err != nil {
		return nil, err
	}

	values := make([]int64, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		t, ok := lhs.at(i)
		if !ok {
			continue
		}
		d, ok := rhs.at(i)
		if !ok {
			continue
		}

		d, ok, err = scale.apply(op, d)
		if err != nil {
			return nil, err
		}

		var r int64
		if ok {
			if op == OpSubtractDuration {
				r, ok = subChecked(t, d)
			} else {
				r, ok = addChecked(t, d)
			}
		}
		if ok {
			ok = tt.fits(r)
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

// SubtractTimestamps computes lhs - rhs element-wise for two time arrays of
// the same kind and unit, returning a Duration array in that unit. Date32
// differences are returned in seconds. Units are never converted: differing
// units fail with ErrUnitMismatch.
func SubtractTimestamps(lhs, rhs arrow.Array, opts ...Option) (arrow.Array, error) {
	const op = OpSubtractTimestamps
	cfg := newCallConfig(opts)

	lt, err := classify(op, lhs.DataType())
	if err != nil {
		return nil, err
	}
	rt, err := classify(op, rhs.DataType())
	if err != nil {
		return nil, err
	}
	if lt.kind != rt.kind {
		return nil, fmt.Errorf("%s: %w: cannot subtract %s from %s", op, ErrUnsupportedKind, rt.kind, lt.kind)
	}
	if lt.resolution() != rt.resolution() {
		return nil, fmt.Errorf("%s: %w: %s and %s", op, ErrUnitMismatch, lt.unitName(), rt.unitName())
	}
	n, err := broadcastLen(op, lhs.Len(), rhs.Len())
	if err != nil {
		return nil, err
	}

	a, err := newColumn(op, lhs)
	if err != nil {
		return nil, err
	}
	b, err := newColumn(op, rhs)
	if err != nil {
		return nil, err
	}

	// Date32 counts days; report the difference in seconds.
	factor := int64(1)
	if lt.days {
		factor = secondsPerDay
	}

	values := make([]int64, n)
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		x, ok := a.at(i)
		if !ok {
			continue
		}
		y, ok := b.at(i)
		if !ok {
			continue
		}

		r, ok := subChecked(x, y)
		if ok {
			r, ok = mulChecked(r, factor)
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

	return buildArray(cfg.mem, &arrow.DurationType{Unit: lt.unit}, values, valid)
}
