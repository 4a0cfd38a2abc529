package temporal

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Kind is the logical kind of a time-like array.
type Kind int8

const (
	KindTimestamp Kind = iota + 1
	KindTime
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindTimestamp:
		return "timestamp"
	case KindTime:
		return "time"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

const (
	secondsPerDay  = 86400
	nanosPerSecond = 1_000_000_000
)

// ticksPerSecond is indexed by arrow.TimeUnit (Second..Nanosecond).
var ticksPerSecond = [...]int64{1, 1_000, 1_000_000, 1_000_000_000}

// nanosPerTick returns the length of one tick of u in nanoseconds.
func nanosPerTick(u arrow.TimeUnit) int64 {
	return nanosPerSecond / ticksPerSecond[u]
}

// ticksPerDay returns the number of ticks of u in one day.
func ticksPerDay(u arrow.TimeUnit) int64 {
	return secondsPerDay * ticksPerSecond[u]
}

// temporalType is the resolved description of a time-like Arrow type.
type temporalType struct {
	dt   arrow.DataType
	kind Kind
	unit arrow.TimeUnit
	// days is set for Date32, whose values count days rather than units.
	days bool
	// narrow is set when values are stored as int32.
	narrow bool
}

// resolution returns the length of one stored tick in nanoseconds.
func (t temporalType) resolution() int64 {
	if t.days {
		return secondsPerDay * nanosPerSecond
	}
	return nanosPerTick(t.unit)
}

// fits reports whether v is representable in the type's storage width.
func (t temporalType) fits(v int64) bool {
	if t.narrow {
		return fitsIn[int32](v)
	}
	return true
}

func (t temporalType) unitName() string {
	if t.days {
		return "day"
	}
	return t.unit.String()
}

// classify resolves the kind and resolution of a time-like Arrow type.
func classify(op Op, dt arrow.DataType) (temporalType, error) {
	switch t := dt.(type) {
	case *arrow.TimestampType:
		return temporalType{dt: dt, kind: KindTimestamp, unit: t.Unit}, nil
	case *arrow.Time32Type:
		return temporalType{dt: dt, kind: KindTime, unit: t.Unit, narrow: true}, nil
	case *arrow.Time64Type:
		return temporalType{dt: dt, kind: KindTime, unit: t.Unit}, nil
	case *arrow.Date32Type:
		return temporalType{dt: dt, kind: KindDate, unit: arrow.Second, days: true, narrow: true}, nil
	case *arrow.Date64Type:
		return temporalType{dt: dt, kind: KindDate, unit: arrow.Millisecond}, nil
	default:
		return temporalType{}, fmt.Errorf("%s: %w: %s is not a time-like type", op, ErrUnsupportedKind, dt)
	}
}

// durationUnit returns the unit of a Duration type.
func durationUnit(op Op, dt arrow.DataType) (arrow.TimeUnit, error) {
	d, ok := dt.(*arrow.DurationType)
	if !ok {
		return 0, fmt.Errorf("%s: %w: expected a duration, got %s", op, ErrUnsupportedKind, dt)
	}
	return d.Unit, nil
}

// scaler converts values from one resolution to another without losing
// information. Exactly one of mul and div is greater than one.
type scaler struct {
	mul int64
	div int64
}

// newScaler builds the conversion of a duration in unit from into the
// resolution of target. Converting to a coarser unit is rejected, except
// for day-resolution dates where every value must be a whole day.
func newScaler(op Op, from arrow.TimeUnit, target temporalType) (scaler, error) {
	src, dst := nanosPerTick(from), target.resolution()
	switch {
	case src >= dst:
		return scaler{mul: src / dst, div: 1}, nil
	case target.days:
		return scaler{mul: 1, div: dst / src}, nil
	default:
		return scaler{}, fmt.Errorf("%s: %w: cannot convert %s durations to %s without losing precision",
			op, ErrUnitMismatch, from, target.unitName())
	}
}

// apply converts v, reporting overflow with ok=false and inexact
// conversions with an ErrUnitMismatch error.
func (s scaler) apply(op Op, v int64) (r int64, ok bool, err error) {
	if s.div > 1 {
		if v%s.div != 0 {
			return 0, false, fmt.Errorf("%s: %w: %d is not a whole number of days", op, ErrUnitMismatch, v)
		}
		return v / s.div, true, nil
	}
	r, ok = mulChecked(v, s.mul)
	return r, ok, nil
}

