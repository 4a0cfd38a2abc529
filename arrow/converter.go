package arrow

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// ColumnJSON represents one Arrow column in JSON format. Integer columns
// use Values, interval columns use Intervals; null entries are JSON null.
type ColumnJSON struct {
	Type      string          `json:"type"`
	Values    []*int64        `json:"values,omitempty"`
	Intervals []*IntervalJSON `json:"intervals,omitempty"`
}

// IntervalJSON is a calendar interval. For interval[day_time] columns the
// nanoseconds must be whole milliseconds.
type IntervalJSON struct {
	Months      int32 `json:"months"`
	Days        int32 `json:"days"`
	Nanoseconds int64 `json:"nanoseconds"`
}

// RequestJSON is a compute request in JSON format.
type RequestJSON struct {
	Op  string     `json:"op"`
	LHS ColumnJSON `json:"lhs"`
	RHS ColumnJSON `json:"rhs"`
}

// ResultJSON is a compute result in JSON format.
type ResultJSON struct {
	Op     string     `json:"op"`
	Result ColumnJSON `json:"result"`
}

// Converter handles JSON to Arrow conversion.
type Converter struct {
	allocator memory.Allocator
}

// NewConverter creates a new Converter. A nil allocator means the default
// one.
func NewConverter(mem memory.Allocator) *Converter {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Converter{allocator: mem}
}

var timeUnits = map[string]arrow.TimeUnit{
	"s":  arrow.Second,
	"ms": arrow.Millisecond,
	"us": arrow.Microsecond,
	"ns": arrow.Nanosecond,
}

// ParseDataType parses a type string such as "timestamp[ms, UTC]",
// "time32[s]", "date32", "duration[us]" or "interval[month_day_nano]".
func ParseDataType(s string) (arrow.DataType, error) {
	name, args := strings.TrimSpace(s), ""
	if i := strings.IndexByte(name, '['); i >= 0 {
		if !strings.HasSuffix(name, "]") {
			return nil, fmt.Errorf("invalid type %q", s)
		}
		name, args = name[:i], name[i+1:len(name)-1]
	}

	parts := strings.Split(args, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	unit, unitOK := timeUnits[parts[0]]

	switch name {
	case "timestamp":
		if !unitOK || len(parts) > 2 {
			break
		}
		tz := ""
		if len(parts) == 2 {
			tz = parts[1]
		}
		return &arrow.TimestampType{Unit: unit, TimeZone: tz}, nil
	case "time32":
		if unitOK && len(parts) == 1 && (unit == arrow.Second || unit == arrow.Millisecond) {
			return &arrow.Time32Type{Unit: unit}, nil
		}
	case "time64":
		if unitOK && len(parts) == 1 && (unit == arrow.Microsecond || unit == arrow.Nanosecond) {
			return &arrow.Time64Type{Unit: unit}, nil
		}
	case "duration":
		if unitOK && len(parts) == 1 {
			return &arrow.DurationType{Unit: unit}, nil
		}
	case "date32":
		if args == "" {
			return arrow.FixedWidthTypes.Date32, nil
		}
	case "date64":
		if args == "" {
			return arrow.FixedWidthTypes.Date64, nil
		}
	case "interval":
		switch args {
		case "month_day_nano":
			return arrow.FixedWidthTypes.MonthDayNanoInterval, nil
		case "month":
			return arrow.FixedWidthTypes.MonthInterval, nil
		case "day_time":
			return arrow.FixedWidthTypes.DayTimeInterval, nil
		}
	}

	return nil, fmt.Errorf("invalid type %q", s)
}

// FormatDataType is the inverse of ParseDataType.
func FormatDataType(dt arrow.DataType) (string, error) {
	switch t := dt.(type) {
	case *arrow.TimestampType:
		if t.TimeZone != "" {
			return fmt.Sprintf("timestamp[%s, %s]", t.Unit, t.TimeZone), nil
		}
		return fmt.Sprintf("timestamp[%s]", t.Unit), nil
	case *arrow.Time32Type:
		return fmt.Sprintf("time32[%s]", t.Unit), nil
	case *arrow.Time64Type:
		return fmt.Sprintf("time64[%s]", t.Unit), nil
	case *arrow.DurationType:
		return fmt.Sprintf("duration[%s]", t.Unit), nil
	case *arrow.Date32Type:
		return "date32", nil
	case *arrow.Date64Type:
		return "date64", nil
	case *arrow.MonthDayNanoIntervalType:
		return "interval[month_day_nano]", nil
	case *arrow.MonthIntervalType:
		return "interval[month]", nil
	case *arrow.DayTimeIntervalType:
		return "interval[day_time]", nil
	}
	return "", fmt.Errorf("unsupported type %s", dt)
}

// ColumnToArray converts a JSON column to an Arrow array.
func (c *Converter) ColumnToArray(col ColumnJSON) (arrow.Array, error) {
	dt, err := ParseDataType(col.Type)
	if err != nil {
		return nil, err
	}

	bldr := array.NewBuilder(c.allocator, dt)
	defer bldr.Release()

	if !isIntervalType(dt) {
		if len(col.Intervals) > 0 {
			return nil, fmt.Errorf("column %s takes values, not intervals", col.Type)
		}
		for i, v := range col.Values {
			if v == nil {
				bldr.AppendNull()
				continue
			}
			if err := appendInt(bldr, *v); err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
		}
		return bldr.NewArray(), nil
	}

	if len(col.Values) > 0 {
		return nil, fmt.Errorf("column %s takes intervals, not values", col.Type)
	}
	for i, iv := range col.Intervals {
		if iv == nil {
			bldr.AppendNull()
			continue
		}
		if err := appendInterval(bldr, *iv); err != nil {
			return nil, fmt.Errorf("interval %d: %w", i, err)
		}
	}
	return bldr.NewArray(), nil
}

func appendInt(bldr array.Builder, v int64) error {
	narrow := func() (int32, error) {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, fmt.Errorf("%d out of int32 range", v)
		}
		return int32(v), nil
	}

	switch b := bldr.(type) {
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(v))
	case *array.Time64Builder:
		b.Append(arrow.Time64(v))
	case *array.Date64Builder:
		b.Append(arrow.Date64(v))
	case *array.DurationBuilder:
		b.Append(arrow.Duration(v))
	case *array.Time32Builder:
		n, err := narrow()
		if err != nil {
			return err
		}
		b.Append(arrow.Time32(n))
	case *array.Date32Builder:
		n, err := narrow()
		if err != nil {
			return err
		}
		b.Append(arrow.Date32(n))
	default:
		return fmt.Errorf("unexpected builder %T", bldr)
	}
	return nil
}

func appendInterval(bldr array.Builder, iv IntervalJSON) error {
	switch b := bldr.(type) {
	case *array.MonthDayNanoIntervalBuilder:
		b.Append(arrow.MonthDayNanoInterval{Months: iv.Months, Days: iv.Days, Nanoseconds: iv.Nanoseconds})
	case *array.MonthIntervalBuilder:
		if iv.Days != 0 || iv.Nanoseconds != 0 {
			return errors.New("interval[month] holds months only")
		}
		b.Append(arrow.MonthInterval(iv.Months))
	case *array.DayTimeIntervalBuilder:
		if iv.Months != 0 {
			return errors.New("interval[day_time] cannot hold months")
		}
		ms := iv.Nanoseconds / 1_000_000
		if iv.Nanoseconds%1_000_000 != 0 || ms < math.MinInt32 || ms > math.MaxInt32 {
			return fmt.Errorf("%dns is not a representable number of milliseconds", iv.Nanoseconds)
		}
		b.Append(arrow.DayTimeInterval{Days: iv.Days, Milliseconds: int32(ms)})
	default:
		return fmt.Errorf("unexpected builder %T", bldr)
	}
	return nil
}

// ArrayToColumn converts an Arrow array to a JSON column.
func (c *Converter) ArrayToColumn(arr arrow.Array) (ColumnJSON, error) {
	typ, err := FormatDataType(arr.DataType())
	if err != nil {
		return ColumnJSON{}, err
	}
	col := ColumnJSON{Type: typ}

	n := arr.Len()
	if isIntervalType(arr.DataType()) {
		col.Intervals = make([]*IntervalJSON, n)
	} else {
		col.Values = make([]*int64, n)
	}

	var (
		valueAt    func(int) int64
		intervalAt func(int) IntervalJSON
	)
	switch a := arr.(type) {
	case *array.Timestamp:
		valueAt = func(i int) int64 { return int64(a.Value(i)) }
	case *array.Time32:
		valueAt = func(i int) int64 { return int64(a.Value(i)) }
	case *array.Time64:
		valueAt = func(i int) int64 { return int64(a.Value(i)) }
	case *array.Date32:
		valueAt = func(i int) int64 { return int64(a.Value(i)) }
	case *array.Date64:
		valueAt = func(i int) int64 { return int64(a.Value(i)) }
	case *array.Duration:
		valueAt = func(i int) int64 { return int64(a.Value(i)) }
	case *array.MonthDayNanoInterval:
		intervalAt = func(i int) IntervalJSON {
			v := a.Value(i)
			return IntervalJSON{Months: v.Months, Days: v.Days, Nanoseconds: v.Nanoseconds}
		}
	case *array.MonthInterval:
		intervalAt = func(i int) IntervalJSON { return IntervalJSON{Months: int32(a.Value(i))} }
	case *array.DayTimeInterval:
		intervalAt = func(i int) IntervalJSON {
			v := a.Value(i)
			return IntervalJSON{Days: v.Days, Nanoseconds: int64(v.Milliseconds) * 1_000_000}
		}
	default:
		return ColumnJSON{}, fmt.Errorf("unsupported array %T", arr)
	}

	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			continue
		}
		if valueAt != nil {
			v := valueAt(i)
			col.Values[i] = &v
		} else {
			iv := intervalAt(i)
			col.Intervals[i] = &iv
		}
	}

	return col, nil
}

func isIntervalType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INTERVAL_MONTHS, arrow.INTERVAL_DAY_TIME, arrow.INTERVAL_MONTH_DAY_NANO:
		return true
	}
	return false
}

// DecodeJSONRequest converts a JSON request to a Request. The caller must
// Release it.
func (c *Converter) DecodeJSONRequest(data []byte) (*Request, error) {
	var req RequestJSON
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal JSON: %v", ErrMalformedRequest, err)
	}

	lhs, err := c.ColumnToArray(req.LHS)
	if err != nil {
		return nil, fmt.Errorf("%w: lhs: %v", ErrMalformedRequest, err)
	}
	rhs, err := c.ColumnToArray(req.RHS)
	if err != nil {
		lhs.Release()
		return nil, fmt.Errorf("%w: rhs: %v", ErrMalformedRequest, err)
	}

	return &Request{Op: temporal.Op(req.Op), LHS: lhs, RHS: rhs}, nil
}

// EncodeJSONResult converts a result array to JSON bytes.
func (c *Converter) EncodeJSONResult(op temporal.Op, result arrow.Array) ([]byte, error) {
	col, err := c.ArrayToColumn(result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ResultJSON{Op: string(op), Result: col})
}
