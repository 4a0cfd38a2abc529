package temporal

import (
	"math"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func newIntervals(t *testing.T, mem memory.Allocator, values []arrow.MonthDayNanoInterval, valid []bool) arrow.Array {
	t.Helper()
	b := array.NewMonthDayNanoIntervalBuilder(mem)
	defer b.Release()
	b.AppendValues(values, valid)
	return b.NewArray()
}

func TestAddIntervalClampsToMonthEnd(t *testing.T) {
	mem := newMem(t)

	tests := []struct {
		name     string
		start    int64
		interval arrow.MonthDayNanoInterval
		want     int64
	}{
		{
			name:     "leap year",
			start:    unixSeconds(2024, time.January, 31, 0, 0, 0),
			interval: arrow.MonthDayNanoInterval{Months: 1},
			want:     unixSeconds(2024, time.February, 29, 0, 0, 0),
		},
		{
			name:     "common year",
			start:    unixSeconds(2023, time.January, 31, 0, 0, 0),
			interval: arrow.MonthDayNanoInterval{Months: 1},
			want:     unixSeconds(2023, time.February, 28, 0, 0, 0),
		},
		{
			name:     "time of day preserved",
			start:    unixSeconds(2024, time.January, 31, 13, 45, 10),
			interval: arrow.MonthDayNanoInterval{Months: 1},
			want:     unixSeconds(2024, time.February, 29, 13, 45, 10),
		},
		{
			name:     "negative months",
			start:    unixSeconds(2024, time.March, 31, 6, 0, 0),
			interval: arrow.MonthDayNanoInterval{Months: -1},
			want:     unixSeconds(2024, time.February, 29, 6, 0, 0),
		},
		{
			name:     "across year boundary",
			start:    unixSeconds(2023, time.November, 30, 0, 0, 0),
			interval: arrow.MonthDayNanoInterval{Months: 14},
			want:     unixSeconds(2025, time.January, 30, 0, 0, 0),
		},
		{
			name:     "months then days then time",
			start:    unixSeconds(2024, time.January, 31, 23, 0, 0),
			interval: arrow.MonthDayNanoInterval{Months: 1, Days: 1, Nanoseconds: 2 * 3600 * 1_000_000_000},
			want:     unixSeconds(2024, time.March, 2, 1, 0, 0),
		},
		{
			name:     "before epoch",
			start:    unixSeconds(1900, time.January, 31, 12, 0, 0),
			interval: arrow.MonthDayNanoInterval{Months: 1},
			want:     unixSeconds(1900, time.February, 28, 12, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times := newArray(t, mem, tsSecond, []int64{tt.start}, nil)
			defer times.Release()

			out, err := AddInterval(times, tt.interval, WithAllocator(mem))
			require.NoError(t, err)
			defer out.Release()

			values, _ := contents(t, out)
			require.Equal(t, []int64{tt.want}, values)
		})
	}
}

func TestAddIntervalSubSecondUnits(t *testing.T) {
	mem := newMem(t)

	start := time.Date(2024, time.January, 31, 10, 0, 0, 123_000_000, time.UTC)
	times := newArray(t, mem, tsMilli, []int64{start.UnixMilli()}, nil)
	defer times.Release()

	iv := arrow.MonthDayNanoInterval{Months: 1, Nanoseconds: 5_000_000}
	out, err := AddInterval(times, iv, WithAllocator(mem))
	require.NoError(t, err)
	defer out.Release()

	want := time.Date(2024, time.February, 29, 10, 0, 0, 128_000_000, time.UTC)
	values, _ := contents(t, out)
	require.Equal(t, []int64{want.UnixMilli()}, values)
}

func TestAddIntervalRejectsInexactNanoseconds(t *testing.T) {
	mem := newMem(t)

	times := newArray(t, mem, tsSecond, []int64{0}, nil)
	defer times.Release()

	_, err := AddInterval(times, arrow.MonthDayNanoInterval{Nanoseconds: 1}, WithAllocator(mem))
	require.ErrorIs(t, err, ErrUnitMismatch)
}

func TestAddIntervalRequiresTimestamp(t *testing.T) {
	mem := newMem(t)

	for _, dt := range []arrow.DataType{time32s, time64ns, arrow.FixedWidthTypes.Date32, arrow.FixedWidthTypes.Date64} {
		arr := newArray(t, mem, dt, []int64{1}, nil)
		_, err := AddInterval(arr, arrow.MonthDayNanoInterval{Months: 1}, WithAllocator(mem))
		require.ErrorIs(t, err, ErrUnsupportedKind, dt.String())
		arr.Release()
	}
}

func TestAddIntervalOverflow(t *testing.T) {
	mem := newMem(t)

	times := newArray(t, mem, tsNano, []int64{0, math.MaxInt64 - 10}, nil)
	defer times.Release()

	iv := arrow.MonthDayNanoInterval{Days: 1}
	_, err := AddInterval(times, iv, WithAllocator(mem))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	out, err := AddInterval(times, iv, WithAllocator(mem), WithOverflowPolicy(OverflowNull))
	require.NoError(t, err)
	defer out.Release()

	values, valid := contents(t, out)
	require.Equal(t, []bool{true, false}, valid)
	require.Equal(t, int64(86_400_000_000_000), values[0])
}

func TestAddIntervalNearInt64Bounds(t *testing.T) {
	mem := newMem(t)

	times := newArray(t, mem, tsNano, []int64{math.MinInt64 + 1, math.MaxInt64 - 1}, nil)
	defer times.Release()

	tests := []struct {
		name string
		iv   arrow.MonthDayNanoInterval
		want []int64
	}{
		{"zero", arrow.MonthDayNanoInterval{}, []int64{math.MinInt64 + 1, math.MaxInt64 - 1}},
		{"forward 1ns", arrow.MonthDayNanoInterval{Nanoseconds: 1}, []int64{math.MinInt64 + 2, math.MaxInt64}},
		{"back 1ns", arrow.MonthDayNanoInterval{Nanoseconds: -1}, []int64{math.MinInt64, math.MaxInt64 - 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := AddInterval(times, tt.iv, WithAllocator(mem))
			require.NoError(t, err)
			defer out.Release()

			values, _ := contents(t, out)
			require.Equal(t, tt.want, values)
		})
	}

	// Crossing the bound still overflows.
	_, err := AddInterval(times, arrow.MonthDayNanoInterval{Nanoseconds: 2}, WithAllocator(mem))
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestAddExactOrdering(t *testing.T) {
	// a+b overflows on its own but v brings the sum back in range.
	r, ok := addExact(math.MinInt64+10, math.MaxInt64, 5)
	require.True(t, ok)
	require.Equal(t, int64(14), r)

	_, ok = addExact(math.MaxInt64, 1, 0)
	require.False(t, ok)
}

func TestAddIntervalArrayWidensIntervalTypes(t *testing.T) {
	mem := newMem(t)

	start := unixSeconds(2024, time.January, 31, 0, 0, 0)
	times := newArray(t, mem, tsSecond, []int64{start, start}, nil)
	defer times.Release()

	mb := array.NewMonthIntervalBuilder(mem)
	mb.AppendValues([]arrow.MonthInterval{1, 13}, nil)
	months := mb.NewArray()
	mb.Release()
	defer months.Release()

	out, err := AddIntervalArray(times, months, WithAllocator(mem))
	require.NoError(t, err)
	defer out.Release()

	values, _ := contents(t, out)
	require.Equal(t, []int64{
		unixSeconds(2024, time.February, 29, 0, 0, 0),
		unixSeconds(2025, time.February, 28, 0, 0, 0),
	}, values)

	db := array.NewDayTimeIntervalBuilder(mem)
	db.Append(arrow.DayTimeInterval{Days: 2, Milliseconds: 1_000})
	dayTime := db.NewArray()
	db.Release()
	defer dayTime.Release()

	out2, err := AddIntervalArray(times, dayTime, WithAllocator(mem))
	require.NoError(t, err)
	defer out2.Release()

	values, _ = contents(t, out2)
	want := unixSeconds(2024, time.February, 2, 0, 0, 1)
	require.Equal(t, []int64{want, want}, values)
}

func TestAddIntervalArrayRejectsNonInterval(t *testing.T) {
	mem := newMem(t)

	times := newArray(t, mem, tsSecond, []int64{0}, nil)
	defer times.Release()
	durs := newArray(t, mem, durSec, []int64{1}, nil)
	defer durs.Release()

	_, err := AddIntervalArray(times, durs, WithAllocator(mem))
	require.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = Apply(OpAddInterval, times, durs, WithAllocator(mem))
	require.ErrorIs(t, err, ErrUnsupportedKind)
}
