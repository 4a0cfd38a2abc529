package temporal

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

var (
	tsSecond = &arrow.TimestampType{Unit: arrow.Second}
	tsMilli  = &arrow.TimestampType{Unit: arrow.Millisecond}
	tsNano   = &arrow.TimestampType{Unit: arrow.Nanosecond}
	durSec   = &arrow.DurationType{Unit: arrow.Second}
	durMilli = &arrow.DurationType{Unit: arrow.Millisecond}
	durNano  = &arrow.DurationType{Unit: arrow.Nanosecond}
	time32s  = &arrow.Time32Type{Unit: arrow.Second}
	time64ns = &arrow.Time64Type{Unit: arrow.Nanosecond}
)

func newMem(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

func newArray(t *testing.T, mem memory.Allocator, dt arrow.DataType, values []int64, valid []bool) arrow.Array {
	t.Helper()
	arr, err := buildArray(mem, dt, values, valid)
	require.NoError(t, err)
	return arr
}

// contents returns the widened values and the validity of arr. Null
// positions report a zero value.
func contents(t *testing.T, arr arrow.Array) ([]int64, []bool) {
	t.Helper()
	col, err := newColumn("test", arr)
	require.NoError(t, err)

	values := make([]int64, arr.Len())
	valid := make([]bool, arr.Len())
	for i := range values {
		values[i], valid[i] = col.at(i)
	}
	return values, valid
}

func unixDay(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

func unixSeconds(year int, month time.Month, day, hour, min, sec int) int64 {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC).Unix()
}
