// Package temporal implements element-wise date, time, duration and interval
// arithmetic over Apache Arrow arrays.
//
// The package provides:
//   - AddDuration / SubtractDuration for Timestamp, Time32/Time64 and
//     Date32/Date64 arrays combined with Duration arrays
//   - AddInterval / AddIntervalArray for calendar-aware interval addition
//     on Timestamp arrays
//   - SubtractTimestamps returning a Duration array
//   - Apply, a name-based dispatcher over the operations above
//
// Every operation is pure: inputs are never mutated, a fresh output array is
// allocated and ownership passes to the caller, who must Release it. A
// position is null whenever either operand is null at that position.
// Operands must have equal lengths or one of them must have length 1, in
// which case it is broadcast.
package temporal
