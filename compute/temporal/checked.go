package temporal

import (
	"math"

	"golang.org/x/exp/constraints"
)

// addChecked returns a+b and whether the sum did not overflow T.
func addChecked[T constraints.Signed](a, b T) (T, bool) {
	c := a + b
	return c, (c > a) == (b > 0)
}

// subChecked returns a-b and whether the difference did not overflow T.
func subChecked[T constraints.Signed](a, b T) (T, bool) {
	c := a - b
	return c, (c < a) == (b > 0)
}

// mulChecked returns a*b and whether the product did not overflow int64.
func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return c, false
	}
	return c, c/b == a
}

// fitsIn reports whether v survives a round trip through T.
func fitsIn[T constraints.Signed](v int64) bool {
	return int64(T(v)) == v
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
