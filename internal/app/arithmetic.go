package app

import (
	"fmt"
	"math"
	"math/bits"
)

// addInt64AndU64Checked adds an unsigned delta to a unix timestamp, rejecting
// any overflow instead of wrapping.
func addInt64AndU64Checked(base int64, delta uint64, what string) (int64, error) {
	if delta > math.MaxInt64 {
		return 0, fmt.Errorf("%s: delta overflows int64: %d", what, delta)
	}
	d := int64(delta)
	if base > math.MaxInt64-d {
		return 0, fmt.Errorf("%s: overflow: base=%d delta=%d", what, base, delta)
	}
	return base + d, nil
}

// mulU64Checked multiplies two uint64s, rejecting overflow.
func mulU64Checked(a, b uint64, what string) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%s: overflow: %d * %d", what, a, b)
	}
	return lo, nil
}
