package keyfilter

import (
	"math"

	"github.com/pkg/errors"
)

// FilterParameters derives filter geometry for an expected entry count and a
// target false positive rate: the number of probes per key and the bitmap
// size as a power-of-two exponent.
//
// The theoretical bit count is rounded up to the next power of two, which
// leaves more room than the classical formulas assume, so the classical
// optimal probe count would overshoot. Instead the smallest k whose estimated
// false positive rate stays under the target is found by searching upward;
// the estimate is not algebraically invertible in k.
func FilterParameters(entries int, fpRate float64) (hashCount, hashLength uint8, err error) {
	if entries <= 0 {
		return 0, 0, errors.New("entries must be positive")
	}
	if fpRate <= 0 || fpRate >= 1 {
		return 0, 0, errors.New("false positive rate must be in (0, 1)")
	}

	optimalBits := -float64(entries) * math.Log(fpRate) / (math.Ln2 * math.Ln2)
	exp := math.Ceil(math.Log2(optimalBits))
	if exp < 1 {
		exp = 1
	}
	actualBits := math.Pow(2, exp)

	maxK := int(math.Ceil(math.Ln2 * actualBits / float64(entries)))
	for k := 1; k <= maxK; k++ {
		if estimateRate(actualBits, k, entries) < fpRate {
			return uint8(k), uint8(exp), nil
		}
	}
	return 0, 0, errors.Wrapf(ErrNoValidHashCount, "entries=%d fpRate=%g", entries, fpRate)
}

// estimateRate is the standard closed-form false positive estimate
// (1 - (1 - 1/m)^(k*n))^k for an m-bit filter probed k times per key with n
// entries recorded.
func estimateRate(m float64, k, n int) float64 {
	return math.Pow(1-math.Pow(1-1/m, float64(k)*float64(n)), float64(k))
}
