package keyfilter

import (
	xxhash "github.com/cespare/xxhash/v2"
)

// positions derives the bit offsets probed for one canonical key encoding.
//
// Two independently seeded xxhash64 values are combined by enhanced double
// hashing: probe i lands at h1 + i*h2 + (i^3-i)/6, reduced mod the bitmap
// size. The cubic term keeps distinct keys whose linear combinations coincide
// from sharing whole probe sequences. Repeats within one sequence are kept;
// the false positive estimate assumes them.
func positions(der []byte, hashCount, hashLength uint8) []uint64 {
	var d xxhash.Digest
	d.ResetWithSeed(0)
	_, _ = d.Write(der)
	h1 := d.Sum64()
	d.ResetWithSeed(1)
	_, _ = d.Write(der)
	h2 := d.Sum64()
	if h2%2 == 0 {
		// An even step degenerates against the power-of-two modulus.
		h2++
	}

	mask := uint64(1)<<hashLength - 1
	out := make([]uint64, hashCount)
	for i := uint64(0); i < uint64(hashCount); i++ {
		// (i^3 - i) is divisible by 6 for every integer i.
		cubic := i * (i - 1) * (i + 1) / 6
		out[i] = (h1 + i*h2 + cubic) & mask
	}
	return out
}
