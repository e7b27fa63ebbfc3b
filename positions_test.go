package keyfilter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositionsDeterministicAndBounded(t *testing.T) {
	der := []byte("not a real SPKI, but any byte string hashes")
	const hashCount, hashLength = 7, 16

	first := positions(der, hashCount, hashLength)
	require.Len(t, first, hashCount)
	for _, p := range first {
		require.Less(t, p, uint64(1)<<hashLength)
	}
	require.Equal(t, first, positions(der, hashCount, hashLength))
}

func TestPositionsVaryWithInput(t *testing.T) {
	a := positions([]byte("first key"), 4, 20)
	b := positions([]byte("second key"), 4, 20)
	require.NotEqual(t, a, b)
}

func TestPositionsKeepRepeats(t *testing.T) {
	// With a 2-bit bitmap and many probes, repeats are guaranteed and must
	// survive: the sequence length is always the probe count.
	got := positions([]byte("crowded"), 16, 1)
	require.Len(t, got, 16)
	for _, p := range got {
		require.Less(t, p, uint64(2))
	}
}

func TestPositionsPrefixStable(t *testing.T) {
	// Probe i depends only on i, so a higher probe count extends the
	// sequence rather than reshuffling it.
	der := []byte("prefix")
	short := positions(der, 3, 12)
	long := positions(der, 9, 12)
	require.Equal(t, short, long[:3])
}
