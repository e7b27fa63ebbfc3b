package keyfilter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []header{
		{Revision: 0, UpdatedAt: time.Unix(0, 0).UTC(), EntryCount: 0, HashCount: 1, HashLength: 1},
		{Revision: 7, UpdatedAt: time.Unix(1700000000, 0).UTC(), EntryCount: 123456, HashCount: 4, HashLength: 24},
		{Revision: 1<<32 - 1, UpdatedAt: time.Unix(1, 0).UTC(), EntryCount: 1<<32 - 1, HashCount: 255, HashLength: 255},
	}
	for _, h := range cases {
		buf := h.encode()
		require.Len(t, buf, headerSize)
		got, err := decodeHeader(buf)
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
}

func TestHeaderLayout(t *testing.T) {
	h := header{
		Revision:   0x01020304,
		UpdatedAt:  time.Unix(0x0506070809, 0).UTC(),
		EntryCount: 0x0a0b0c0d,
		HashCount:  0x0e,
		HashLength: 0x0f,
	}
	buf := h.encode()
	require.Equal(t, []byte(signatureV1), buf[0:6])
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf[6:10])
	require.Equal(t, []byte{0, 0, 0, 0x05, 0x06, 0x07, 0x08, 0x09}, buf[10:18])
	require.Equal(t, []byte{0x0a, 0x0b, 0x0c, 0x0d}, buf[18:22])
	require.Equal(t, byte(0x0e), buf[22])
	require.Equal(t, byte(0x0f), buf[23])
}

func TestDecodeHeaderRejectsUnknownSignature(t *testing.T) {
	buf := header{HashCount: 2, HashLength: 8}.encode()
	copy(buf[0:6], "NOPEv9")
	_, err := decodeHeader(buf)
	require.ErrorIs(t, err, ErrInvalidFile)
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	_, err := decodeHeader([]byte(signatureV1))
	require.ErrorIs(t, err, ErrInvalidFile)
}
