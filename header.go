package keyfilter

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// signatureV1 identifies the first (and so far only) revision of the on-disk
// format.
const signatureV1 = "CKBFv1"

// headerSize is the serialized header length. The bitmap starts immediately
// after it.
const headerSize = 24

// header is the fixed-layout metadata block preceding the bitmap.
//
// Revision counts open sessions that modified the file, not entries added;
// EntryCount does the latter. HashCount and HashLength are immutable after
// creation, and the bitmap holds exactly 2^HashLength bits.
type header struct {
	Revision   uint32
	UpdatedAt  time.Time
	EntryCount uint32
	HashCount  uint8
	HashLength uint8
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:6], signatureV1)
	binary.BigEndian.PutUint32(buf[6:10], h.Revision)
	binary.BigEndian.PutUint64(buf[10:18], uint64(h.UpdatedAt.Unix()))
	binary.BigEndian.PutUint32(buf[18:22], h.EntryCount)
	buf[22] = h.HashCount
	buf[23] = h.HashLength
	return buf
}

// decodeHeader dispatches on the leading signature. A future incompatible
// layout gets its own signature and case here, never a variant flag inside
// the v1 fields.
func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, errors.Wrap(ErrInvalidFile, "short header")
	}
	switch string(buf[0:6]) {
	case signatureV1:
		return header{
			Revision:   binary.BigEndian.Uint32(buf[6:10]),
			UpdatedAt:  time.Unix(int64(binary.BigEndian.Uint64(buf[10:18])), 0).UTC(),
			EntryCount: binary.BigEndian.Uint32(buf[18:22]),
			HashCount:  buf[22],
			HashLength: buf[23],
		}, nil
	default:
		return header{}, errors.Wrapf(ErrInvalidFile, "signature %q", buf[0:6])
	}
}
