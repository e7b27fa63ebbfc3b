// Package keyfilter stores compromised public keys in a persistent,
// file-backed bloom filter and answers probabilistic membership queries
// against it. A key reported absent is definitely absent; a key reported
// present may be a false positive.
//
// One flat file holds a fixed 24-byte header followed by the bitmap.
// Concurrent access across processes is coordinated with advisory file locks:
// queries take a shared lock, adds take an exclusive lock spanning the bit
// writes, the header rewrite and the flush. Advisory locking only protects
// participants that honor it, so every writer must go through this package.
package keyfilter

import (
	"crypto"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/pwnwatch/keyfilter/spki"
)

// Filter is one open session against a filter file. It owns its file handle
// and in-memory header copy and is not internally synchronized; callers
// sharing an instance across goroutines must serialize access themselves.
type Filter struct {
	f      *os.File
	hdr    header
	dirty  bool // this session already bumped the revision
	closed bool
}

// Create writes a fresh filter file at path with the given geometry: probes
// per key and bitmap size as a power-of-two exponent. The file must not
// already exist. Create does not return an open handle; follow with Open.
func Create(path string, hashCount, hashLength uint8) error {
	if hashCount < 1 || hashLength < 1 {
		return errors.New("hash count and hash length must be at least 1")
	}
	if hashLength > 56 {
		return errors.Errorf("hash length %d overflows addressable bitmap size", hashLength)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return errors.Wrapf(err, "create filter %s", path)
	}
	hdr := header{
		UpdatedAt:  time.Unix(0, 0).UTC(),
		HashCount:  hashCount,
		HashLength: hashLength,
	}
	if _, err := f.Write(hdr.encode()); err != nil {
		f.Close()
		return errors.Wrapf(err, "write header %s", path)
	}
	if err := f.Truncate(headerSize + bitmapBytes(hashLength)); err != nil {
		f.Close()
		return errors.Wrapf(err, "size bitmap %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync %s", path)
	}
	return f.Close()
}

// CreateWithEstimates sizes a new filter from an expected entry count and a
// target false positive rate instead of explicit geometry.
func CreateWithEstimates(path string, entries int, fpRate float64) error {
	hashCount, hashLength, err := FilterParameters(entries, fpRate)
	if err != nil {
		return err
	}
	return Create(path, hashCount, hashLength)
}

// Open opens an existing filter file for reading and writing. A file whose
// header cannot be recognized fails with ErrInvalidFile.
func Open(path string) (*Filter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open filter %s", path)
	}
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrInvalidFile, "read header %s: %v", path, err)
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "open filter %s", path)
	}
	return &Filter{f: f, hdr: hdr}, nil
}

// With opens the filter at path, hands it to fn and closes it on every exit
// path, including a panic in fn. fn must not close the filter itself.
func With(path string, fn func(*Filter) error) (err error) {
	flt, err := Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := flt.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(flt)
}

// ProbablyIncludes reports whether pub is probably in the compromised set.
// A false result is definitive; a true result may be a false positive.
func (flt *Filter) ProbablyIncludes(pub crypto.PublicKey) (bool, error) {
	if flt.closed {
		return false, ErrFilterClosed
	}
	der, err := spki.Marshal(pub)
	if err != nil {
		return false, err
	}
	return flt.ProbablyIncludesDER(der)
}

// ProbablyIncludesDER is ProbablyIncludes for an already-canonical
// SubjectPublicKeyInfo encoding.
func (flt *Filter) ProbablyIncludesDER(der []byte) (bool, error) {
	if flt.closed {
		return false, ErrFilterClosed
	}
	if len(der) == 0 {
		return false, errors.Wrap(ErrInvalidKey, "empty key encoding")
	}
	if err := flt.lock(unix.LOCK_SH); err != nil {
		return false, err
	}
	ok, err := flt.testAll(der)
	if uerr := flt.unlock(); err == nil {
		err = uerr
	}
	return ok, err
}

// Add records pub as compromised. It returns false without touching the file
// when every probed bit is already set, true after a real mutation.
//
// An I/O failure after the first bit write can leave bits set with the header
// not yet rewritten. Bits only ever accumulate, so the filter stays sound;
// only the entry count and timestamp lag until the next successful add.
func (flt *Filter) Add(pub crypto.PublicKey) (bool, error) {
	if flt.closed {
		return false, ErrFilterClosed
	}
	der, err := spki.Marshal(pub)
	if err != nil {
		return false, err
	}
	return flt.AddDER(der)
}

// AddDER is Add for an already-canonical SubjectPublicKeyInfo encoding.
func (flt *Filter) AddDER(der []byte) (bool, error) {
	included, err := flt.ProbablyIncludesDER(der)
	if err != nil || included {
		return false, err
	}
	if err := flt.lock(unix.LOCK_EX); err != nil {
		return false, err
	}
	err = flt.addLocked(der)
	if uerr := flt.unlock(); err == nil {
		err = uerr
	}
	return err == nil, err
}

// Close releases the file handle. Every later operation, Close included,
// fails with ErrFilterClosed.
func (flt *Filter) Close() error {
	if flt.closed {
		return ErrFilterClosed
	}
	flt.closed = true
	return errors.Wrapf(flt.f.Close(), "close filter")
}

// Sync forces buffered writes to durable storage without waiting for the
// next add.
func (flt *Filter) Sync() error {
	if flt.closed {
		return ErrFilterClosed
	}
	return errors.Wrapf(flt.f.Sync(), "sync %s", flt.f.Name())
}

// FalsePositiveRate estimates the probability that a query for a key never
// added reports true, given the current fill level. Pure computation over the
// in-memory header.
func (flt *Filter) FalsePositiveRate() (float64, error) {
	if flt.closed {
		return 0, ErrFilterClosed
	}
	m := math.Pow(2, float64(flt.hdr.HashLength))
	return estimateRate(m, int(flt.hdr.HashCount), int(flt.hdr.EntryCount)), nil
}

// Revision reports how many open sessions have modified the file.
func (flt *Filter) Revision() uint32 { return flt.hdr.Revision }

// EntryCount reports how many adds have succeeded over the filter's lifetime.
func (flt *Filter) EntryCount() uint32 { return flt.hdr.EntryCount }

// UpdatedAt reports the time of the most recent successful add, or the Unix
// epoch for a filter never added to.
func (flt *Filter) UpdatedAt() time.Time { return flt.hdr.UpdatedAt }

// HashCount reports the number of bits probed per key.
func (flt *Filter) HashCount() uint8 { return flt.hdr.HashCount }

// HashLength reports the bitmap size as a power-of-two exponent.
func (flt *Filter) HashLength() uint8 { return flt.hdr.HashLength }

func (flt *Filter) testAll(der []byte) (bool, error) {
	for _, pos := range positions(der, flt.hdr.HashCount, flt.hdr.HashLength) {
		set, err := flt.testBit(pos)
		if err != nil {
			return false, err
		}
		if !set {
			return false, nil
		}
	}
	return true, nil
}

// addLocked runs under the exclusive lock: set every probed bit, then update
// the header and flush, so readers never observe one without the other.
func (flt *Filter) addLocked(der []byte) error {
	for _, pos := range positions(der, flt.hdr.HashCount, flt.hdr.HashLength) {
		if err := flt.setBit(pos); err != nil {
			return err
		}
	}
	if !flt.dirty {
		flt.hdr.Revision++
		flt.dirty = true
	}
	flt.hdr.EntryCount++
	flt.hdr.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	if _, err := flt.f.WriteAt(flt.hdr.encode(), 0); err != nil {
		return errors.Wrapf(err, "write header %s", flt.f.Name())
	}
	if err := flt.f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", flt.f.Name())
	}
	return nil
}

// Bit n lives at byte headerSize + n/8, most significant bit first within
// the byte.
func (flt *Filter) testBit(n uint64) (bool, error) {
	var b [1]byte
	if _, err := flt.f.ReadAt(b[:], int64(headerSize+n/8)); err != nil {
		return false, errors.Wrapf(err, "read bit %d", n)
	}
	return b[0]&(1<<(7-n%8)) != 0, nil
}

func (flt *Filter) setBit(n uint64) error {
	off := int64(headerSize + n/8)
	var b [1]byte
	if _, err := flt.f.ReadAt(b[:], off); err != nil {
		return errors.Wrapf(err, "read bit %d", n)
	}
	b[0] |= 1 << (7 - n%8)
	if _, err := flt.f.WriteAt(b[:], off); err != nil {
		return errors.Wrapf(err, "write bit %d", n)
	}
	return nil
}

func (flt *Filter) lock(how int) error {
	if err := unix.Flock(int(flt.f.Fd()), how); err != nil {
		return errors.Wrapf(err, "lock %s", flt.f.Name())
	}
	return nil
}

func (flt *Filter) unlock() error {
	if err := unix.Flock(int(flt.f.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrapf(err, "unlock %s", flt.f.Name())
	}
	return nil
}

// bitmapBytes is ceil(2^hashLength / 8).
func bitmapBytes(hashLength uint8) int64 {
	return (int64(1)<<hashLength + 7) / 8
}
