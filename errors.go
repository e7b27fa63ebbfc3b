package keyfilter

import (
	"github.com/pkg/errors"

	"github.com/pwnwatch/keyfilter/spki"
)

var (
	// ErrInvalidFile reports a file whose header cannot be recognized.
	ErrInvalidFile = errors.New("unrecognized filter file format")

	// ErrInvalidKey reports an input that cannot be canonicalized. It is the
	// same value spki reports, re-exported so callers need only this package.
	ErrInvalidKey = spki.ErrInvalidKey

	// ErrFilterClosed reports an operation on a closed filter.
	ErrFilterClosed = errors.New("operation on closed filter")

	// ErrNoValidHashCount reports that the geometry search exhausted its
	// bound without meeting the false positive target. This cannot happen for
	// valid inputs; it indicates a defect, not a caller error.
	ErrNoValidHashCount = errors.New("no hash count meets the false positive target")
)
