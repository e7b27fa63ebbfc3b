// Package spki canonicalizes public keys into their SubjectPublicKeyInfo DER
// encoding, the byte string the filter hashes. The filter core never inspects
// key structure; this package is the only place that does.
package spki

import (
	"crypto"
	"crypto/x509"

	"github.com/pkg/errors"
)

// ErrInvalidKey reports an input that has no SubjectPublicKeyInfo encoding.
var ErrInvalidKey = errors.New("key cannot be canonicalized")

// Marshal returns the SubjectPublicKeyInfo DER encoding of pub. Supported key
// types are those of crypto/x509 (RSA, ECDSA, Ed25519); anything else is
// rejected with ErrInvalidKey.
func Marshal(pub crypto.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errors.Wrap(ErrInvalidKey, "nil key")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "marshal public key: %v", err)
	}
	return der, nil
}
