// Package crypto collects the primitives the OpenID 1.1 wire protocol fixes:
// HMAC-SHA1 signatures, the Diffie-Hellman key agreement used by
// association, and the supporting random/encoding helpers. None of these
// are swappable per spec — the protocol names SHA1 and DH explicitly — so
// they lean on the standard library rather than a third-party crypto
// package.
package crypto

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // mandated by the OpenID 1.1 wire protocol
	"crypto/subtle"
)

// HMACSHA1 computes the HMAC-SHA1 of data under key, as required by every
// signature in the OpenID 1.1 protocol (association MAC, token signature,
// assertion signature).
func HMACSHA1(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// SHA1 hashes data, used to derive the DH shared-secret key K = SHA1(btwoc(Z)).
func SHA1(data []byte) []byte {
	sum := sha1.Sum(data) //nolint:gosec // mandated by the OpenID 1.1 wire protocol
	return sum[:]
}

// ConstantTimeEqual reports whether a and b are equal without leaking
// timing information about where they first differ. Used for every
// signature comparison in the protocol to avoid a timing oracle.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// XOR returns a byte-wise XOR of a and b. The caller must ensure len(a) ==
// len(b); mismatched lengths are a protocol failure the caller must
// detect before calling XOR.
func XOR(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
