// Package nonceauth implements the single-use nonce check that runs on a
// prospective successful assertion: it closes the replay window a valid
// signature alone cannot, by requiring the return_to nonce to still be
// present (and atomically redeemable) in the store.
package nonceauth

import (
	"fmt"
	"net/url"

	"github.com/dexidp/openid1/store"
)

var (
	// ErrMissingFromReturnTo indicates return_to carried no nonce
	// parameter at all.
	ErrMissingFromReturnTo = fmt.Errorf("nonce missing from return_to")

	// ErrMismatch indicates the nonce in return_to does not match the
	// one the consumer embedded when it issued the request.
	ErrMismatch = fmt.Errorf("nonce mismatch")

	// ErrMissingFromStore indicates the nonce was well-formed and
	// matched, but had already been redeemed (or never existed).
	ErrMissingFromStore = fmt.Errorf("nonce missing from store")

	// ErrReturnToMismatch indicates the strict return_to equality check
	// (StrictReturnTo) rejected the assertion.
	ErrReturnToMismatch = fmt.Errorf("return_to mismatch")
)

// Checker validates and redeems the nonce embedded in a successful
// assertion's return_to.
type Checker struct {
	Store store.Store

	// StrictReturnTo additionally requires the return_to the assertion
	// echoes to be byte-identical to the return_to the consumer issued.
	// OpenID Authentication 1.1 §7.4 only requires the return_to to match
	// up to the query string; it defaults to false to match that baseline,
	// but is available for callers that want the stronger binding.
	StrictReturnTo bool
}

// Check parses returnTo's query string, confirms its nonce equals
// issuedNonce (the value the consumer embedded at begin time) and, if
// StrictReturnTo is set, that returnTo itself equals issuedReturnTo
// byte-for-byte, then redeems the nonce from the store.
func (c *Checker) Check(returnTo, issuedNonce, issuedReturnTo string) error {
	u, err := url.Parse(returnTo)
	if err != nil {
		return fmt.Errorf("nonceauth: parsing return_to: %w", err)
	}
	nonce := u.Query().Get("nonce")
	if nonce == "" {
		return ErrMissingFromReturnTo
	}
	if nonce != issuedNonce {
		return ErrMismatch
	}
	if c.StrictReturnTo && returnTo != issuedReturnTo {
		return ErrReturnToMismatch
	}

	ok, err := c.Store.UseNonce(nonce)
	if err != nil {
		return fmt.Errorf("nonceauth: redeeming nonce: %w", err)
	}
	if !ok {
		return ErrMissingFromStore
	}
	return nil
}
