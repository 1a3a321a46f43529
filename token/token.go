// Package token implements the signed, opaque token that carries
// inter-request state through the user's browser between begin and
// complete: the discovered endpoint, authenticated with HMAC-SHA1 under a
// process-local key so the browser can carry it but not forge or tamper
// with it.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/dexidp/openid1/pkg/crypto"
)

// DefaultLifetime bounds how long a token remains valid after issuance, in
// seconds. 300s comfortably covers a browser round trip to the provider
// and back without leaving a long-lived forgeable window open.
const DefaultLifetime = 300

var (
	// ErrMalformed indicates the token could not even be parsed: bad
	// base64, too short to contain a signature, or a body that doesn't
	// split into exactly four NUL-separated fields.
	ErrMalformed = errors.New("openid1/token: malformed token")

	// ErrBadSignature indicates the signature did not verify.
	ErrBadSignature = errors.New("openid1/token: signature mismatch")

	// ErrExpired indicates the token's timestamp is zero or older than
	// Lifetime seconds.
	ErrExpired = errors.New("openid1/token: expired")
)

// Fields is the payload a Token authenticates: the endpoint selected
// during begin, bound to the response the user's browser later presents
// at complete.
type Fields struct {
	IdentityURL string
	ServerID    string
	ServerURL   string
}

// Codec signs and verifies Token values. Lifetime and Clock are exported
// so callers can shorten the window or inject a fake clock in tests; the
// zero value is unusable until both are set via New.
type Codec struct {
	Key      []byte
	Lifetime int64
	Clock    clockwork.Clock
}

// New returns a Codec authenticating under key with the default lifetime
// and the real wall clock.
func New(key []byte) *Codec {
	return &Codec{Key: key, Lifetime: DefaultLifetime, Clock: clockwork.NewRealClock()}
}

// Sign builds "timestamp\x00identity_url\x00server_id\x00server_url",
// HMAC-SHA1s it under c.Key, and returns base64(sig || joined).
func (c *Codec) Sign(f Fields) string {
	now := c.Clock.Now().Unix()
	joined := join(now, f)
	sig := crypto.HMACSHA1(c.Key, joined)
	return base64.StdEncoding.EncodeToString(append(sig, joined...))
}

// Verify decodes and authenticates tok, returning the Fields it carries.
// It fails closed: any structural problem, signature mismatch, or expiry
// returns one of ErrMalformed, ErrBadSignature, or ErrExpired.
func (c *Codec) Verify(tok string) (Fields, error) {
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < 20 {
		return Fields{}, ErrMalformed
	}
	sig, joined := raw[:20], raw[20:]

	expected := crypto.HMACSHA1(c.Key, joined)
	if !crypto.ConstantTimeEqual(sig, expected) {
		return Fields{}, ErrBadSignature
	}

	parts := strings.Split(string(joined), "\x00")
	if len(parts) != 4 {
		return Fields{}, ErrMalformed
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Fields{}, ErrMalformed
	}
	if ts == 0 {
		return Fields{}, ErrExpired
	}
	if ts+c.Lifetime < c.Clock.Now().Unix() {
		return Fields{}, ErrExpired
	}

	return Fields{IdentityURL: parts[1], ServerID: parts[2], ServerURL: parts[3]}, nil
}

func join(timestamp int64, f Fields) []byte {
	return []byte(strconv.FormatInt(timestamp, 10) + "\x00" + f.IdentityURL + "\x00" + f.ServerID + "\x00" + f.ServerURL)
}
