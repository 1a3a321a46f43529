// Package verify implements the id_res verification path: check a
// provider's signed assertion either locally (smart mode, using a cached
// association) or via the check_authentication fallback (dumb mode, or a
// smart consumer with no cached association under the assertion's handle).
// A cached association that has expired yields a failure, not the fallback.
package verify

import (
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/dexidp/openid1/fetcher"
	"github.com/dexidp/openid1/kvform"
	"github.com/dexidp/openid1/pkg/crypto"
	"github.com/dexidp/openid1/pkg/log"
	"github.com/dexidp/openid1/store"
	"github.com/dexidp/openid1/token"
)

// Kind tags which of the three outcomes a Verify call produced. Cancel and
// the bare "error" mode are handled by the consumer facade before
// reaching this package; verify.Verify only ever returns one of these.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindSetupNeeded
)

// Result is the outcome of verifying one id_res (or immediate-mode
// deferred) assertion.
type Result struct {
	Kind        Kind
	IdentityURL string
	SignedArgs  map[string]string // present on KindSuccess
	SetupURL    string            // present on KindSetupNeeded
	Message     string            // present on KindFailure
}

func failure(identityURL, message string) Result {
	return Result{Kind: KindFailure, IdentityURL: identityURL, Message: message}
}

// Verifier checks id_res assertions against the association store,
// falling back to check_authentication when no cached association
// applies.
type Verifier struct {
	Store   store.Store
	Fetcher fetcher.Fetcher
	Clock   clockwork.Clock
	Log     log.Logger
}

// New returns a Verifier using the real wall clock and a no-op logger.
func New(s store.Store, f fetcher.Fetcher) *Verifier {
	return &Verifier{Store: s, Fetcher: f, Clock: clockwork.NewRealClock(), Log: log.NopLogger{}}
}

// Verify checks a positive assertion per OpenID Authentication 1.1 §6.1/§7:
// required fields, identity/delegate match, then either local signature
// verification (§7.2) or the check_authentication fallback (§7.1). fields
// is the token-bound endpoint selection from begin; query is the full
// openid.* query string the provider redirected the browser to.
func (v *Verifier) Verify(query url.Values, fields token.Fields) Result {
	identityURL := fields.IdentityURL

	if setupURL := query.Get("openid.user_setup_url"); setupURL != "" {
		return Result{Kind: KindSetupNeeded, IdentityURL: identityURL, SetupURL: setupURL}
	}

	for _, required := range []string{"openid.return_to", "openid.identity", "openid.assoc_handle"} {
		if query.Get(required) == "" {
			return failure(identityURL, "Missing required field")
		}
	}

	if query.Get("openid.identity") != fields.ServerID {
		return failure(identityURL, "Server ID (delegate) mismatch")
	}

	handle := query.Get("openid.assoc_handle")
	assoc, err := v.Store.GetAssociation(fields.ServerURL, handle)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return v.checkAuthentication(fields.ServerURL, identityURL, query)
	case err != nil:
		v.Log.Warnf("verify: association lookup failed: %v", err)
		return v.checkAuthentication(fields.ServerURL, identityURL, query)
	case assoc.ExpiresIn(v.Clock.Now().Unix()) <= 0:
		return failure(identityURL, "Association with "+fields.ServerURL+" expired")
	}

	return v.verifySignature(assoc, identityURL, query)
}

func (v *Verifier) verifySignature(assoc *store.Association, identityURL string, query url.Values) Result {
	signedListStr := query.Get("openid.signed")
	sig := query.Get("openid.sig")
	if signedListStr == "" || sig == "" {
		return failure(identityURL, "Missing argument signature")
	}

	signedList := strings.Split(signedListStr, ",")
	pairs := make([]kvform.Pair, len(signedList))
	for i, name := range signedList {
		pairs[i] = kvform.Pair{Key: name, Value: query.Get("openid." + name)}
	}
	body, err := kvform.Encode(pairs)
	if err != nil {
		return failure(identityURL, "Missing argument signature")
	}

	expected := crypto.HMACSHA1(assoc.Secret, body)
	got, err := base64.StdEncoding.DecodeString(sig)
	if err != nil || !crypto.ConstantTimeEqual(expected, got) {
		return failure(identityURL, "Bad signature")
	}

	return Result{Kind: KindSuccess, IdentityURL: identityURL, SignedArgs: signedArgs(signedList, query)}
}

// checkAuthentication implements the direct verification request of OpenID
// Authentication 1.1 §7.1: the dumb-mode recovery path entered whenever no
// matching association is cached.
func (v *Verifier) checkAuthentication(serverURL, identityURL string, query url.Values) Result {
	signedList := strings.Split(query.Get("openid.signed"), ",")
	members := map[string]bool{"assoc_handle": true, "sig": true, "signed": true, "invalidate_handle": true}
	for _, name := range signedList {
		members[name] = true
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := []kvform.Pair{{Key: "openid.mode", Value: "check_authentication"}}
	for _, k := range keys {
		if k == "openid.mode" {
			continue
		}
		name := strings.TrimPrefix(k, "openid.")
		if !members[name] {
			continue
		}
		pairs = append(pairs, kvform.Pair{Key: k, Value: query.Get(k)})
	}

	body, err := kvform.Encode(pairs)
	if err != nil {
		return failure(identityURL, "Server denied check_authentication")
	}

	resp, err := v.Fetcher.Post(serverURL, body)
	if err != nil || resp == nil || resp.StatusCode != 200 {
		return failure(identityURL, "Server denied check_authentication")
	}

	result := kvform.DecodeMap(resp.Body)
	if handle, ok := result["invalidate_handle"]; ok && handle != "" {
		if _, err := v.Store.RemoveAssociation(serverURL, handle); err != nil {
			v.Log.Warnf("verify: invalidating handle %s failed: %v", handle, err)
		}
	}

	if result["is_valid"] != "true" {
		return failure(identityURL, "Server denied check_authentication")
	}

	return Result{Kind: KindSuccess, IdentityURL: identityURL, SignedArgs: signedArgs(signedList, query)}
}

func signedArgs(signedList []string, query url.Values) map[string]string {
	args := make(map[string]string, len(signedList))
	for _, name := range signedList {
		args[name] = query.Get("openid." + name)
	}
	return args
}
