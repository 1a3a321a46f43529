// Package association implements Diffie-Hellman association negotiation
// and caching: the smart-mode shared secret a consumer and provider agree
// on once and reuse across many signature verifications.
package association

import (
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/dexidp/openid1/fetcher"
	"github.com/dexidp/openid1/kvform"
	"github.com/dexidp/openid1/pkg/crypto"
	"github.com/dexidp/openid1/pkg/log"
	"github.com/dexidp/openid1/store"
)

const assocTypeHMACSHA1 = "HMAC-SHA1"
const sessionTypeDHSHA1 = "DH-SHA1"

// Engine negotiates, caches, and invalidates associations. In dumb mode
// (Store.IsDumb() == true) it never contacts the provider and Get always
// returns (nil, nil): the caller falls back to check_authentication.
type Engine struct {
	Store         store.Store
	Fetcher       fetcher.Fetcher
	Clock         clockwork.Clock
	Log           log.Logger
	TokenLifetime int64
	DH            *crypto.DiffieHellman
}

// New returns an Engine with the real wall clock, a no-op logger, the
// default OpenID 1.1 DH group, and a 300s token lifetime threshold for
// association replacement (matching token.DefaultLifetime).
func New(s store.Store, f fetcher.Fetcher) *Engine {
	return &Engine{
		Store:         s,
		Fetcher:       f,
		Clock:         clockwork.NewRealClock(),
		Log:           log.NopLogger{},
		TokenLifetime: 300,
		DH:            crypto.NewDiffieHellman(),
	}
}

// Get returns a usable association for serverURL, or nil if none is
// available (dumb mode, or the provider refused to associate). When
// replace is true and the cached association has TokenLifetime seconds or
// fewer left, a fresh one is negotiated instead of returning the stale
// one.
func (e *Engine) Get(serverURL string, replace bool) (*store.Association, error) {
	if e.Store.IsDumb() {
		return nil, nil
	}

	now := e.Clock.Now().Unix()
	existing, err := e.Store.GetAssociation(serverURL, "")
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Wrap(err, "association: lookup failed")
	}
	if existing != nil && (!replace || existing.ExpiresIn(now) > e.TokenLifetime) {
		return existing, nil
	}

	assoc, err := e.associate(serverURL)
	if err != nil {
		e.Log.Warnf("association: associate with %s failed: %v", serverURL, err)
		return nil, nil
	}
	return assoc, nil
}

// Invalidate removes the association with the given handle, e.g. after a
// provider's check_authentication response names it via invalidate_handle.
func (e *Engine) Invalidate(serverURL, handle string) error {
	_, err := e.Store.RemoveAssociation(serverURL, handle)
	return err
}

func (e *Engine) associate(serverURL string) (*store.Association, error) {
	private, err := e.DH.GeneratePrivate()
	if err != nil {
		return nil, errors.Wrap(err, "generating DH private value")
	}
	public := e.DH.Public(private)

	body, err := kvform.Encode([]kvform.Pair{
		{Key: "openid.mode", Value: "associate"},
		{Key: "openid.assoc_type", Value: assocTypeHMACSHA1},
		{Key: "openid.session_type", Value: sessionTypeDHSHA1},
		{Key: "openid.dh_modulus", Value: b64(crypto.BTWOC(e.DH.P))},
		{Key: "openid.dh_gen", Value: b64(crypto.BTWOC(e.DH.G))},
		{Key: "openid.dh_consumer_public", Value: b64(crypto.BTWOC(public))},
	})
	if err != nil {
		return nil, err
	}

	resp, err := e.Fetcher.Post(serverURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "posting associate request")
	}
	if resp == nil || resp.StatusCode != 200 {
		return nil, fmt.Errorf("association: associate request to %s failed (status %d)", serverURL, statusOf(resp))
	}

	fields := kvform.DecodeMap(resp.Body)
	assocType := fields["assoc_type"]
	handle := fields["assoc_handle"]
	if assocType == "" || handle == "" {
		return nil, errors.New("association: missing assoc_type or assoc_handle")
	}
	if assocType != assocTypeHMACSHA1 {
		return nil, fmt.Errorf("association: unsupported assoc_type %q", assocType)
	}

	sessionType := fields["session_type"]
	if sessionType != "" && sessionType != sessionTypeDHSHA1 {
		return nil, fmt.Errorf("association: unsupported session_type %q", sessionType)
	}

	secret, err := e.deriveSecret(sessionType, private, fields)
	if err != nil {
		return nil, err
	}

	lifetime, err := parseInt64(fields["expires_in"])
	if err != nil {
		return nil, errors.Wrap(err, "association: bad expires_in")
	}

	assoc := &store.Association{
		Handle:          handle,
		Secret:          secret,
		AssocType:       assocType,
		IssuedAt:        e.Clock.Now().Unix(),
		LifetimeSeconds: lifetime,
	}
	if err := e.Store.StoreAssociation(serverURL, assoc); err != nil {
		return nil, errors.Wrap(err, "storing association")
	}
	return assoc, nil
}

func (e *Engine) deriveSecret(sessionType string, private *big.Int, fields map[string]string) ([]byte, error) {
	if sessionType == "" {
		macKey, err := base64.StdEncoding.DecodeString(fields["mac_key"])
		if err != nil {
			return nil, errors.Wrap(err, "association: bad mac_key")
		}
		return macKey, nil
	}

	serverPublicBytes, err := base64.StdEncoding.DecodeString(fields["dh_server_public"])
	if err != nil {
		return nil, errors.Wrap(err, "association: bad dh_server_public")
	}
	encMacKey, err := base64.StdEncoding.DecodeString(fields["enc_mac_key"])
	if err != nil {
		return nil, errors.Wrap(err, "association: bad enc_mac_key")
	}

	serverPublic := new(big.Int).SetBytes(serverPublicBytes)
	shared := e.DH.Shared(private, serverPublic)
	k := crypto.SHA1(crypto.BTWOC(shared))
	if len(k) != len(encMacKey) {
		return nil, errors.New("association: DH output length mismatch")
	}
	return crypto.XOR(encMacKey, k), nil
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func statusOf(r *fetcher.Response) int {
	if r == nil {
		return 0
	}
	return r.StatusCode
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
