package verify

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/dexidp/openid1/fetcher"
	"github.com/dexidp/openid1/kvform"
	"github.com/dexidp/openid1/pkg/crypto"
	"github.com/dexidp/openid1/store"
	"github.com/dexidp/openid1/token"
)

type fakeStore struct {
	assoc           map[string]*store.Association // keyed by handle
	removedHandles  []string
	getAssocErr     error
}

func (s *fakeStore) GetAssociation(serverURL, handle string) (*store.Association, error) {
	if s.getAssocErr != nil {
		return nil, s.getAssocErr
	}
	a, ok := s.assoc[handle]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}
func (s *fakeStore) StoreAssociation(string, *store.Association) error { return nil }
func (s *fakeStore) RemoveAssociation(serverURL, handle string) (bool, error) {
	s.removedHandles = append(s.removedHandles, handle)
	delete(s.assoc, handle)
	return true, nil
}
func (s *fakeStore) StoreNonce(string) error      { return nil }
func (s *fakeStore) UseNonce(string) (bool, error) { return true, nil }
func (s *fakeStore) AuthKey() ([]byte, error)      { return []byte("k"), nil }
func (s *fakeStore) IsDumb() bool                  { return s.assoc == nil }

func signQuery(secret []byte, fields map[string]string, signed []string) url.Values {
	pairs := make([]kvform.Pair, len(signed))
	for i, name := range signed {
		pairs[i] = kvform.Pair{Key: name, Value: fields[name]}
	}
	body, _ := kvform.Encode(pairs)
	sig := crypto.HMACSHA1(secret, body)

	q := url.Values{}
	for k, v := range fields {
		q.Set("openid."+k, v)
	}
	q.Set("openid.signed", joinComma(signed))
	q.Set("openid.sig", base64.StdEncoding.EncodeToString(sig))
	return q
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func baseFields(assocHandle string) map[string]string {
	return map[string]string{
		"return_to":    "http://rp/return",
		"identity":     "http://example.com/",
		"assoc_handle": assocHandle,
	}
}

func TestVerifySmartSuccess(t *testing.T) {
	secret := make([]byte, 20)
	clock := clockwork.NewFakeClock()
	s := &fakeStore{assoc: map[string]*store.Association{
		"H": {Handle: "H", Secret: secret, LifetimeSeconds: 3600, IssuedAt: clock.Now().Unix()},
	}}
	v := New(s, nil)
	v.Clock = clock // issued at the fake clock's now, so expires_in = 3600 > 0

	signed := []string{"return_to", "identity", "assoc_handle"}
	q := signQuery(secret, baseFields("H"), signed)

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/", ServerID: "http://example.com/", ServerURL: "https://op.example/"})
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, "http://example.com/", res.IdentityURL)
	require.Equal(t, "http://example.com/", res.SignedArgs["identity"])
}

func TestVerifyBadSignatureFails(t *testing.T) {
	secret := make([]byte, 20)
	clock := clockwork.NewFakeClock()
	s := &fakeStore{assoc: map[string]*store.Association{"H": {Handle: "H", Secret: secret, LifetimeSeconds: 3600, IssuedAt: clock.Now().Unix()}}}
	v := New(s, nil)
	v.Clock = clock

	signed := []string{"return_to", "identity", "assoc_handle"}
	q := signQuery(secret, baseFields("H"), signed)
	q.Set("openid.identity", "http://tampered.example/") // note: must still equal ServerID to reach sig check
	q.Set("openid.sig", "AAAAAAAAAAAAAAAAAAAAAAAAAAA=")

	res := v.Verify(q, token.Fields{IdentityURL: "x", ServerID: "http://tampered.example/", ServerURL: "https://op.example/"})
	require.Equal(t, KindFailure, res.Kind)
	require.Equal(t, "Bad signature", res.Message)
}

func TestVerifyIdentityMismatch(t *testing.T) {
	secret := make([]byte, 20)
	s := &fakeStore{assoc: map[string]*store.Association{"H": {Handle: "H", Secret: secret, LifetimeSeconds: 3600}}}
	v := New(s, nil)
	v.Clock = clockwork.NewFakeClock()

	signed := []string{"return_to", "identity", "assoc_handle"}
	q := signQuery(secret, baseFields("H"), signed)

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/", ServerID: "http://different.example/", ServerURL: "https://op.example/"})
	require.Equal(t, KindFailure, res.Kind)
	require.Equal(t, "Server ID (delegate) mismatch", res.Message)
}

func TestVerifyExpiredAssociation(t *testing.T) {
	secret := make([]byte, 20)
	s := &fakeStore{assoc: map[string]*store.Association{"H": {Handle: "H", Secret: secret, LifetimeSeconds: -1}}}
	v := New(s, nil)
	v.Clock = clockwork.NewFakeClock()

	signed := []string{"return_to", "identity", "assoc_handle"}
	q := signQuery(secret, baseFields("H"), signed)

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/", ServerID: "http://example.com/", ServerURL: "https://op.example/"})
	require.Equal(t, KindFailure, res.Kind)
	require.Contains(t, res.Message, "expired")
}

func TestVerifySetupNeeded(t *testing.T) {
	v := New(&fakeStore{assoc: map[string]*store.Association{}}, nil)
	q := url.Values{}
	q.Set("openid.user_setup_url", "https://op.example/setup?x=1")

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/"})
	require.Equal(t, KindSetupNeeded, res.Kind)
	require.Equal(t, "https://op.example/setup?x=1", res.SetupURL)
}

func TestVerifyMissingRequiredField(t *testing.T) {
	v := New(&fakeStore{assoc: map[string]*store.Association{}}, nil)
	q := url.Values{}
	q.Set("openid.return_to", "http://rp/return")
	// missing identity, assoc_handle

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/"})
	require.Equal(t, KindFailure, res.Kind)
	require.Equal(t, "Missing required field", res.Message)
}

type fakeDumbFetcher struct {
	isValid          bool
	invalidateHandle string
}

func (f fakeDumbFetcher) Post(url string, body []byte) (*fetcher.Response, error) {
	valid := "false"
	if f.isValid {
		valid = "true"
	}
	pairs := []kvform.Pair{{Key: "is_valid", Value: valid}}
	if f.invalidateHandle != "" {
		pairs = append(pairs, kvform.Pair{Key: "invalidate_handle", Value: f.invalidateHandle})
	}
	encoded, _ := kvform.Encode(pairs)
	return &fetcher.Response{StatusCode: 200, Body: encoded}, nil
}

func TestVerifyDumbModeSuccess(t *testing.T) {
	s := &fakeStore{} // IsDumb() == assoc == nil -> GetAssociation always ErrNotFound
	v := New(s, fakeDumbFetcher{isValid: true})

	signed := []string{"return_to", "identity", "assoc_handle"}
	fields := baseFields("H")
	q := url.Values{}
	for k, val := range fields {
		q.Set("openid."+k, val)
	}
	q.Set("openid.signed", joinComma(signed))
	q.Set("openid.sig", "ignored-in-dumb-mode")

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/", ServerID: "http://example.com/", ServerURL: "https://op.example/"})
	require.Equal(t, KindSuccess, res.Kind)
}

func TestVerifyDumbModeFailure(t *testing.T) {
	s := &fakeStore{}
	v := New(s, fakeDumbFetcher{isValid: false})

	signed := []string{"return_to", "identity", "assoc_handle"}
	fields := baseFields("H")
	q := url.Values{}
	for k, val := range fields {
		q.Set("openid."+k, val)
	}
	q.Set("openid.signed", joinComma(signed))
	q.Set("openid.sig", "whatever")

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/", ServerID: "http://example.com/", ServerURL: "https://op.example/"})
	require.Equal(t, KindFailure, res.Kind)
	require.Equal(t, "Server denied check_authentication", res.Message)
}

func TestVerifyDumbModeInvalidatesHandle(t *testing.T) {
	s := &fakeStore{assoc: nil}
	v := New(s, fakeDumbFetcher{isValid: true, invalidateHandle: "stale-handle"})
	storeWithHandle := &fakeStore{} // still dumb (nil assoc map reported by IsDumb based on nil check)
	v.Store = storeWithHandle

	signed := []string{"return_to", "identity", "assoc_handle"}
	fields := baseFields("H")
	q := url.Values{}
	for k, val := range fields {
		q.Set("openid."+k, val)
	}
	q.Set("openid.signed", joinComma(signed))
	q.Set("openid.sig", "whatever")

	res := v.Verify(q, token.Fields{IdentityURL: "http://example.com/", ServerID: "http://example.com/", ServerURL: "https://op.example/"})
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, []string{"stale-handle"}, storeWithHandle.removedHandles)
}
