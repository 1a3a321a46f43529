// Package conformance provides black-box conformance tests any
// store.Store implementation must pass, independent of its backend.
package conformance

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/dexidp/openid1/store"
)

type subTest struct {
	name string
	run  func(t *testing.T, s store.Store)
}

// RunTests runs the full conformance suite against a fresh store.Store
// returned by newStore for each subtest.
func RunTests(t *testing.T, newStore func() store.Store) {
	tests := []subTest{
		{"AssociationCRUD", testAssociationCRUD},
		{"AssociationLongestLived", testAssociationLongestLived},
		{"AssociationNotFound", testAssociationNotFound},
		{"NonceOneShot", testNonceOneShot},
		{"AuthKeyStable", testAuthKeyStable},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.run(t, newStore())
		})
	}
}

func testAssociationCRUD(t *testing.T, s store.Store) {
	if s.IsDumb() {
		t.Skip("dumb store never persists associations")
	}

	a := &store.Association{
		Handle:          store.NewID(),
		Secret:          []byte("0123456789012345678"),
		AssocType:       "HMAC-SHA1",
		IssuedAt:        1000,
		LifetimeSeconds: 3600,
	}
	if err := s.StoreAssociation("https://op.example/", a); err != nil {
		t.Fatalf("StoreAssociation: %v", err)
	}

	got, err := s.GetAssociation("https://op.example/", a.Handle)
	if err != nil {
		t.Fatalf("GetAssociation: %v", err)
	}
	if diff := pretty.Compare(a, got); diff != "" {
		t.Fatalf("round-tripped association differs: %s", diff)
	}

	removed, err := s.RemoveAssociation("https://op.example/", a.Handle)
	if err != nil {
		t.Fatalf("RemoveAssociation: %v", err)
	}
	if !removed {
		t.Fatalf("RemoveAssociation reported no prior association")
	}

	if _, err := s.GetAssociation("https://op.example/", a.Handle); err != store.ErrNotFound {
		t.Fatalf("GetAssociation after removal: got %v, want store.ErrNotFound", err)
	}
}

func testAssociationLongestLived(t *testing.T, s store.Store) {
	if s.IsDumb() {
		t.Skip("dumb store never persists associations")
	}

	shortLived := &store.Association{Handle: "h1", Secret: []byte("01234567890123456789"), IssuedAt: 1000, LifetimeSeconds: 100}
	longLived := &store.Association{Handle: "h2", Secret: []byte("01234567890123456789"), IssuedAt: 1000, LifetimeSeconds: 3600}
	if err := s.StoreAssociation("https://op.example/", shortLived); err != nil {
		t.Fatalf("StoreAssociation(shortLived): %v", err)
	}
	if err := s.StoreAssociation("https://op.example/", longLived); err != nil {
		t.Fatalf("StoreAssociation(longLived): %v", err)
	}

	got, err := s.GetAssociation("https://op.example/", "")
	if err != nil {
		t.Fatalf("GetAssociation(handle=\"\"): %v", err)
	}
	if got.Handle != longLived.Handle {
		t.Fatalf("GetAssociation(handle=\"\") = %q, want the longer-lived association %q", got.Handle, longLived.Handle)
	}
}

func testAssociationNotFound(t *testing.T, s store.Store) {
	if _, err := s.GetAssociation("https://op.example/", "nonexistent"); err != store.ErrNotFound {
		t.Fatalf("GetAssociation for an unknown handle: got %v, want store.ErrNotFound", err)
	}
	removed, err := s.RemoveAssociation("https://op.example/", "nonexistent")
	if err != nil {
		t.Fatalf("RemoveAssociation for an unknown handle: %v", err)
	}
	if removed {
		t.Fatalf("RemoveAssociation reported removing a handle that was never stored")
	}
}

func testNonceOneShot(t *testing.T, s store.Store) {
	const nonce = "abc123"
	if err := s.StoreNonce(nonce); err != nil {
		t.Fatalf("StoreNonce: %v", err)
	}

	ok, err := s.UseNonce(nonce)
	if err != nil {
		t.Fatalf("UseNonce (first): %v", err)
	}
	if !ok {
		t.Fatalf("UseNonce (first) reported the nonce absent")
	}

	ok, err = s.UseNonce(nonce)
	if err != nil {
		t.Fatalf("UseNonce (second): %v", err)
	}
	if ok {
		t.Fatalf("UseNonce (second) redeemed the same nonce twice")
	}
}

func testAuthKeyStable(t *testing.T, s store.Store) {
	k1, err := s.AuthKey()
	if err != nil {
		t.Fatalf("AuthKey: %v", err)
	}
	k2, err := s.AuthKey()
	if err != nil {
		t.Fatalf("AuthKey (second call): %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatalf("AuthKey changed between calls: the token codec requires a stable key for a store's lifetime")
	}
	if len(k1) == 0 {
		t.Fatalf("AuthKey returned an empty key")
	}
}
