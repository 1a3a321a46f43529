package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dexidp/openid1/store"
	"github.com/dexidp/openid1/store/conformance"
)

func TestConformance(t *testing.T) {
	conformance.RunTests(t, func() store.Store {
		s, err := New(false)
		require.NoError(t, err)
		return s
	})
}

func TestConformanceDumb(t *testing.T) {
	conformance.RunTests(t, func() store.Store {
		s, err := New(true)
		require.NoError(t, err)
		return s
	})
}

func TestDumbStoreNeverCachesAssociations(t *testing.T) {
	s, err := New(true)
	require.NoError(t, err)
	require.True(t, s.IsDumb())

	a := &store.Association{Handle: "h", Secret: []byte("01234567890123456789"), LifetimeSeconds: 3600}
	require.NoError(t, s.StoreAssociation("https://op.example/", a))

	_, err = s.GetAssociation("https://op.example/", "h")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthKeyDiffersPerStore(t *testing.T) {
	s1, err := New(false)
	require.NoError(t, err)
	s2, err := New(false)
	require.NoError(t, err)

	k1, err := s1.AuthKey()
	require.NoError(t, err)
	k2, err := s2.AuthKey()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}
