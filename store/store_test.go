package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIDIsUniqueAndNonEmpty(t *testing.T) {
	a := NewID()
	b := NewID()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestAssociationExpiresIn(t *testing.T) {
	a := &Association{IssuedAt: 1000, LifetimeSeconds: 3600}
	require.Equal(t, int64(3600), a.ExpiresIn(1000))
	require.Equal(t, int64(0), a.ExpiresIn(4600))
	require.Equal(t, int64(-1), a.ExpiresIn(4601))
}
