// Package memory implements store.Store entirely in process memory. It is a
// reference fixture for tests and the demo command, not a production
// backend: every association and nonce is lost on restart, and nothing here
// is safe to share across processes.
package memory

import (
	"sync"

	"github.com/dexidp/openid1/pkg/crypto"
	"github.com/dexidp/openid1/store"
)

type assocEntry struct {
	serverURL string
	assoc     *store.Association
}

// Store is an in-memory store.Store. The zero value is not usable; use New.
type Store struct {
	mu sync.Mutex

	dumb   bool
	key    []byte
	assocs map[string]assocEntry // keyed by handle
	nonces map[string]struct{}
}

// New returns a Store with a freshly generated process auth key. If dumb is
// true, GetAssociation always reports store.ErrNotFound and StoreAssociation
// is a silent no-op, steering every verification through
// check_authentication.
func New(dumb bool) (*Store, error) {
	key, err := crypto.RandBytes(20)
	if err != nil {
		return nil, err
	}
	return &Store{
		dumb:   dumb,
		key:    key,
		assocs: map[string]assocEntry{},
		nonces: map[string]struct{}{},
	}, nil
}

func (s *Store) IsDumb() bool { return s.dumb }

func (s *Store) AuthKey() ([]byte, error) { return s.key, nil }

func (s *Store) GetAssociation(serverURL, handle string) (*store.Association, error) {
	if s.dumb {
		return nil, store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if handle != "" {
		e, ok := s.assocs[handle]
		if !ok || e.serverURL != serverURL {
			return nil, store.ErrNotFound
		}
		return e.assoc, nil
	}

	var best *store.Association
	for _, e := range s.assocs {
		if e.serverURL != serverURL {
			continue
		}
		if best == nil || e.assoc.IssuedAt+e.assoc.LifetimeSeconds > best.IssuedAt+best.LifetimeSeconds {
			best = e.assoc
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (s *Store) StoreAssociation(serverURL string, assoc *store.Association) error {
	if s.dumb {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assocs[assoc.Handle] = assocEntry{serverURL: serverURL, assoc: assoc}
	return nil
}

func (s *Store) RemoveAssociation(serverURL, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.assocs[handle]
	if !ok || e.serverURL != serverURL {
		return false, nil
	}
	delete(s.assocs, handle)
	return true, nil
}

func (s *Store) StoreNonce(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = struct{}{}
	return nil
}

func (s *Store) UseNonce(nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nonces[nonce]; !ok {
		return false, nil
	}
	delete(s.nonces, nonce)
	return true, nil
}
