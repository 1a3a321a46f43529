package main

import (
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/dexidp/openid1/session"
)

const sessionCookieName = "openid1demo_sid"

// cookieSessions hands out a ConsumerFacade-scoped session.Session backed
// by a server-side map, keyed by an opaque id stored in a cookie. This is a
// demo convenience, not a production session store: it never expires
// entries and holds everything in memory.
type cookieSessions struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newCookieSessions() *cookieSessions {
	return &cookieSessions{data: map[string]map[string]string{}}
}

// For returns the session.Session for the request, creating and setting a
// new session cookie on w if the request carried none.
func (c *cookieSessions) For(w http.ResponseWriter, r *http.Request) session.Session {
	id := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = cookie.Value
	}

	c.mu.Lock()
	_, ok := c.data[id]
	c.mu.Unlock()

	if id == "" || !ok {
		id = uuid.NewString()
		c.mu.Lock()
		c.data[id] = map[string]string{}
		c.mu.Unlock()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
		})
	}

	return &cookieSession{store: c, id: id}
}

type cookieSession struct {
	store *cookieSessions
	id    string
}

func (s *cookieSession) Get(key string) (string, bool) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	v, ok := s.store.data[s.id][key]
	return v, ok
}

func (s *cookieSession) Set(key, value string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.data[s.id][key] = value
	return nil
}

func (s *cookieSession) Del(key string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.data[s.id], key)
	return nil
}
