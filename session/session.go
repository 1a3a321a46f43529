// Package session defines the abstract key/value contract the consumer
// facade uses to carry state across the begin/complete HTTP requests of a
// single end user. The core packages carry no implementation; the demo
// command, cmd/openid1demo, has an in-memory, cookie-keyed one.
package session

// Session is a per-request string key/value collaborator. The facade uses
// it to stash exactly one outstanding token, the nonce and return_to issued
// with it, and the discovery manager state, all serialized to strings by
// the facade.
type Session interface {
	// Get returns the value stored under key, and whether it was present.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any prior value.
	Set(key, value string) error

	// Del removes key. Deleting an absent key is not an error.
	Del(key string) error
}
