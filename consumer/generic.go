package consumer

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/dexidp/openid1/association"
	"github.com/dexidp/openid1/discovery"
	"github.com/dexidp/openid1/fetcher"
	"github.com/dexidp/openid1/nonceauth"
	"github.com/dexidp/openid1/pkg/log"
	"github.com/dexidp/openid1/store"
	"github.com/dexidp/openid1/token"
	"github.com/dexidp/openid1/verify"
)

// GenericConsumer holds the collaborators that are safe to share across
// many requests: it carries no per-request state. One GenericConsumer is
// typically constructed at process startup and handed to a fresh
// ConsumerFacade for every incoming request.
type GenericConsumer struct {
	Store     store.Store
	Fetcher   fetcher.Fetcher
	Discovery discovery.Discoverer
	Clock     clockwork.Clock
	Log       log.Logger

	TokenCodec   *token.Codec
	Association  *association.Engine
	Verifier     *verify.Verifier
	NonceChecker *nonceauth.Checker

	// Dumb reports whether this consumer operates in dumb mode: the
	// store advertises IsDumb(), so associations are never cached and
	// every verification goes through check_authentication.
	Dumb bool
}

// New constructs a GenericConsumer. s and d must be non-nil: this is a
// configuration error raised here, not at request time, because a nil
// store makes every subsequent operation meaningless.
func New(s store.Store, f fetcher.Fetcher, d discovery.Discoverer) (*GenericConsumer, error) {
	if s == nil {
		return nil, fmt.Errorf("openid1: consumer requires a non-nil Store")
	}
	if d == nil {
		return nil, fmt.Errorf("openid1: consumer requires a non-nil Discoverer")
	}

	authKey, err := s.AuthKey()
	if err != nil {
		return nil, fmt.Errorf("openid1: reading auth key: %w", err)
	}

	clock := clockwork.NewRealClock()
	logger := log.Logger(log.NopLogger{})

	tc := token.New(authKey)
	tc.Clock = clock

	assoc := association.New(s, f)
	assoc.Clock = clock
	assoc.Log = logger

	v := verify.New(s, f)
	v.Clock = clock
	v.Log = logger

	return &GenericConsumer{
		Store:        s,
		Fetcher:      f,
		Discovery:    d,
		Clock:        clock,
		Log:          logger,
		TokenCodec:   tc,
		Association:  assoc,
		Verifier:     v,
		NonceChecker: &nonceauth.Checker{Store: s},
		Dumb:         s.IsDumb(),
	}, nil
}

// SetLogger swaps the logger used by the consumer and every collaborator
// it owns.
func (c *GenericConsumer) SetLogger(l log.Logger) {
	c.Log = l
	c.Association.Log = l
	c.Verifier.Log = l
}
