package main

import (
	"github.com/dexidp/openid1/discovery"
)

// staticDiscoverer resolves identifiers through a fixed, config-supplied
// table. Real Yadis/HTML discovery is out of scope for this implementation;
// the demo only needs to prove the consumer state machine end to end
// against a small set of known providers.
type staticDiscoverer struct {
	endpoints map[string]Server
}

func newStaticDiscoverer(endpoints map[string]Server) *staticDiscoverer {
	return &staticDiscoverer{endpoints: endpoints}
}

func (d *staticDiscoverer) Discover(identifier string) (*discovery.ServiceEndpoint, error) {
	s, ok := d.endpoints[identifier]
	if !ok {
		return nil, nil
	}
	return &discovery.ServiceEndpoint{
		IdentityURL: orDefault(s.IdentityURL, identifier),
		ServerID:    orDefault(s.ServerID, identifier),
		ServerURL:   s.ServerURL,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
