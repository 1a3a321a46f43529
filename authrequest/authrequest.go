// Package authrequest builds the browser-redirect URL that starts a
// checkid_setup or checkid_immediate round trip with the provider.
package authrequest

import (
	"fmt"
	"net/url"

	"github.com/dexidp/openid1/discovery"
	"github.com/dexidp/openid1/store"
)

// Builder assembles the provider redirect URL for one discovered
// endpoint. ExtensionArgs are already keyed as "openid.<ns>.<key>" and are
// merged in last, so they can override anything the builder itself sets.
type Builder struct {
	Endpoint      discovery.ServiceEndpoint
	Association   *store.Association // nil => dumb-mode request, no assoc_handle
	ReturnToArgs  url.Values
	ExtensionArgs url.Values
}

// NewBuilder returns a Builder with empty extension and return-to args.
func NewBuilder(endpoint discovery.ServiceEndpoint) *Builder {
	return &Builder{
		Endpoint:      endpoint,
		ReturnToArgs:  url.Values{},
		ExtensionArgs: url.Values{},
	}
}

// AddExtensionArg records openid.<namespace>.<key> = value, per the
// extension mechanism of OpenID Authentication 1.1 §8. Namespace and key
// are opaque strings; an empty namespace is rejected since it would
// produce an unparseable "openid..key" field.
func (b *Builder) AddExtensionArg(namespace, key, value string) error {
	if namespace == "" {
		return fmt.Errorf("authrequest: extension namespace must not be empty")
	}
	b.ExtensionArgs.Set(fmt.Sprintf("openid.%s.%s", namespace, key), value)
	return nil
}

// RedirectURL assembles the full provider redirect: endpoint.ServerURL
// with the checkid query parameters, trust_root, the (possibly
// assoc_handle-bearing) association state, return_to with ReturnToArgs
// appended, and ExtensionArgs merged in last.
func (b *Builder) RedirectURL(trustRoot, returnTo string, immediate bool) (string, error) {
	mode := "checkid_setup"
	if immediate {
		mode = "checkid_immediate"
	}

	rt, err := appendArgs(returnTo, b.ReturnToArgs)
	if err != nil {
		return "", fmt.Errorf("authrequest: building return_to: %w", err)
	}

	base, err := url.Parse(b.Endpoint.ServerURL)
	if err != nil {
		return "", fmt.Errorf("authrequest: parsing server_url: %w", err)
	}
	q := base.Query()
	q.Set("openid.mode", mode)
	q.Set("openid.identity", b.Endpoint.ServerID)
	q.Set("openid.return_to", rt)
	q.Set("openid.trust_root", trustRoot)
	if b.Association != nil {
		q.Set("openid.assoc_handle", b.Association.Handle)
	}
	for k, vs := range b.ExtensionArgs {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func appendArgs(raw string, extra url.Values) (string, error) {
	if len(extra) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
