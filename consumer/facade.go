package consumer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dexidp/openid1/authrequest"
	"github.com/dexidp/openid1/discovery"
	"github.com/dexidp/openid1/pkg/crypto"
	"github.com/dexidp/openid1/session"
	"github.com/dexidp/openid1/token"
	"github.com/dexidp/openid1/verify"
)

const (
	tokenKeySuffix    = "last_token"
	nonceKeySuffix    = "last_nonce"
	returnToKeySuffix = "last_return_to"
	nonceLength       = 8
)

// AuthRequest is what Begin hands back for the caller to redirect the
// user's browser to.
type AuthRequest struct {
	Endpoint    discovery.ServiceEndpoint
	RedirectURL string
	Nonce       string
}

// ConsumerFacade orchestrates begin/complete for a single HTTP request. It
// corresponds 1:1 to one request and must never be shared across
// requests; the GenericConsumer it wraps may be shared freely. KeyPrefix
// namespaces the session keys it reads and writes, so multiple facades
// (e.g. for different trust roots) can share one session safely.
type ConsumerFacade struct {
	Consumer  *GenericConsumer
	Session   session.Session
	KeyPrefix string
}

// NewFacade returns a ConsumerFacade for one request.
func NewFacade(consumer *GenericConsumer, sess session.Session, keyPrefix string) *ConsumerFacade {
	return &ConsumerFacade{Consumer: consumer, Session: sess, KeyPrefix: keyPrefix}
}

func (f *ConsumerFacade) key(suffix string) string {
	return f.KeyPrefix + suffix
}

// Begin starts authentication for userURL. It returns (nil, nil) if
// discovery found no usable endpoint — no error is raised, an absent
// AuthRequest signals it. trustRoot and returnTo are the caller's own
// site identity and the URL the provider should redirect back to;
// immediate selects checkid_immediate over checkid_setup per OpenID
// Authentication 1.1 §5.1.
func (f *ConsumerFacade) Begin(userURL, trustRoot, returnTo string, immediate bool) (*AuthRequest, error) {
	identifier := normalizeIdentifier(userURL)

	manager := discovery.Manager{Identifier: identifier, Stale: true}
	f.writeManager(manager)

	endpoint, err := f.Consumer.Discovery.Discover(identifier)
	if err != nil {
		return nil, fmt.Errorf("openid1: discovery failed: %w", err)
	}

	manager.Stale = false
	f.writeManager(manager)

	if endpoint == nil {
		return nil, nil
	}

	nonce, err := crypto.RandNonce(nonceLength)
	if err != nil {
		return nil, fmt.Errorf("openid1: generating nonce: %w", err)
	}
	if err := f.Consumer.Store.StoreNonce(nonce); err != nil {
		return nil, fmt.Errorf("openid1: storing nonce: %w", err)
	}

	assoc, err := f.Consumer.Association.Get(endpoint.ServerURL, false)
	if err != nil {
		return nil, fmt.Errorf("openid1: fetching association: %w", err)
	}

	builder := authrequest.NewBuilder(*endpoint)
	builder.Association = assoc
	builder.ReturnToArgs.Set("nonce", nonce)

	redirectURL, err := builder.RedirectURL(trustRoot, returnTo, immediate)
	if err != nil {
		return nil, fmt.Errorf("openid1: building redirect url: %w", err)
	}

	tok := f.Consumer.TokenCodec.Sign(fieldsOf(*endpoint))
	if err := f.Session.Set(f.key(tokenKeySuffix), tok); err != nil {
		return nil, fmt.Errorf("openid1: writing session token: %w", err)
	}
	// Record the return_to as issued, with the nonce appended, so a strict
	// return_to check compares against what the provider will echo.
	issuedReturnTo := returnTo
	if u, err := url.Parse(redirectURL); err == nil {
		issuedReturnTo = u.Query().Get("openid.return_to")
	}
	_ = f.Session.Set(f.key(nonceKeySuffix), nonce)
	_ = f.Session.Set(f.key(returnToKeySuffix), issuedReturnTo)

	return &AuthRequest{Endpoint: *endpoint, RedirectURL: redirectURL, Nonce: nonce}, nil
}

// Complete finishes authentication using the provider's redirect query.
// Every error path returns a KindFailure Response rather than a Go error:
// the core never panics or surfaces raw errors in the request path.
func (f *ConsumerFacade) Complete(query url.Values) Response {
	tokenStr, ok := f.Session.Get(f.key(tokenKeySuffix))
	if !ok {
		return failureResponse("", "No session state found")
	}
	defer func() { _ = f.Session.Del(f.key(tokenKeySuffix)) }()

	fields, tokenErr := f.Consumer.TokenCodec.Verify(tokenStr)

	mode := query.Get("openid.mode")
	var resp Response

	switch mode {
	case "cancel":
		resp = cancelResponse(fields.IdentityURL)
	case "error":
		resp = failureResponse(fields.IdentityURL, query.Get("openid.error"))
	case "id_res":
		if tokenErr != nil {
			resp = failureResponse("", "No session state found")
			break
		}
		resp = f.completeIDRes(query, fields)
	default:
		resp = failureResponse(fields.IdentityURL, fmt.Sprintf("Invalid openid.mode '%s'", mode))
	}

	if (resp.Kind == KindSuccess || resp.Kind == KindCancel) && resp.IdentityURL != "" {
		f.cleanupDiscoveryManager()
	}
	return resp
}

func (f *ConsumerFacade) completeIDRes(query url.Values, fields token.Fields) Response {
	result := f.Consumer.Verifier.Verify(query, fields)
	switch result.Kind {
	case verify.KindSetupNeeded:
		return setupNeededResponse(result.IdentityURL, result.SetupURL)
	case verify.KindFailure:
		return failureResponse(result.IdentityURL, result.Message)
	}

	issuedNonce, _ := f.Session.Get(f.key(nonceKeySuffix))
	issuedReturnTo, _ := f.Session.Get(f.key(returnToKeySuffix))
	returnTo := query.Get("openid.return_to")

	if err := f.Consumer.NonceChecker.Check(returnTo, issuedNonce, issuedReturnTo); err != nil {
		return failureResponse(result.IdentityURL, capitalize(err.Error()))
	}

	return successResponse(result.IdentityURL, result.SignedArgs)
}

func (f *ConsumerFacade) writeManager(m discovery.Manager) {
	_ = f.Session.Set(f.key("disco_identifier"), m.Identifier)
	stale := "false"
	if m.Stale {
		stale = "true"
	}
	_ = f.Session.Set(f.key("disco_stale"), stale)
}

// cleanupDiscoveryManager drops the discovery manager state once a flow
// concludes successfully or is explicitly cancelled, so a crash-recovered
// "stale" manager from a prior identifier never leaks into the next begin.
func (f *ConsumerFacade) cleanupDiscoveryManager() {
	_ = f.Session.Del(f.key("disco_identifier"))
	_ = f.Session.Del(f.key("disco_stale"))
}

func normalizeIdentifier(raw string) string {
	raw = strings.TrimSpace(raw)
	if isXRI(raw) {
		return raw
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

func isXRI(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '=', '@', '$', '+':
		return true
	}
	return strings.HasPrefix(s, "xri://")
}

func fieldsOf(e discovery.ServiceEndpoint) token.Fields {
	return token.Fields{IdentityURL: e.IdentityURL, ServerID: e.ServerID, ServerURL: e.ServerURL}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
