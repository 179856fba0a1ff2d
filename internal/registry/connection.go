// ABOUTME: Connection descriptor and outbound auth strategy model
// ABOUTME: Decodes the registration option bag into a tagged union exactly once

package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2389/a2a-gateway/internal/a2a"
)

// Mode selects how the gateway authenticates to a connection's backend.
type Mode string

const (
	// ModePassthrough forwards the caller's own bearer token unchanged.
	ModePassthrough Mode = "passthrough"
	// ModeStaticBearer sends a pre-configured secret.
	ModeStaticBearer Mode = "static-bearer"
	// ModeOAuthClientCredentials exchanges a client id/secret for a token.
	ModeOAuthClientCredentials Mode = "oauth-client-credentials"
)

// Option bag keys written by the external registration action.
const (
	optHost          = "host"
	optBasePath      = "base_path"
	optBearerToken   = "bearer_token"
	optClientID      = "client_id"
	optClientSecret  = "client_secret"
	optTokenEndpoint = "token_endpoint"
	optOAuthScope    = "oauth_scope"
)

// bearer_token values that mean "no static token configured".
var placeholderTokens = map[string]struct{}{
	"":            {},
	"passthrough": {},
	"unused":      {},
	"none":        {},
	"placeholder": {},
}

// ErrBadOptions is returned when a connection's option bag cannot be decoded.
var ErrBadOptions = errors.New("invalid connection options")

// AuthStrategy is the decoded outbound credential configuration for a
// connection. Exactly one mode is active; the other fields are empty.
// Secrets held here are never logged and never serialized to callers.
type AuthStrategy struct {
	Mode Mode

	// static-bearer
	BearerToken string

	// oauth-client-credentials
	ClientID      string
	ClientSecret  string
	TokenEndpoint string
	Scope         string
}

// Connection is a registered pointer to a backend agent. Read-only to the
// gateway; created and updated by an external registration action.
type Connection struct {
	Name        string
	Description string
	Owner       string
	Host        string
	CardPath    string
	Auth        AuthStrategy
}

// AgentName returns the caller-facing agent name: the connection name with
// the discovery suffix stripped.
func (c *Connection) AgentName(suffix string) string {
	return strings.TrimSuffix(c.Name, suffix)
}

// CardURL returns the absolute URL of the connection's agent card.
func (c *Connection) CardURL() string {
	return strings.TrimSuffix(c.Host, "/") + c.CardPath
}

// DecodeOptions decodes a registration option bag into host, card path, and
// auth strategy. It is called once when a connection is loaded from the
// metadata store; nothing downstream re-interprets raw options.
//
// Strategy selection, in priority order: a complete OAuth triple wins, then a
// real (non-placeholder) bearer token, then caller-token passthrough.
func DecodeOptions(options map[string]string) (host, cardPath string, strategy AuthStrategy, err error) {
	host = options[optHost]
	if host == "" {
		return "", "", AuthStrategy{}, fmt.Errorf("%w: host is required", ErrBadOptions)
	}

	cardPath = options[optBasePath]
	if cardPath == "" {
		cardPath = a2a.WellKnownCardPath
	}
	if !strings.HasPrefix(cardPath, "/") {
		cardPath = "/" + cardPath
	}

	clientID := options[optClientID]
	clientSecret := options[optClientSecret]
	tokenEndpoint := options[optTokenEndpoint]

	switch {
	case clientID != "" && clientSecret != "" && tokenEndpoint != "":
		strategy = AuthStrategy{
			Mode:          ModeOAuthClientCredentials,
			ClientID:      clientID,
			ClientSecret:  clientSecret,
			TokenEndpoint: tokenEndpoint,
			Scope:         options[optOAuthScope],
		}
	case clientID != "" || clientSecret != "" || tokenEndpoint != "":
		return "", "", AuthStrategy{}, fmt.Errorf("%w: partial oauth configuration (client_id, client_secret, and token_endpoint are all required)", ErrBadOptions)
	default:
		token := options[optBearerToken]
		if _, placeholder := placeholderTokens[strings.ToLower(token)]; placeholder {
			strategy = AuthStrategy{Mode: ModePassthrough}
		} else {
			strategy = AuthStrategy{Mode: ModeStaticBearer, BearerToken: token}
		}
	}

	return host, cardPath, strategy, nil
}
