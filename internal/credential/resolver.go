// ABOUTME: Outbound credential resolution for the three connection auth modes
// ABOUTME: Caches OAuth tokens per connection and collapses concurrent fetches

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/2389/a2a-gateway/internal/auth"
	"github.com/2389/a2a-gateway/internal/registry"
)

// Credential resolution errors. Both surface to callers as upstream
// authentication failures, never as access denials.
var (
	ErrUpstreamAuth  = errors.New("upstream authentication failed")
	ErrNoCallerToken = errors.New("connection requires the caller's token but none was presented")
)

// defaultTokenLifetime is assumed when a token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// Resolver produces the bearer token to send to a connection's backend.
//
// OAuth client-credentials tokens are cached per connection and refreshed
// once less than a quarter of their granted lifetime remains, so a token is
// never sent when it is about to expire mid-request. Concurrent refreshes
// for the same connection collapse into one token endpoint call.
type Resolver struct {
	logger *slog.Logger
	client *http.Client

	mu     sync.Mutex
	tokens map[string]*cachedToken
	sf     singleflight.Group
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
	lifetime    time.Duration
}

func (t *cachedToken) fresh(now time.Time) bool {
	return t.expiresAt.Sub(now) > t.lifetime/4
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With("component", "credential"),
		client: &http.Client{Timeout: 15 * time.Second},
		tokens: make(map[string]*cachedToken),
	}
}

// Bearer returns the bearer token to present to conn's backend, without the
// "Bearer " prefix. The returned value must never be logged in full.
func (r *Resolver) Bearer(ctx context.Context, conn *registry.Connection) (string, error) {
	switch conn.Auth.Mode {
	case registry.ModePassthrough:
		id := auth.FromContext(ctx)
		if id == nil || id.Token == "" {
			return "", ErrNoCallerToken
		}
		return id.Token, nil

	case registry.ModeStaticBearer:
		return conn.Auth.BearerToken, nil

	case registry.ModeOAuthClientCredentials:
		return r.oauthToken(ctx, conn)

	default:
		return "", fmt.Errorf("%w: unknown auth mode %q", ErrUpstreamAuth, conn.Auth.Mode)
	}
}

func (r *Resolver) oauthToken(ctx context.Context, conn *registry.Connection) (string, error) {
	now := time.Now()

	r.mu.Lock()
	cached, ok := r.tokens[conn.Name]
	r.mu.Unlock()
	if ok && cached.fresh(now) {
		return cached.accessToken, nil
	}

	token, err, _ := r.sf.Do(conn.Name, func() (any, error) {
		return r.fetchToken(ctx, conn)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (r *Resolver) fetchToken(ctx context.Context, conn *registry.Connection) (string, error) {
	cfg := &clientcredentials.Config{
		ClientID:     conn.Auth.ClientID,
		ClientSecret: conn.Auth.ClientSecret,
		TokenURL:     conn.Auth.TokenEndpoint,
	}
	if conn.Auth.Scope != "" {
		cfg.Scopes = []string{conn.Auth.Scope}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	tok, err := cfg.Token(ctx)
	if err != nil {
		r.logger.Warn("token exchange failed",
			"connection", conn.Name,
			"token_endpoint", conn.Auth.TokenEndpoint,
			"error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}

	lifetime := defaultTokenLifetime
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultTokenLifetime)
	} else {
		lifetime = time.Until(expiresAt)
	}

	r.mu.Lock()
	r.tokens[conn.Name] = &cachedToken{
		accessToken: tok.AccessToken,
		expiresAt:   expiresAt,
		lifetime:    lifetime,
	}
	r.mu.Unlock()

	r.logger.Debug("token refreshed",
		"connection", conn.Name,
		"expires_at", expiresAt)

	return tok.AccessToken, nil
}

// Invalidate drops any cached token for conn, forcing the next Bearer call
// to exchange again.
func (r *Resolver) Invalidate(conn *registry.Connection) {
	r.mu.Lock()
	delete(r.tokens, conn.Name)
	r.mu.Unlock()
}
