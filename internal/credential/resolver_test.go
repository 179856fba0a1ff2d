// ABOUTME: Tests for outbound credential resolution
// ABOUTME: Covers the three auth modes, token caching, refresh, and singleflight

package credential

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a2a-gateway/internal/auth"
	"github.com/2389/a2a-gateway/internal/registry"
)

func newTestResolver() *Resolver {
	return NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func tokenServer(t *testing.T, calls *atomic.Int32, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		n := calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		require.NoError(t, req.ParseForm())
		assert.Equal(t, "client_credentials", req.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func oauthConn(name, tokenURL string) *registry.Connection {
	return &registry.Connection{
		Name: name,
		Auth: registry.AuthStrategy{
			Mode:          registry.ModeOAuthClientCredentials,
			ClientID:      "svc-client",
			ClientSecret:  "svc-secret",
			TokenEndpoint: tokenURL,
		},
	}
}

func TestBearer_Passthrough(t *testing.T) {
	r := newTestResolver()
	conn := &registry.Connection{Name: "echo-a2a", Auth: registry.AuthStrategy{Mode: registry.ModePassthrough}}

	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "u@example.com", Token: "caller-token"})
	tok, err := r.Bearer(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "caller-token", tok)
}

func TestBearer_PassthroughWithoutTokenFails(t *testing.T) {
	r := newTestResolver()
	conn := &registry.Connection{Name: "echo-a2a", Auth: registry.AuthStrategy{Mode: registry.ModePassthrough}}

	_, err := r.Bearer(context.Background(), conn)
	assert.ErrorIs(t, err, ErrNoCallerToken)

	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "u@example.com"})
	_, err = r.Bearer(ctx, conn)
	assert.ErrorIs(t, err, ErrNoCallerToken)
}

func TestBearer_StaticBearer(t *testing.T) {
	r := newTestResolver()
	conn := &registry.Connection{Name: "echo-a2a", Auth: registry.AuthStrategy{
		Mode:        registry.ModeStaticBearer,
		BearerToken: "secret-123",
	}}

	tok, err := r.Bearer(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "secret-123", tok)
}

func TestBearer_OAuthExchangeAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, 0)
	r := newTestResolver()
	conn := oauthConn("calc-a2a", srv.URL)
	ctx := context.Background()

	tok, err := r.Bearer(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = r.Bearer(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBearer_OAuthRefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, 0)
	r := newTestResolver()
	conn := oauthConn("calc-a2a", srv.URL)

	// Seed a token with less than a quarter of its lifetime left.
	r.mu.Lock()
	r.tokens[conn.Name] = &cachedToken{
		accessToken: "stale",
		expiresAt:   time.Now().Add(10 * time.Second),
		lifetime:    time.Hour,
	}
	r.mu.Unlock()

	tok, err := r.Bearer(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBearer_OAuthConcurrentCallsCollapse(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, 50*time.Millisecond)
	r := newTestResolver()
	conn := oauthConn("calc-a2a", srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := r.Bearer(context.Background(), conn)
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestBearer_OAuthTokensAreScopedPerConnection(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, 0)
	r := newTestResolver()
	ctx := context.Background()

	tokA, err := r.Bearer(ctx, oauthConn("calc-a2a", srv.URL))
	require.NoError(t, err)
	tokB, err := r.Bearer(ctx, oauthConn("plot-a2a", srv.URL))
	require.NoError(t, err)

	assert.NotEqual(t, tokA, tokB)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBearer_OAuthEndpointFailureIsUpstreamAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestResolver()
	_, err := r.Bearer(context.Background(), oauthConn("calc-a2a", srv.URL))
	assert.ErrorIs(t, err, ErrUpstreamAuth)
}

func TestBearer_UnreachableEndpointIsUpstreamAuth(t *testing.T) {
	r := newTestResolver()
	_, err := r.Bearer(context.Background(), oauthConn("calc-a2a", "http://127.0.0.1:1/oidc/token"))
	assert.ErrorIs(t, err, ErrUpstreamAuth)
}

func TestInvalidate(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, 0)
	r := newTestResolver()
	conn := oauthConn("calc-a2a", srv.URL)
	ctx := context.Background()

	_, err := r.Bearer(ctx, conn)
	require.NoError(t, err)

	r.Invalidate(conn)

	tok, err := r.Bearer(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}
