// ABOUTME: Tests for option-bag decoding and connection helpers
// ABOUTME: Covers strategy selection order and card path defaults

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a2a-gateway/internal/a2a"
)

func TestDecodeOptions_Passthrough(t *testing.T) {
	host, cardPath, strategy, err := DecodeOptions(map[string]string{
		"host": "http://echo.internal:8080",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://echo.internal:8080", host)
	assert.Equal(t, a2a.WellKnownCardPath, cardPath)
	assert.Equal(t, ModePassthrough, strategy.Mode)
}

func TestDecodeOptions_PlaceholderTokensArePassthrough(t *testing.T) {
	for _, token := range []string{"passthrough", "unused", "none", "placeholder", "PASSTHROUGH"} {
		_, _, strategy, err := DecodeOptions(map[string]string{
			"host":         "http://echo.internal",
			"bearer_token": token,
		})
		require.NoError(t, err, token)
		assert.Equal(t, ModePassthrough, strategy.Mode, token)
		assert.Empty(t, strategy.BearerToken, token)
	}
}

func TestDecodeOptions_StaticBearer(t *testing.T) {
	_, _, strategy, err := DecodeOptions(map[string]string{
		"host":         "http://echo.internal",
		"bearer_token": "secret-123",
	})
	require.NoError(t, err)
	assert.Equal(t, ModeStaticBearer, strategy.Mode)
	assert.Equal(t, "secret-123", strategy.BearerToken)
}

func TestDecodeOptions_OAuth(t *testing.T) {
	_, _, strategy, err := DecodeOptions(map[string]string{
		"host":           "http://calc.internal",
		"client_id":      "svc-client",
		"client_secret":  "svc-secret",
		"token_endpoint": "http://idp.internal/oidc/token",
		"oauth_scope":    "all-apis",
	})
	require.NoError(t, err)
	assert.Equal(t, ModeOAuthClientCredentials, strategy.Mode)
	assert.Equal(t, "svc-client", strategy.ClientID)
	assert.Equal(t, "svc-secret", strategy.ClientSecret)
	assert.Equal(t, "http://idp.internal/oidc/token", strategy.TokenEndpoint)
	assert.Equal(t, "all-apis", strategy.Scope)
}

func TestDecodeOptions_OAuthBeatsBearerToken(t *testing.T) {
	_, _, strategy, err := DecodeOptions(map[string]string{
		"host":           "http://calc.internal",
		"bearer_token":   "ignored",
		"client_id":      "svc-client",
		"client_secret":  "svc-secret",
		"token_endpoint": "http://idp.internal/oidc/token",
	})
	require.NoError(t, err)
	assert.Equal(t, ModeOAuthClientCredentials, strategy.Mode)
}

func TestDecodeOptions_PartialOAuthFails(t *testing.T) {
	_, _, _, err := DecodeOptions(map[string]string{
		"host":      "http://calc.internal",
		"client_id": "svc-client",
	})
	assert.ErrorIs(t, err, ErrBadOptions)
}

func TestDecodeOptions_MissingHostFails(t *testing.T) {
	_, _, _, err := DecodeOptions(map[string]string{
		"bearer_token": "secret",
	})
	assert.ErrorIs(t, err, ErrBadOptions)
}

func TestDecodeOptions_CardPathGetsLeadingSlash(t *testing.T) {
	_, cardPath, _, err := DecodeOptions(map[string]string{
		"host":      "http://echo.internal",
		"base_path": "custom/agent.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "/custom/agent.json", cardPath)
}

func TestConnectionAgentName(t *testing.T) {
	conn := &Connection{Name: "echo-a2a"}
	assert.Equal(t, "echo", conn.AgentName("-a2a"))

	plain := &Connection{Name: "warehouse"}
	assert.Equal(t, "warehouse", plain.AgentName("-a2a"))
}

func TestConnectionCardURL(t *testing.T) {
	conn := &Connection{Host: "http://echo.internal:8080/", CardPath: "/.well-known/agent.json"}
	assert.Equal(t, "http://echo.internal:8080/.well-known/agent.json", conn.CardURL())
}
