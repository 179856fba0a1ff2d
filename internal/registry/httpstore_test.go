// ABOUTME: Tests for the remote catalog client
// ABOUTME: Covers token forwarding, 404 mapping, and option decoding

package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a2a-gateway/internal/auth"
)

func TestHTTPStore_ListConnections(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, connectionsAPIPath, req.URL.Path)
		gotAuth = req.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"connections":[
			{"name":"echo-a2a","comment":"Echo","owner":"o@example.com","options":{"host":"http://echo.internal"}},
			{"name":"broken-a2a","comment":"","owner":"","options":{"bearer_token":"x"}}
		]}`))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "o@example.com", Token: "caller-token"})

	conns, err := store.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "echo-a2a", conns[0].Name)
	assert.Equal(t, ModePassthrough, conns[0].Auth.Mode)
	assert.Equal(t, "Bearer caller-token", gotAuth)
}

func TestHTTPStore_GetConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, connectionsAPIPath+"/echo-a2a", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"echo-a2a","comment":"Echo","owner":"o@example.com","options":{"host":"http://echo.internal","bearer_token":"s3cr3t"}}`))
	}))
	defer srv.Close()

	conn, err := NewHTTPStore(srv.URL).GetConnection(context.Background(), "echo-a2a")
	require.NoError(t, err)
	assert.Equal(t, "o@example.com", conn.Owner)
	assert.Equal(t, ModeStaticBearer, conn.Auth.Mode)
}

func TestHTTPStore_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	_, err := NewHTTPStore(srv.URL).GetConnection(context.Background(), "nope-a2a")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestHTTPStore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPStore(srv.URL).ListConnections(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
