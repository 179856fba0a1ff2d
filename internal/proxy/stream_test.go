// ABOUTME: Tests for the SSE streaming relay
// ABOUTME: Covers frame ordering, cancellation teardown, and terminal error frames

package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a2a-gateway/internal/a2a"
	"github.com/2389/a2a-gateway/internal/auth"
)

func streamBody() []byte {
	return []byte(`{"jsonrpc":"2.0","id":"req-s","method":"message/stream","params":{"message":{"role":"user","parts":[{"kind":"text","text":"Hello!"}],"messageId":"m1"}}}`)
}

// streamingBackend serves a card plus an SSE endpoint driven by the handler.
func streamingBackend(t *testing.T, stream http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/agent.json", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"name":"echo","url":"/","capabilities":{"streaming":true}}`))
	})
	mux.HandleFunc("POST /", stream)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStream_RelaysFramesInOrder(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(w, "data: {\"jsonrpc\":\"2.0\",\"id\":\"req-s\",\"result\":{\"seq\":%d}}\n\n", i)
		}
	})

	fx := newFixture(t, true, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(callerCtx(), rec, "echo", streamBody())
	require.Nil(t, perr)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 3)
	for i, frame := range frames {
		assert.Contains(t, frame, fmt.Sprintf(`"seq":%d`, i+1))
	}
}

func TestStream_PreStreamDenialIsHTTPError(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {})
	fx := newFixture(t, false, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(callerCtx(), rec, "echo", streamBody())
	require.NotNil(t, perr)
	assert.Equal(t, KindUnauthorized, perr.Kind)
	assert.Empty(t, rec.Body.String())
}

func TestStream_NonStreamingMethodRejected(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {})
	fx := newFixture(t, true, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(callerCtx(), rec, "echo", sendBody("hi"))
	require.NotNil(t, perr)
	assert.Equal(t, KindMalformedRequest, perr.Kind)
}

func TestStream_CancellationTearsDownBackend(t *testing.T) {
	backendDone := make(chan struct{})
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {
		defer close(backendDone)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"id\":\"req-s\",\"result\":{\"seq\":1}}\n\n")
		w.(http.Flusher).Flush()
		// Block until the gateway drops the request.
		<-req.Context().Done()
	})

	fx := newFixture(t, true, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	ctx, cancel := context.WithCancel(callerCtx())
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		rec := httptest.NewRecorder()
		fx.proxy.Stream(ctx, rec, "echo", streamBody())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	for name, ch := range map[string]chan struct{}{"relay": streamDone, "backend": backendDone} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not shut down after cancellation", name)
		}
	}
}

func TestStream_IdleBackendCutOffWithErrorFrame(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"id\":\"req-s\",\"result\":{\"seq\":1}}\n\n")
		w.(http.Flusher).Flush()
		// Go silent without closing; the relay's idle bound must fire.
		<-req.Context().Done()
	})

	fx := newFixture(t, true, time.Minute)
	fx.proxy.streamIdleTimeout = 100 * time.Millisecond
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(callerCtx(), rec, "echo", streamBody())
	require.Nil(t, perr)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], `"seq":1`)

	var resp a2a.Response
	require.NoError(t, unmarshalFrame(frames[1], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeBackendUnavailable, resp.Error.Code)
}

func TestStream_BackendDropEmitsTerminalErrorFrame(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"id\":\"req-s\",\"result\":{\"seq\":1}}\n\n")
		w.(http.Flusher).Flush()

		// Sever the connection mid-stream.
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		conn.Close()
	})

	fx := newFixture(t, true, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(callerCtx(), rec, "echo", streamBody())
	require.Nil(t, perr)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0], `"seq":1`)

	var resp a2a.Response
	require.NoError(t, unmarshalFrame(frames[1], &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeBackendUnavailable, resp.Error.Code)
	assert.JSONEq(t, `"req-s"`, string(resp.ID))
}

func TestStream_SingleJSONResponseBecomesOneFrame(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":"req-s","result":{"status":"completed"}}`))
	})

	fx := newFixture(t, true, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(callerCtx(), rec, "echo", streamBody())
	require.Nil(t, perr)

	frames := sseFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], `"status":"completed"`)
}

func TestStream_PassthroughWithoutCallerToken(t *testing.T) {
	backend := streamingBackend(t, func(w http.ResponseWriter, req *http.Request) {})
	fx := newFixture(t, true, time.Minute)
	fx.store.Add(passthroughConn("echo-a2a", backend.URL))

	ctx := authCtxWithoutToken()
	rec := httptest.NewRecorder()
	perr := fx.proxy.Stream(ctx, rec, "echo", streamBody())
	require.NotNil(t, perr)
	assert.Equal(t, KindUpstreamAuthFailure, perr.Kind)
}

// sseFrames splits an SSE body into its data payloads.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func unmarshalFrame(frame string, v any) error {
	return json.Unmarshal([]byte(frame), v)
}

func authCtxWithoutToken() context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{Principal: "user@example.com"})
}
