// ABOUTME: SSE relay for streaming methods with cancellation propagation
// ABOUTME: Frames pass through in order; mid-stream failures end with an error frame

package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/2389/a2a-gateway/internal/a2a"
)

// Stream forwards a streaming JSON-RPC call and relays the backend's SSE
// frames to w in arrival order.
//
// Failures before the first byte is written return an *Error so the caller
// can still send a normal HTTP error. Once relaying has begun the HTTP
// status is spent; a mid-stream failure instead emits one terminal error
// frame and returns nil. Cancelling ctx (the caller disconnecting) tears
// down the backend request with it.
func (p *Proxy) Stream(ctx context.Context, w http.ResponseWriter, agentName string, body []byte) *Error {
	tgt, perr := p.prepare(ctx, agentName, body)
	if perr != nil {
		return perr
	}
	if !a2a.StreamingMethod(tgt.req.Method) {
		return errMalformed(a2a.CodeInvalidRequest,
			fmt.Sprintf("method %q is not a streaming method", tgt.req.Method), nil)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return &Error{Kind: KindInternal, Code: a2a.CodeInternalError, Message: "streaming unsupported"}
	}

	// No overall deadline: streams legitimately run for minutes. The
	// caller's context and the idle timeout between frames are the only
	// bounds.
	resp, ferr := p.forward(ctx, tgt, "text/event-stream")
	if ferr != nil {
		return ferr
	}
	defer resp.Body.Close()

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Some backends answer a stream request with a single JSON response.
	// Wrap it in one frame rather than failing the stream.
	if contentType == "application/json" {
		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			p.writeErrorFrame(w, flusher, tgt.req.ID)
			return nil
		}
		fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(payload)))
		flusher.Flush()
		return nil
	}

	p.relay(ctx, w, flusher, tgt, resp.Body)
	return nil
}

// relay copies SSE lines from the backend, flushing at each frame boundary.
// A backend that goes silent for longer than the idle timeout gets cut off
// with a terminal error frame.
func (p *Proxy) relay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, tgt *target, body io.Reader) {
	type chunk struct {
		line string
		err  error
	}

	done := make(chan struct{})
	defer close(done)

	lines := make(chan chunk)
	go func() {
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			select {
			case lines <- chunk{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var idle *time.Timer
	var idleC <-chan time.Time
	if p.streamIdleTimeout > 0 {
		idle = time.NewTimer(p.streamIdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			// Caller cancellation is a clean teardown, not a backend fault.
			return
		case <-idleC:
			p.logger.Warn("stream idle timeout",
				"agent", tgt.conn.Name,
				"timeout", p.streamIdleTimeout)
			p.writeErrorFrame(w, flusher, tgt.req.ID)
			return
		case c := <-lines:
			if idle != nil {
				idle.Reset(p.streamIdleTimeout)
			}
			if len(c.line) > 0 {
				if _, werr := io.WriteString(w, c.line); werr != nil {
					return
				}
				if c.line == "\n" || c.line == "\r\n" {
					flusher.Flush()
				}
			}
			if c.err == io.EOF {
				flusher.Flush()
				return
			}
			if c.err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("stream relay interrupted",
					"agent", tgt.conn.Name,
					"error", c.err)
				p.writeErrorFrame(w, flusher, tgt.req.ID)
				return
			}
		}
	}
}

// writeErrorFrame emits the terminal SSE frame for a broken stream.
func (p *Proxy) writeErrorFrame(w http.ResponseWriter, flusher http.Flusher, id []byte) {
	resp := a2a.NewErrorResponse(id, a2a.CodeBackendUnavailable, "backend agent unavailable")
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
