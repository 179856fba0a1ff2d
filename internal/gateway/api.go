// ABOUTME: HTTP API routes: discovery, agent cards, invoke, and stream
// ABOUTME: Maps proxy error kinds onto HTTP statuses with JSON-RPC bodies

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/a2a-gateway/internal/a2a"
	"github.com/2389/a2a-gateway/internal/auth"
	"github.com/2389/a2a-gateway/internal/proxy"
	"github.com/2389/a2a-gateway/internal/registry"
)

// maxRequestBytes caps an inbound JSON-RPC request body.
const maxRequestBytes = 4 << 20

// routes builds the gateway's HTTP handler.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /.well-known/agent.json", g.handleSelfCard)

	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.handler())
	}

	authed := auth.Middleware(g.identifier)
	mux.Handle("GET /api/agents", authed(http.HandlerFunc(g.handleListAgents)))
	mux.Handle("GET /api/agents/{name}", authed(http.HandlerFunc(g.handleGetAgent)))
	mux.Handle("GET /api/agents/{name}/.well-known/agent.json", authed(http.HandlerFunc(g.handleAgentCard)))
	mux.Handle("POST /api/agents/{name}", authed(http.HandlerFunc(g.handleInvoke)))
	mux.Handle("POST /api/agents/{name}/stream", authed(http.HandlerFunc(g.handleStream)))

	return withRequestID(withProcessTime(mux))
}

// withRequestID tags each request with an id for log correlation, keeping a
// caller-supplied one when present.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProxyError renders a classified proxy failure: the kind picks the
// HTTP status, the body is a JSON-RPC error response.
func writeProxyError(w http.ResponseWriter, id json.RawMessage, perr *proxy.Error) {
	writeJSON(w, perr.HTTPStatus(), perr.RPCError(id))
}

// requestID best-effort extracts the JSON-RPC id from a raw body so error
// responses can echo it even when the pipeline rejected the request.
func requestID(body []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	return probe.ID
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness: the gateway is ready once it can reach its
// metadata store.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListConnections(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "metadata store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "a2a-gateway",
		"version": Version,
		"agents":  "/api/agents",
	})
}

// handleSelfCard serves the gateway's own agent card. The gateway is not
// itself an agent; the card exists so protocol-aware clients probing the
// well-known path get an answer instead of a 404.
func (g *Gateway) handleSelfCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &a2a.AgentCard{
		Name:            "a2a-gateway",
		Description:     "Gateway proxying agent-to-agent calls to registered backend agents",
		Version:         Version,
		ProtocolVersion: "0.2.2",
		URL:             baseURL(r) + "/api/agents",
		Capabilities:    a2a.AgentCapabilities{Streaming: true},
	})
}

// agentSummary is the discovery listing entry for one agent.
type agentSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	CardURL     string `json:"card_url"`
}

// handleListAgents lists the agents the caller is authorized to use. Agents
// the caller may not use are omitted entirely rather than marked.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.MustFromContext(ctx)

	conns, err := g.registry.List(ctx)
	if err != nil {
		g.logger.Error("failed to list connections", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "metadata store unreachable"})
		return
	}

	base := baseURL(r)
	summaries := make([]agentSummary, 0, len(conns))
	for _, conn := range conns {
		if !g.checker.Allowed(ctx, id.Principal, conn) {
			continue
		}
		name := conn.AgentName(g.registry.Suffix())
		summaries = append(summaries, agentSummary{
			Name:        name,
			Description: conn.Description,
			URL:         base + "/api/agents/" + name,
			CardURL:     base + "/api/agents/" + name + "/.well-known/agent.json",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"agents": summaries})
}

// resolveAuthorized resolves {name} and authorizes the caller, writing the
// error response itself on failure.
func (g *Gateway) resolveAuthorized(w http.ResponseWriter, r *http.Request) (*registry.Connection, bool) {
	ctx := r.Context()
	name := r.PathValue("name")
	id := auth.MustFromContext(ctx)

	conn, err := g.registry.Lookup(ctx, name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("agent %q not found", name),
		})
		return nil, false
	}
	if !g.checker.Allowed(ctx, id.Principal, conn) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": fmt.Sprintf("access denied to agent %q: USE_CONNECTION privilege required on connection %q",
				name, conn.Name),
		})
		return nil, false
	}
	return conn, true
}

func (g *Gateway) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	conn, ok := g.resolveAuthorized(w, r)
	if !ok {
		return
	}

	name := conn.AgentName(g.registry.Suffix())
	base := baseURL(r)
	resp := map[string]any{
		"name":        name,
		"description": conn.Description,
		"url":         base + "/api/agents/" + name,
		"card_url":    base + "/api/agents/" + name + "/.well-known/agent.json",
	}

	// Card fetch is best effort here; agent metadata must stay readable
	// even when the backend is down.
	if card, err := g.registry.Card(r.Context(), conn); err == nil {
		resp["card"] = card
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAgentCard serves a backend agent's card with its invocation URL
// rewritten to point back at the gateway, so protocol clients that follow
// the card keep flowing through authorization.
func (g *Gateway) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	conn, ok := g.resolveAuthorized(w, r)
	if !ok {
		return
	}

	card, err := g.registry.Card(r.Context(), conn)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend agent unavailable"})
		return
	}

	rewritten := *card
	rewritten.URL = baseURL(r) + "/api/agents/" + conn.AgentName(g.registry.Suffix())
	writeJSON(w, http.StatusOK, &rewritten)
}

func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	respBody, perr := g.proxy.Invoke(r.Context(), name, body)
	g.observe(name, "invoke", perr, time.Since(start))
	if perr != nil {
		writeProxyError(w, requestID(body), perr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBody)
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	perr := g.proxy.Stream(r.Context(), w, name, body)
	g.observe(name, "stream", perr, time.Since(start))
	if perr != nil {
		writeProxyError(w, requestID(body), perr)
	}
}

// baseURL reconstructs the caller-facing base URL for link generation.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// processTimeWriter injects the X-Process-Time header when the response
// status is written, since headers are immutable afterwards.
type processTimeWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (p *processTimeWriter) WriteHeader(status int) {
	if !p.wroteHeader {
		p.wroteHeader = true
		p.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(p.start).Seconds()))
	}
	p.ResponseWriter.WriteHeader(status)
}

func (p *processTimeWriter) Write(b []byte) (int, error) {
	if !p.wroteHeader {
		p.WriteHeader(http.StatusOK)
	}
	return p.ResponseWriter.Write(b)
}

// Flush passes through so SSE relaying works behind the wrapper.
func (p *processTimeWriter) Flush() {
	if f, ok := p.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withProcessTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&processTimeWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}
