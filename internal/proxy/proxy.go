// ABOUTME: Request proxy pipeline: parse, resolve, authorize, then forward
// ABOUTME: Authorization is checked before the method is even dispatched

package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/a2a-gateway/internal/a2a"
	"github.com/2389/a2a-gateway/internal/auth"
	"github.com/2389/a2a-gateway/internal/authz"
	"github.com/2389/a2a-gateway/internal/credential"
	"github.com/2389/a2a-gateway/internal/registry"
)

// maxResponseBytes caps a blocking backend response.
const maxResponseBytes = 16 << 20

// Proxy forwards JSON-RPC calls to backend agents on behalf of authorized
// callers. It never retries: a task may have side effects, so a failed
// forward surfaces to the caller to decide.
type Proxy struct {
	registry          *registry.Registry
	checker           *authz.Checker
	creds             *credential.Resolver
	backendTimeout    time.Duration
	streamIdleTimeout time.Duration
	client            *http.Client
	logger            *slog.Logger
}

// New creates a Proxy. backendTimeout bounds blocking calls only; streams
// run until either side closes, or until streamIdleTimeout passes with no
// data from the backend (zero disables the idle bound).
func New(reg *registry.Registry, checker *authz.Checker, creds *credential.Resolver, backendTimeout, streamIdleTimeout time.Duration, logger *slog.Logger) *Proxy {
	return &Proxy{
		registry:          reg,
		checker:           checker,
		creds:             creds,
		backendTimeout:    backendTimeout,
		streamIdleTimeout: streamIdleTimeout,
		client:            &http.Client{},
		logger:            logger.With("component", "proxy"),
	}
}

// target is a fully resolved, authorized forward destination.
type target struct {
	req      *a2a.Request
	conn     *registry.Connection
	endpoint string
	bearer   string
}

// prepare runs the shared front half of the pipeline: envelope validation,
// agent resolution, authorization, card fetch, and credential resolution.
//
// The order matters. Authorization happens before the method is inspected,
// so an unauthorized caller learns nothing about which methods an agent
// supports, and before any card fetch that would touch the backend on their
// behalf.
func (p *Proxy) prepare(ctx context.Context, agentName string, body []byte) (*target, *Error) {
	req, err := a2a.ParseRequest(body)
	if err != nil {
		switch {
		case errors.Is(err, a2a.ErrNotJSON):
			return nil, errMalformed(a2a.CodeParseError, "request body is not valid JSON", err)
		default:
			return nil, errMalformed(a2a.CodeInvalidRequest, err.Error(), err)
		}
	}

	id := auth.FromContext(ctx)
	if id == nil || id.Principal == "" {
		return nil, errUnauthenticated("missing credentials")
	}

	conn, lookupErr := p.registry.Lookup(ctx, agentName)
	if lookupErr != nil {
		if errors.Is(lookupErr, registry.ErrConnectionNotFound) {
			return nil, errUnknownAgent(agentName)
		}
		return nil, errBackendUnavailable(lookupErr)
	}

	if !p.checker.Allowed(ctx, id.Principal, conn) {
		p.logger.Info("request denied",
			"principal", id.Principal,
			"agent", agentName)
		return nil, errUnauthorized(agentName, conn.Name)
	}

	if !a2a.KnownMethod(req.Method) {
		return nil, &Error{
			Kind:    KindMalformedRequest,
			Code:    a2a.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", req.Method),
		}
	}

	card, cardErr := p.registry.Card(ctx, conn)
	if cardErr != nil {
		return nil, errBackendUnavailable(cardErr)
	}

	endpoint, epErr := p.registry.EndpointURL(conn, card)
	if epErr != nil {
		return nil, errBackendUnavailable(epErr)
	}

	bearer, credErr := p.creds.Bearer(ctx, conn)
	if credErr != nil {
		return nil, errUpstreamAuth(credErr)
	}

	return &target{req: req, conn: conn, endpoint: endpoint, bearer: bearer}, nil
}

// Invoke forwards a blocking JSON-RPC call and returns the backend's raw
// response bytes, which round-trip to the caller unmodified.
func (p *Proxy) Invoke(ctx context.Context, agentName string, body []byte) ([]byte, *Error) {
	tgt, perr := p.prepare(ctx, agentName, body)
	if perr != nil {
		return nil, perr
	}
	if a2a.StreamingMethod(tgt.req.Method) {
		return nil, errMalformed(a2a.CodeInvalidRequest,
			fmt.Sprintf("method %q requires the streaming endpoint", tgt.req.Method), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.backendTimeout)
	defer cancel()

	resp, ferr := p.forward(ctx, tgt, "application/json")
	if ferr != nil {
		return nil, ferr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errBackendUnavailable(err)
	}

	// The payload must at least be a JSON-RPC response envelope; beyond
	// that it passes through untouched.
	var envelope a2a.Response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, errProtocol(err)
	}
	if envelope.JSONRPC != "2.0" {
		return nil, errProtocol(fmt.Errorf("response jsonrpc version is %q", envelope.JSONRPC))
	}

	p.logger.Debug("request forwarded",
		"agent", agentName,
		"method", tgt.req.Method,
		"backend_status", resp.StatusCode)

	return respBody, nil
}

// forward POSTs the request envelope to the target and classifies transport
// and status failures. Callers own the response body.
func (p *Proxy) forward(ctx context.Context, tgt *target, accept string) (*http.Response, *Error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tgt.endpoint, bytes.NewReader(mustMarshal(tgt.req)))
	if err != nil {
		return nil, errBackendUnavailable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if tgt.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tgt.bearer)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errBackendTimeout(err)
		}
		return nil, errBackendUnavailable(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, errUpstreamAuth(fmt.Errorf("backend returned status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		resp.Body.Close()
		return nil, errBackendUnavailable(fmt.Errorf("backend returned status %d", resp.StatusCode))
	}

	return resp, nil
}

func mustMarshal(req *a2a.Request) []byte {
	out, err := json.Marshal(req)
	if err != nil {
		// Request was unmarshalled from bytes; re-marshalling cannot fail.
		panic(err)
	}
	return out
}
