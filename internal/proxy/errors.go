// ABOUTME: Proxy error taxonomy mapped onto HTTP statuses and JSON-RPC codes
// ABOUTME: Keeps access denial and upstream auth failure strictly separate

package proxy

import (
	"fmt"

	"github.com/2389/a2a-gateway/internal/a2a"
)

// Kind classifies a proxy failure. The kind decides the HTTP status; the
// JSON-RPC code travels alongside because several kinds share a status.
type Kind int

const (
	KindMalformedRequest Kind = iota
	KindUnauthenticated
	KindUnauthorized
	KindUnknownAgent
	KindUpstreamAuthFailure
	KindBackendUnavailable
	KindBackendTimeout
	KindProtocolError
	KindInternal
)

// Error is a classified proxy failure. Message is safe to send to callers;
// Err holds the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Code    int // JSON-RPC error code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the failure onto the status of the enclosing HTTP response.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMalformedRequest:
		return 400
	case KindUnauthenticated:
		return 401
	case KindUnauthorized:
		return 403
	case KindUnknownAgent:
		return 404
	case KindUpstreamAuthFailure, KindBackendUnavailable, KindProtocolError:
		return 502
	case KindBackendTimeout:
		return 504
	default:
		return 500
	}
}

// RPCError renders the failure as a JSON-RPC error response echoing id.
func (e *Error) RPCError(id []byte) *a2a.Response {
	return a2a.NewErrorResponse(id, e.Code, e.Message)
}

func newError(kind Kind, code int, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func errMalformed(code int, message string, err error) *Error {
	return newError(KindMalformedRequest, code, message, err)
}

func errUnauthenticated(message string) *Error {
	return newError(KindUnauthenticated, a2a.CodeInvalidRequest, message, nil)
}

func errUnauthorized(agentName, connectionName string) *Error {
	return newError(KindUnauthorized, a2a.CodeInvalidRequest,
		fmt.Sprintf("access denied to agent %q: USE_CONNECTION privilege required on connection %q",
			agentName, connectionName), nil)
}

func errUnknownAgent(agentName string) *Error {
	return newError(KindUnknownAgent, a2a.CodeInvalidRequest,
		fmt.Sprintf("agent %q not found", agentName), nil)
}

func errUpstreamAuth(err error) *Error {
	return newError(KindUpstreamAuthFailure, a2a.CodeUpstreamAuthFailure,
		"failed to authenticate to backend agent", err)
}

func errBackendUnavailable(err error) *Error {
	return newError(KindBackendUnavailable, a2a.CodeBackendUnavailable,
		"backend agent unavailable", err)
}

func errBackendTimeout(err error) *Error {
	return newError(KindBackendTimeout, a2a.CodeBackendUnavailable,
		"backend agent timed out", err)
}

func errProtocol(err error) *Error {
	return newError(KindProtocolError, a2a.CodeProtocolError,
		"backend agent returned an invalid response", err)
}
