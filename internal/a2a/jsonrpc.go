// ABOUTME: JSON-RPC 2.0 envelope types and error codes for the A2A protocol
// ABOUTME: Validates inbound envelopes before they reach the registry or proxy

package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes, plus the gateway's server-error range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Implementation-defined server errors (-32000 to -32099).
	CodeBackendUnavailable  = -32000
	CodeUpstreamAuthFailure = -32001
	CodeProtocolError       = -32002
)

// A2A protocol methods the gateway proxies.
const (
	MethodMessageSend      = "message/send"
	MethodMessageStream    = "message/stream"
	MethodTasksGet         = "tasks/get"
	MethodTasksCancel      = "tasks/cancel"
	MethodTasksResubscribe = "tasks/resubscribe"
)

// Envelope validation errors.
var (
	ErrNotJSON       = errors.New("request body is not valid JSON")
	ErrBadVersion    = errors.New(`jsonrpc version must be "2.0"`)
	ErrMissingID     = errors.New("id is required")
	ErrMissingMethod = errors.New("method is required")
	ErrUnknownMethod = errors.New("method not found")
)

// Request is a JSON-RPC 2.0 request envelope. ID is kept raw so string and
// numeric ids round-trip to the backend unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ParseRequest decodes and validates a JSON-RPC request envelope.
// Malformed envelopes are rejected here, before any target resolution.
func ParseRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, ErrNotJSON
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the envelope fields required by JSON-RPC 2.0 and by the
// gateway: a2a calls are never notifications, so id is mandatory.
func (r *Request) Validate() error {
	if r.JSONRPC != "2.0" {
		return ErrBadVersion
	}
	if r.Method == "" {
		return ErrMissingMethod
	}
	if len(r.ID) == 0 || string(r.ID) == "null" {
		return ErrMissingID
	}
	return nil
}

// KnownMethod reports whether method is one the gateway proxies.
func KnownMethod(method string) bool {
	switch method {
	case MethodMessageSend, MethodMessageStream, MethodTasksGet, MethodTasksCancel, MethodTasksResubscribe:
		return true
	}
	return false
}

// StreamingMethod reports whether method produces a server-streamed response.
func StreamingMethod(method string) bool {
	return method == MethodMessageStream || method == MethodTasksResubscribe
}

// NewErrorResponse builds an error response echoing the request id.
// A nil id yields the JSON null id mandated for undecodable requests.
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// NewResultResponse builds a success response echoing the request id.
func NewResultResponse(id json.RawMessage, result json.RawMessage) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}
