// ABOUTME: MetadataStore client for a remote connection catalog API
// ABOUTME: Reads registrations on behalf of the caller using their own token

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/a2a-gateway/internal/auth"
)

const connectionsAPIPath = "/api/2.1/unity-catalog/connections"

// HTTPStore implements MetadataStore against a remote catalog API. Requests
// carry the caller's bearer token, so the catalog applies its own visibility
// rules per caller.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a catalog client rooted at baseURL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// connectionPayload is the catalog API's wire shape for a registration.
type connectionPayload struct {
	Name    string            `json:"name"`
	Comment string            `json:"comment"`
	Owner   string            `json:"owner"`
	Options map[string]string `json:"options"`
}

// ListConnections fetches all registrations visible to the caller. Entries
// with undecodable options are skipped, matching the SQLite store.
func (s *HTTPStore) ListConnections(ctx context.Context) ([]*Connection, error) {
	body, err := s.get(ctx, s.baseURL+connectionsAPIPath)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Connections []connectionPayload `json:"connections"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	conns := make([]*Connection, 0, len(payload.Connections))
	for _, p := range payload.Connections {
		conn, err := p.toConnection()
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// GetConnection fetches a single registration by full name.
func (s *HTTPStore) GetConnection(ctx context.Context, name string) (*Connection, error) {
	body, err := s.get(ctx, s.baseURL+connectionsAPIPath+"/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}

	var p connectionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return p.toConnection()
}

// Close implements MetadataStore. The HTTP client holds no resources that
// outlive its idle connections.
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	if id := auth.FromContext(ctx); id != nil && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrConnectionNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}
	return body, nil
}

func (p connectionPayload) toConnection() (*Connection, error) {
	host, cardPath, strategy, err := DecodeOptions(p.Options)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", p.Name, err)
	}
	return &Connection{
		Name:        p.Name,
		Description: p.Comment,
		Owner:       p.Owner,
		Host:        host,
		CardPath:    cardPath,
		Auth:        strategy,
	}, nil
}

var _ MetadataStore = (*HTTPStore)(nil)
