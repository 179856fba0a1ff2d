// ABOUTME: Permission oracle interface and its HTTP implementation
// ABOUTME: Asks the external catalog whether a principal may use a connection

package authz

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

// Privileges that grant access to a connection.
const (
	PrivilegeUseConnection = "USE_CONNECTION"
	PrivilegeAll           = "ALL_PRIVILEGES"
)

// Oracle answers whether a principal holds the use privilege on a
// connection. Implementations must not cache; the Checker owns staleness.
type Oracle interface {
	Check(ctx context.Context, principal, connectionName string) (bool, error)
}

// HTTPOracle queries the catalog's permission API. Requests carry the
// caller's own bearer token so the catalog evaluates grants the caller is
// entitled to see.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle creates an oracle client rooted at baseURL.
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Check fetches the connection's privilege assignments and scans them for
// the principal.
func (o *HTTPOracle) Check(ctx context.Context, principal, connectionName string) (bool, error) {
	reqURL := o.baseURL + "/api/2.1/unity-catalog/permissions/connection/" + url.PathEscape(connectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build permissions request: %w", err)
	}
	if id := auth.FromContext(ctx); id != nil && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("permissions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("permission oracle returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("failed to read permissions response: %w", err)
	}

	var payload struct {
		PrivilegeAssignments []struct {
			Principal  string   `json:"principal"`
			Privileges []string `json:"privileges"`
		} `json:"privilege_assignments"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Errorf("failed to decode permissions response: %w", err)
	}

	for _, pa := range payload.PrivilegeAssignments {
		if pa.Principal != principal {
			continue
		}
		for _, p := range pa.Privileges {
			if p == PrivilegeUseConnection || p == PrivilegeAll {
				return true, nil
			}
		}
	}
	return false, nil
}

// OwnerOnlyOracle denies every check without erroring. Used when no oracle
// endpoint is configured: connection owners remain authorized because the
// Checker never consults the oracle for them, and everyone else is denied
// cleanly instead of through a failing HTTP call per request.
type OwnerOnlyOracle struct{}

func (OwnerOnlyOracle) Check(ctx context.Context, principal, connectionName string) (bool, error) {
	return false, nil
}

var (
	_ Oracle = (*HTTPOracle)(nil)
	_ Oracle = OwnerOnlyOracle{}
)
