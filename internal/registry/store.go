// ABOUTME: MetadataStore interface over the connection catalog
// ABOUTME: Backed by SQLite, a remote catalog API, or an in-memory mock

package registry

import (
	"context"
	"errors"
)

// ErrConnectionNotFound is returned when a connection does not exist in the
// metadata store.
var ErrConnectionNotFound = errors.New("connection not found")

// MetadataStore reads connection metadata. The gateway never writes
// connections; registration happens out of band.
type MetadataStore interface {
	// ListConnections returns every registered connection, including ones
	// without the discovery suffix. The Registry filters.
	ListConnections(ctx context.Context) ([]*Connection, error)

	// GetConnection returns a single connection by its full name, or
	// ErrConnectionNotFound.
	GetConnection(ctx context.Context, name string) (*Connection, error)

	// Close releases any resources held by the store.
	Close() error
}
