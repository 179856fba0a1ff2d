// ABOUTME: In-memory MetadataStore for tests and local development
// ABOUTME: Holds connections in a mutex-guarded map

package registry

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory MetadataStore.
type MockStore struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{conns: make(map[string]*Connection)}
}

// Add registers a connection, replacing any existing one with the same name.
func (m *MockStore) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.Name] = conn
}

// Remove deletes a connection by name.
func (m *MockStore) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, name)
}

// ListConnections returns all connections sorted by name.
func (m *MockStore) ListConnections(ctx context.Context) ([]*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Name < conns[j].Name })
	return conns, nil
}

// GetConnection returns the named connection or ErrConnectionNotFound.
func (m *MockStore) GetConnection(ctx context.Context, name string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[name]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Close implements MetadataStore.
func (m *MockStore) Close() error {
	return nil
}

var _ MetadataStore = (*MockStore)(nil)
