// ABOUTME: SQLite-backed metadata store for local and single-node deployments
// ABOUTME: Stores connections with their registration option bags as JSON

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements MetadataStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite metadata store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows reads during the registration tool's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		name       TEXT PRIMARY KEY,
		comment    TEXT NOT NULL DEFAULT '',
		owner      TEXT NOT NULL DEFAULT '',
		options    TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListConnections returns every registered connection. Rows whose option bag
// cannot be decoded are skipped; one broken registration must not take down
// discovery for everyone else.
func (s *SQLiteStore) ListConnections(ctx context.Context) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, comment, owner, options FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			if errors.Is(err, ErrBadOptions) {
				continue
			}
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// GetConnection returns the connection with the given full name.
func (s *SQLiteStore) GetConnection(ctx context.Context, name string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, comment, owner, options FROM connections WHERE name = ?`, name)

	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PutConnection inserts or replaces a connection registration. Used by the
// registration CLI and by tests; the serving path never writes.
func (s *SQLiteStore) PutConnection(ctx context.Context, name, comment, owner string, options map[string]string) error {
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (name, comment, owner, options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			comment = excluded.comment,
			owner = excluded.owner,
			options = excluded.options,
			updated_at = excluded.updated_at`,
		name, comment, owner, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}
	return nil
}

// DeleteConnection removes a connection registration.
func (s *SQLiteStore) DeleteConnection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	var name, comment, owner, rawOptions string
	if err := row.Scan(&name, &comment, &owner, &rawOptions); err != nil {
		return nil, err
	}

	var options map[string]string
	if err := json.Unmarshal([]byte(rawOptions), &options); err != nil {
		return nil, fmt.Errorf("%w: connection %s: %v", ErrBadOptions, name, err)
	}

	host, cardPath, strategy, err := DecodeOptions(options)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", name, err)
	}

	return &Connection{
		Name:        name,
		Description: comment,
		Owner:       owner,
		Host:        host,
		CardPath:    cardPath,
		Auth:        strategy,
	}, nil
}
