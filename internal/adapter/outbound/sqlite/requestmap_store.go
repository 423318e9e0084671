// Package sqlite provides the SQLite-backed requestmap store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/routeguard/routeguard/internal/domain/access"
)

const schema = `
CREATE TABLE IF NOT EXISTS requestmap (
	id          TEXT PRIMARY KEY,
	pattern     TEXT NOT NULL,
	access      TEXT NOT NULL,
	http_method TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requestmap_created ON requestmap(created_at, id);
`

// RequestmapStore implements access.RequestmapStore on a SQLite database.
// Safe for concurrent use; database/sql serializes access to the single
// writer connection.
type RequestmapStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the requestmap database at path.
func Open(path string, logger *slog.Logger) (*RequestmapStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open requestmap database: %w", err)
	}
	// modernc sqlite allows a single writer; cap connections to avoid
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create requestmap schema: %w", err)
	}

	logger.Debug("requestmap store opened", "path", path)
	return &RequestmapStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *RequestmapStore) Close() error {
	return s.db.Close()
}

// ListEntries returns all entries ordered by creation time, then ID.
func (s *RequestmapStore) ListEntries(ctx context.Context) ([]access.RequestmapEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern, access, http_method, created_at, updated_at
		 FROM requestmap ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list requestmap entries: %w", err)
	}
	defer rows.Close()

	var entries []access.RequestmapEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requestmap entries: %w", err)
	}
	return entries, nil
}

// GetEntry returns an entry by ID.
// Returns access.ErrEntryNotFound if the entry doesn't exist.
func (s *RequestmapStore) GetEntry(ctx context.Context, id string) (*access.RequestmapEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pattern, access, http_method, created_at, updated_at
		 FROM requestmap WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SaveEntry creates or updates an entry, assigning a UUID when ID is empty.
// The caller must invalidate the rule cache after this returns.
func (s *RequestmapStore) SaveEntry(ctx context.Context, e *access.RequestmapEntry) error {
	accessJSON, err := json.Marshal(e.Access)
	if err != nil {
		return fmt.Errorf("encode access values: %w", err)
	}

	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
		e.CreatedAt = now
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO requestmap (id, pattern, access, http_method, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			pattern = excluded.pattern,
			access = excluded.access,
			http_method = excluded.http_method,
			updated_at = excluded.updated_at`,
		e.ID, e.Pattern, string(accessJSON), e.HTTPMethod, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save requestmap entry %s: %w", e.ID, err)
	}
	return nil
}

// DeleteEntry removes an entry by ID.
// Returns access.ErrEntryNotFound if the entry doesn't exist.
func (s *RequestmapStore) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM requestmap WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete requestmap entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete requestmap entry %s: %w", id, err)
	}
	if n == 0 {
		return access.ErrEntryNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*access.RequestmapEntry, error) {
	var e access.RequestmapEntry
	var accessJSON string
	if err := sc.Scan(&e.ID, &e.Pattern, &accessJSON, &e.HTTPMethod, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan requestmap entry: %w", err)
	}
	if err := json.Unmarshal([]byte(accessJSON), &e.Access); err != nil {
		return nil, fmt.Errorf("decode access values for entry %s: %w", e.ID, err)
	}
	return &e, nil
}

// Compile-time interface verification.
var _ access.RequestmapStore = (*RequestmapStore)(nil)
