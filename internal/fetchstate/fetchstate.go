// Package fetchstate persists connector fetch checkpoints in a local SQLite
// file: which filings were already ingested, and the HTTP validators cached
// per watched entity for conditional polling.
package fetchstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite checkpoint database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("fetchstate: state db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("fetchstate: creating state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("fetchstate: opening state db: %w", err)
	}

	store := New(db)
	if err := store.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init creates the checkpoint tables if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seen_filings (
			source_entity TEXT NOT NULL,
			accession TEXT NOT NULL,
			first_seen_at TEXT NOT NULL,
			PRIMARY KEY (source_entity, accession)
		);`,
		`CREATE TABLE IF NOT EXISTS entity_state (
			source_entity TEXT PRIMARY KEY,
			last_etag TEXT,
			last_modified TEXT,
			last_poll_at TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("fetchstate: init schema: %w", err)
		}
	}
	return nil
}

// IsSeen reports whether the accession was already ingested for the entity.
func (s *Store) IsSeen(ctx context.Context, sourceEntity, accession string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_filings WHERE source_entity = ? AND accession = ?`,
		sourceEntity, accession,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetchstate: query seen: %w", err)
	}
	return true, nil
}

// MarkSeen records the accession for the entity. Re-marking is a no-op.
func (s *Store) MarkSeen(ctx context.Context, sourceEntity, accession string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_filings (source_entity, accession, first_seen_at) VALUES (?, ?, ?)`,
		sourceEntity, accession, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("fetchstate: mark seen: %w", err)
	}
	return nil
}

// Conditional carries the HTTP validators cached from the last successful fetch.
type Conditional struct {
	ETag         string
	LastModified string
	LastPollAt   time.Time
}

// Conditional returns the cached validators for the entity, zero when unknown.
func (s *Store) Conditional(ctx context.Context, sourceEntity string) (Conditional, error) {
	var (
		etag     sql.NullString
		modified sql.NullString
		polledAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_etag, last_modified, last_poll_at FROM entity_state WHERE source_entity = ?`,
		sourceEntity,
	).Scan(&etag, &modified, &polledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conditional{}, nil
	}
	if err != nil {
		return Conditional{}, fmt.Errorf("fetchstate: query entity state: %w", err)
	}

	cond := Conditional{}
	if etag.Valid {
		cond.ETag = etag.String
	}
	if modified.Valid {
		cond.LastModified = modified.String
	}
	if polledAt.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, polledAt.String); parseErr == nil {
			cond.LastPollAt = ts
		}
	}
	return cond, nil
}

// SetConditional stores validators from a fresh fetch. Empty values keep the
// previously cached validator; the poll timestamp always advances.
func (s *Store) SetConditional(ctx context.Context, sourceEntity, etag, lastModified string) error {
	return s.upsertEntityState(ctx, sourceEntity, nullable(etag), nullable(lastModified))
}

// Touch refreshes the poll timestamp without changing cached validators. The
// 304 path uses it so unmodified entities still record poll activity.
func (s *Store) Touch(ctx context.Context, sourceEntity string) error {
	return s.upsertEntityState(ctx, sourceEntity, nil, nil)
}

func (s *Store) upsertEntityState(ctx context.Context, sourceEntity string, etag, lastModified any) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_state (source_entity, last_etag, last_modified, last_poll_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_entity) DO UPDATE SET
			last_etag = COALESCE(excluded.last_etag, last_etag),
			last_modified = COALESCE(excluded.last_modified, last_modified),
			last_poll_at = excluded.last_poll_at
	`, sourceEntity, etag, lastModified, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("fetchstate: upsert entity state: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
