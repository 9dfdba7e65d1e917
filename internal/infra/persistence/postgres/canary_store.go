package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tip/internal/domain/canarystore"
)

// CanaryStore persists connector run reports for deploy comparison.
type CanaryStore struct {
	pool *pgxpool.Pool
}

// NewCanaryStore constructs a CanaryStore backed by the provided pool.
func NewCanaryStore(pool *pgxpool.Pool) *CanaryStore {
	return &CanaryStore{pool: pool}
}

const canaryInsertSQL = `
INSERT INTO canary_runs (
    service,
    version,
    stats_json,
    status,
    created_at
)
VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb), $4, NOW())
RETURNING
    id,
    service,
    version,
    stats_json,
    status,
    created_at;
`

// Insert stores one run report row.
func (s *CanaryStore) Insert(ctx context.Context, run canarystore.Run) (canarystore.Record, error) {
	service := strings.TrimSpace(run.Service)
	if service == "" {
		return canarystore.Record{}, fmt.Errorf("canary store: service required")
	}
	status := strings.TrimSpace(run.Status)
	if status == "" {
		return canarystore.Record{}, fmt.Errorf("canary store: status required")
	}
	if s.pool == nil {
		return canarystore.Record{}, fmt.Errorf("canary store: nil pool")
	}
	row := s.pool.QueryRow(ctx, canaryInsertSQL,
		service,
		strings.TrimSpace(run.Version),
		[]byte(run.StatsJSON),
		status,
	)
	return scanCanaryRecord(row)
}

func scanCanaryRecord(row rowScanner) (canarystore.Record, error) {
	var rec canarystore.Record
	var stats []byte
	if err := row.Scan(
		&rec.ID,
		&rec.Service,
		&rec.Version,
		&stats,
		&rec.Status,
		&rec.CreatedAt,
	); err != nil {
		return canarystore.Record{}, fmt.Errorf("canary store: scan record: %w", err)
	}
	rec.StatsJSON = stats
	return rec, nil
}

var _ canarystore.Store = (*CanaryStore)(nil)
