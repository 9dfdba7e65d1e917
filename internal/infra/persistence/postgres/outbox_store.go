package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tip/internal/domain/outboxstore"
)

// OutboxStore reads and settles outbox entries for the dispatcher. Entries
// are appended by EventStore.Insert inside the ingest transaction.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore constructs an OutboxStore backed by the provided pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

const (
	defaultOutboxLimit = 100
	maxOutboxLimit     = 1000
)

const (
	outboxListPendingSQL = `
SELECT
    outbox_id,
    event_id,
    payload,
    published_at
FROM outbox
WHERE published_at IS NULL
ORDER BY outbox_id ASC
LIMIT $1;
`

	outboxMarkPublishedSQL = `
UPDATE outbox
SET published_at = $2
WHERE outbox_id = ANY($1)
  AND published_at IS NULL;
`
)

// ListPending returns undelivered entries in outbox_id order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]outboxstore.Record, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("outbox store: nil pool")
	}
	if limit <= 0 {
		limit = defaultOutboxLimit
	} else if limit > maxOutboxLimit {
		limit = maxOutboxLimit
	}
	rows, err := s.pool.Query(ctx, outboxListPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox store: list pending: %w", err)
	}
	defer rows.Close()

	var records []outboxstore.Record
	for rows.Next() {
		record, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox store: iterate pending: %w", err)
	}
	return records, nil
}

// MarkPublished stamps publishedAt on the given entries. An empty id list is
// a no-op.
func (s *OutboxStore) MarkPublished(ctx context.Context, ids []int64, publishedAt time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("outbox store: nil pool")
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, outboxMarkPublishedSQL, ids, publishedAt); err != nil {
		return fmt.Errorf("outbox store: mark published: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRecord(row rowScanner) (outboxstore.Record, error) {
	var (
		record      outboxstore.Record
		payload     []byte
		publishedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&record.OutboxID,
		&record.EventID,
		&payload,
		&publishedAt,
	); err != nil {
		return outboxstore.Record{}, fmt.Errorf("outbox store: scan record: %w", err)
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		record.PublishedAt = &t
	}
	record.Payload = payload
	return record, nil
}

var _ outboxstore.Store = (*OutboxStore)(nil)
