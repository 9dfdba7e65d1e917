// Package outboxstore defines persistence contracts for durable event
// publishing.
package outboxstore

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// Record captures the persisted state of an outbox entry.
type Record struct {
	OutboxID    int64
	EventID     string
	Payload     json.RawMessage
	PublishedAt *time.Time
}

// Store abstracts persistence operations for the outbox.
//
// Rows are appended by the event store inside the ingest transaction; the
// dispatcher drains them in outbox_id order.
type Store interface {
	// ListPending returns up to limit undelivered entries ordered by
	// outbox_id ascending.
	ListPending(ctx context.Context, limit int) ([]Record, error)
	// MarkPublished stamps publishedAt on the given entries.
	MarkPublished(ctx context.Context, ids []int64, publishedAt time.Time) error
}
