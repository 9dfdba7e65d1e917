// Package eventstore defines persistence contracts for canonical events.
package eventstore

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/internal/schema"
)

// TimeColumn selects the timestamp column window queries filter and order by.
type TimeColumn string

const (
	// ByEventTime orders by when the event happened upstream.
	ByEventTime TimeColumn = "ts_event"
	// ByIngestTime orders by when the pipeline ingested the event.
	ByIngestTime TimeColumn = "ts_ingested"
)

// Valid reports whether the column is one of the two replayable keys.
func (c TimeColumn) Valid() bool {
	return c == ByEventTime || c == ByIngestTime
}

// InsertResult reports the outcome of an idempotent insert.
type InsertResult struct {
	// Deduped is true when a row with the same dedupe key already existed;
	// nothing was written.
	Deduped bool
}

// Record captures the persisted state of an event row.
type Record struct {
	EventID       string
	SchemaVersion string
	EventType     schema.EventType
	Source        schema.Source
	Symbol        string
	EntityID      string
	TsEvent       time.Time
	TsIngested    time.Time
	DedupeKey     string
	Severity      int
	Confidence    *float64
	PayloadJSON   json.RawMessage
	RawURI        string
	NormalizedURI string
	Hash          string
	CreatedAt     time.Time
}

// Store abstracts persistence operations for the events table.
type Store interface {
	// Insert persists evt and, when outboxPayload is non-nil, an outbox row
	// in the same transaction. A pre-existing dedupe key leaves the store
	// untouched and reports Deduped.
	Insert(ctx context.Context, evt schema.EventV1, outboxPayload json.RawMessage) (InsertResult, error)
	// ListWindow returns rows whose column value lies in [start, end],
	// ordered ascending by that column.
	ListWindow(ctx context.Context, column TimeColumn, start, end time.Time) ([]Record, error)
}
