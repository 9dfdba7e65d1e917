package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tip/internal/domain/eventstore"
	"github.com/quantfold/tip/internal/schema"
)

// EventStore persists canonical events and their outbox companions.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore backed by the provided pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const (
	eventExistsSQL = `
SELECT 1
FROM events
WHERE dedupe_key = $1;
`

	eventInsertSQL = `
INSERT INTO events (
    event_id,
    schema_version,
    event_type,
    source,
    symbol,
    entity_id,
    ts_event,
    ts_ingested,
    dedupe_key,
    severity,
    confidence,
    payload_json,
    raw_s3_uri,
    normalized_s3_uri,
    hash,
    created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12::jsonb, '{}'::jsonb), $13, NULL, NULL, $14);
`

	outboxAppendSQL = `
INSERT INTO outbox (event_id, payload)
VALUES ($1, $2::jsonb);
`

	eventColumns = `
    event_id,
    schema_version,
    event_type,
    source,
    symbol,
    entity_id,
    ts_event,
    ts_ingested,
    dedupe_key,
    severity,
    confidence,
    payload_json,
    raw_s3_uri,
    normalized_s3_uri,
    hash,
    created_at`

	eventWindowByEventTimeSQL = `
SELECT` + eventColumns + `
FROM events
WHERE ts_event BETWEEN $1 AND $2
ORDER BY ts_event ASC;
`

	eventWindowByIngestTimeSQL = `
SELECT` + eventColumns + `
FROM events
WHERE ts_ingested BETWEEN $1 AND $2
ORDER BY ts_ingested ASC;
`
)

// Insert persists evt inside a single transaction, appending an outbox row
// when outboxPayload is non-nil. An existing dedupe key (either observed by
// the guard select or surfacing as a unique violation from a concurrent
// writer) reports Deduped without error.
func (s *EventStore) Insert(ctx context.Context, evt schema.EventV1, outboxPayload json.RawMessage) (eventstore.InsertResult, error) {
	if s.pool == nil {
		return eventstore.InsertResult{}, fmt.Errorf("event store: nil pool")
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return eventstore.InsertResult{}, fmt.Errorf("event store: encode payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eventstore.InsertResult{}, fmt.Errorf("event store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx, eventExistsSQL, evt.DedupeKey).Scan(&one)
	switch {
	case err == nil:
		if err := tx.Commit(ctx); err != nil {
			return eventstore.InsertResult{}, fmt.Errorf("event store: commit dedupe check: %w", err)
		}
		return eventstore.InsertResult{Deduped: true}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return eventstore.InsertResult{}, fmt.Errorf("event store: check dedupe key: %w", err)
	}

	_, err = tx.Exec(ctx, eventInsertSQL,
		evt.EventID,
		evt.SchemaVersion,
		string(evt.EventType),
		string(evt.Source),
		textOrNil(evt.Symbol),
		textOrNil(evt.EntityID),
		evt.TsEvent,
		evt.TsIngested,
		evt.DedupeKey,
		evt.Severity,
		evt.Confidence,
		payload,
		textOrNil(evt.PayloadRefs.Raw),
		evt.TsIngested,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eventstore.InsertResult{Deduped: true}, nil
		}
		return eventstore.InsertResult{}, fmt.Errorf("event store: insert event: %w", err)
	}

	if outboxPayload != nil {
		if _, err := tx.Exec(ctx, outboxAppendSQL, evt.EventID, []byte(outboxPayload)); err != nil {
			return eventstore.InsertResult{}, fmt.Errorf("event store: append outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eventstore.InsertResult{}, fmt.Errorf("event store: commit: %w", err)
	}
	return eventstore.InsertResult{}, nil
}

// ListWindow returns rows whose chosen timestamp lies in [start, end],
// ordered ascending by that timestamp.
func (s *EventStore) ListWindow(ctx context.Context, column eventstore.TimeColumn, start, end time.Time) ([]eventstore.Record, error) {
	var query string
	switch column {
	case eventstore.ByEventTime:
		query = eventWindowByEventTimeSQL
	case eventstore.ByIngestTime:
		query = eventWindowByIngestTimeSQL
	default:
		return nil, fmt.Errorf("event store: unknown time column %q", column)
	}
	if s.pool == nil {
		return nil, fmt.Errorf("event store: nil pool")
	}
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("event store: list window: %w", err)
	}
	defer rows.Close()

	var records []eventstore.Record
	for rows.Next() {
		record, err := scanEventRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event store: iterate window: %w", err)
	}
	return records, nil
}

func scanEventRecord(row rowScanner) (eventstore.Record, error) {
	var (
		record        eventstore.Record
		symbol        pgtype.Text
		entityID      pgtype.Text
		confidence    pgtype.Float8
		payloadJSON   []byte
		rawURI        pgtype.Text
		normalizedURI pgtype.Text
		hash          pgtype.Text
	)
	if err := row.Scan(
		&record.EventID,
		&record.SchemaVersion,
		&record.EventType,
		&record.Source,
		&symbol,
		&entityID,
		&record.TsEvent,
		&record.TsIngested,
		&record.DedupeKey,
		&record.Severity,
		&confidence,
		&payloadJSON,
		&rawURI,
		&normalizedURI,
		&hash,
		&record.CreatedAt,
	); err != nil {
		return eventstore.Record{}, fmt.Errorf("event store: scan record: %w", err)
	}
	if symbol.Valid {
		record.Symbol = symbol.String
	}
	if entityID.Valid {
		record.EntityID = entityID.String
	}
	if confidence.Valid {
		c := confidence.Float64
		record.Confidence = &c
	}
	if rawURI.Valid {
		record.RawURI = rawURI.String
	}
	if normalizedURI.Valid {
		record.NormalizedURI = normalizedURI.String
	}
	if hash.Valid {
		record.Hash = hash.String
	}
	record.PayloadJSON = payloadJSON
	return record, nil
}

func textOrNil(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ eventstore.Store = (*EventStore)(nil)
