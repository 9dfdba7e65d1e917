// Package connector implements the generic poll-normalize-persist cycle
// shared by every source adapter: archive the raw record, derive the dedupe
// key, insert the canonical event (with an outbox row in emit mode), then
// archive the canonical form.
package connector

import (
	"context"
	"strings"
	"time"

	"github.com/quantfold/tip/errs"
	"github.com/quantfold/tip/internal/schema"
)

// Mode selects whether ingested events are queued for downstream delivery.
type Mode string

const (
	// ModeShadow persists and archives events without outbox rows.
	ModeShadow Mode = "shadow"
	// ModeEmit additionally appends an outbox row per ingested event.
	ModeEmit Mode = "emit"
)

// ParseMode maps operator input onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeShadow:
		return ModeShadow, nil
	case ModeEmit:
		return ModeEmit, nil
	default:
		return "", errs.New("connector", errs.CodeConfig,
			errs.WithMessage("mode must be shadow or emit"))
	}
}

// Raw is one upstream record as fetched, before normalization.
type Raw map[string]any

// Partial carries an adapter's normalized contribution to a canonical event.
// The runner supplies identity, ingest timestamp, and source.
type Partial struct {
	EventType schema.EventType
	// TsEvent is when the record happened upstream; zero means the runner
	// stamps the ingest clock.
	TsEvent  time.Time
	Symbol   string
	EntityID string
	// Severity nil applies the schema default.
	Severity   *int
	Confidence *float64
	Payload    map[string]any
	// DedupeKey empty means the runner derives one from the partial's content.
	DedupeKey string
}

// contentKey derives a dedupe key from the partial's stable encoding. Unset
// optional fields are excluded so logically equal partials hash equally.
func (p Partial) contentKey() (string, error) {
	m := map[string]any{"eventType": string(p.EventType)}
	if !p.TsEvent.IsZero() {
		m["tsEvent"] = p.TsEvent.UTC().Format(time.RFC3339Nano)
	}
	if p.Symbol != "" {
		m["symbol"] = p.Symbol
	}
	if p.EntityID != "" {
		m["entityId"] = p.EntityID
	}
	if p.Severity != nil {
		m["severity"] = *p.Severity
	}
	if p.Confidence != nil {
		m["confidence"] = *p.Confidence
	}
	if p.Payload != nil {
		m["payload"] = p.Payload
	}
	return schema.ContentHash(m)
}

// Adapter supplies one source's fetch and normalize behaviour.
type Adapter interface {
	// Name identifies the connector in logs, metrics, and run reports.
	Name() string
	// Source is stamped on every event the adapter yields.
	Source() schema.Source
	// Fetch returns the raw records for one poll cycle. Per-entity upstream
	// failures are the adapter's to log and skip; a returned error aborts
	// the cycle.
	Fetch(ctx context.Context) ([]Raw, error)
	// Normalize maps one raw record onto the canonical fields.
	Normalize(raw Raw) (Partial, error)
}

// CycleStats counts the outcomes of one poll cycle. A record that was
// committed but failed its post-commit archive counts in both Ingested and
// Errors.
type CycleStats struct {
	Fetched  int `json:"fetched"`
	Ingested int `json:"ingested"`
	Deduped  int `json:"deduped"`
	Errors   int `json:"errors"`
}

// Add accumulates o into s.
func (s *CycleStats) Add(o CycleStats) {
	s.Fetched += o.Fetched
	s.Ingested += o.Ingested
	s.Deduped += o.Deduped
	s.Errors += o.Errors
}
