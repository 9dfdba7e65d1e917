package connector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/internal/domain/eventstore"
	"github.com/quantfold/tip/internal/schema"
	"github.com/quantfold/tip/internal/telemetry"
)

// BlobStore is the slice of the archive the runner depends on.
type BlobStore interface {
	WriteRaw(ctx context.Context, source schema.Source, eventID string, ts time.Time, record map[string]any) (string, error)
	WriteEvent(ctx context.Context, evt schema.EventV1) (string, error)
}

// Notifier observes each freshly ingested event. Implementations decide
// whether the event warrants an operator alert.
type Notifier interface {
	EventIngested(ctx context.Context, evt schema.EventV1)
}

// Runner executes poll cycles for one adapter.
type Runner struct {
	adapter  Adapter
	mode     Mode
	events   eventstore.Store
	blobs    BlobStore
	notifier Notifier
	metrics  *telemetry.PipelineMetrics
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

// RunnerOption configures optional runner collaborators.
type RunnerOption func(*Runner)

// WithNotifier wires the post-insert alert hook.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithMetrics wires the pipeline instruments.
func WithMetrics(m *telemetry.PipelineMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the cycle logger. A nil logger silences the runner.
func WithLogger(l *log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the ingest clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithIDSource overrides event ID generation.
func WithIDSource(fn func() string) RunnerOption {
	return func(r *Runner) { r.newID = fn }
}

// NewRunner wires adapter to the event store and blob archive.
func NewRunner(adapter Adapter, mode Mode, events eventstore.Store, blobs BlobStore, opts ...RunnerOption) *Runner {
	r := &Runner{
		adapter: adapter,
		mode:    mode,
		events:  events,
		blobs:   blobs,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RunOnce executes one poll cycle. Per-record failures are counted and
// logged without aborting the cycle; only a fetch failure returns an error.
func (r *Runner) RunOnce(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	raws, err := r.adapter.Fetch(ctx)
	if err != nil {
		stats.Errors++
		r.metrics.IncError(ctx, r.adapter.Name())
		return stats, fmt.Errorf("fetch %s: %w", r.adapter.Name(), err)
	}

	for _, raw := range raws {
		stats.Fetched++
		outcome, err := r.ingest(ctx, r.now().UTC(), raw)
		if outcome.ingested {
			stats.Ingested++
		}
		if outcome.deduped {
			stats.Deduped++
			r.metrics.IncDeduped(ctx, string(r.adapter.Source()))
		}
		if err != nil {
			stats.Errors++
			r.metrics.IncError(ctx, r.adapter.Name())
			r.logf("%s: process record: %v", r.adapter.Name(), err)
		}
	}
	return stats, nil
}

type recordOutcome struct {
	ingested bool
	deduped  bool
}

// ingest runs one record through the pipeline. The raw blob is archived
// before the dedupe check; duplicates therefore still leave a raw capture.
func (r *Runner) ingest(ctx context.Context, now time.Time, raw Raw) (recordOutcome, error) {
	partial, err := r.adapter.Normalize(raw)
	if err != nil {
		return recordOutcome{}, fmt.Errorf("normalize: %w", err)
	}

	eventID := r.newID()
	tsEvent := partial.TsEvent
	if tsEvent.IsZero() {
		tsEvent = now
	}
	tsEvent = tsEvent.UTC()

	rawURI, err := r.blobs.WriteRaw(ctx, r.adapter.Source(), eventID, tsEvent, raw)
	if err != nil {
		return recordOutcome{}, fmt.Errorf("archive raw record: %w", err)
	}

	dedupeKey := partial.DedupeKey
	if dedupeKey == "" {
		dedupeKey, err = partial.contentKey()
		if err != nil {
			return recordOutcome{}, fmt.Errorf("derive dedupe key: %w", err)
		}
	}

	severity := schema.DefaultSeverity
	if partial.Severity != nil {
		severity = *partial.Severity
	}
	payload := partial.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	evt := schema.EventV1{
		EventID:       eventID,
		SchemaVersion: schema.Version,
		EventType:     partial.EventType,
		Source:        r.adapter.Source(),
		Symbol:        partial.Symbol,
		EntityID:      partial.EntityID,
		TsEvent:       tsEvent,
		TsIngested:    now,
		DedupeKey:     dedupeKey,
		Severity:      severity,
		Confidence:    partial.Confidence,
		Payload:       payload,
		PayloadRefs:   schema.PayloadRefs{Raw: rawURI},
	}

	encoded, err := schema.Encode(evt)
	if err != nil {
		return recordOutcome{}, err
	}
	var outboxPayload json.RawMessage
	if r.mode == ModeEmit {
		outboxPayload = encoded
	}

	res, err := r.events.Insert(ctx, evt, outboxPayload)
	if err != nil {
		return recordOutcome{}, fmt.Errorf("persist event: %w", err)
	}
	if res.Deduped {
		return recordOutcome{deduped: true}, nil
	}

	r.metrics.ObserveIngestionLag(ctx, string(evt.Source), string(evt.EventType), evt.TsIngested.Sub(evt.TsEvent))
	if r.notifier != nil {
		r.notifier.EventIngested(ctx, evt)
	}

	// Lineage only; the committed row stands even when this write fails.
	if _, err := r.blobs.WriteEvent(ctx, evt); err != nil {
		return recordOutcome{ingested: true}, fmt.Errorf("archive canonical event: %w", err)
	}
	return recordOutcome{ingested: true}, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
