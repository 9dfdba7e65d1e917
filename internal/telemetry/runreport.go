package telemetry

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// RunSummary aggregates connector counters across one process run. Canary
// rows persist it so deploys can compare a new build against the fleet.
type RunSummary struct {
	Service   string    `json:"service"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Cycles    int       `json:"cycles"`
	Fetched   int       `json:"fetched"`
	Ingested  int       `json:"ingested"`
	Deduped   int       `json:"deduped"`
	Errors    int       `json:"errors"`
}

// Status classifies the run: ok when clean, degraded when errors occurred but
// events still landed, failed when errors occurred and nothing was ingested.
func (s RunSummary) Status() string {
	switch {
	case s.Errors == 0:
		return "ok"
	case s.Ingested > 0:
		return "degraded"
	default:
		return "failed"
	}
}

// StatsJSON renders the summary for the canary_runs stats column.
func (s RunSummary) StatsJSON() ([]byte, error) {
	return json.Marshal(s)
}

// RunReporter accumulates per-cycle counters for a connector process.
type RunReporter struct {
	mu      sync.Mutex
	summary RunSummary
	clock   func() time.Time
	emitter func(RunSummary)
}

// NewRunReporter starts a reporter for the named service, stamping the start time.
func NewRunReporter(service string) *RunReporter {
	r := &RunReporter{
		summary: RunSummary{Service: service},
		clock:   time.Now,
	}
	r.summary.StartedAt = r.clock().UTC()
	return r
}

// WithClock overrides the internal clock, primarily for testing.
func (r *RunReporter) WithClock(clock func() time.Time) *RunReporter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clock == nil {
		r.clock = time.Now
	} else {
		r.clock = clock
	}
	r.summary.StartedAt = r.clock().UTC()
	return r
}

// SetEmitter registers a callback invoked when the run finishes.
func (r *RunReporter) SetEmitter(emitter func(RunSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitter = emitter
}

// RecordCycle folds one ingestion cycle's counters into the run totals.
func (r *RunReporter) RecordCycle(fetched, ingested, deduped, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Cycles++
	r.summary.Fetched += fetched
	r.summary.Ingested += ingested
	r.summary.Deduped += deduped
	r.summary.Errors += errs
}

// Finish stamps the end time, emits the summary if an emitter is registered,
// and returns it.
func (r *RunReporter) Finish() RunSummary {
	r.mu.Lock()
	r.summary.EndedAt = r.clock().UTC()
	summary := r.summary
	emitter := r.emitter
	r.mu.Unlock()
	if emitter != nil {
		emitter(summary)
	}
	return summary
}

// Snapshot returns the totals so far without closing the run.
func (r *RunReporter) Snapshot() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}
