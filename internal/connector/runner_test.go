package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/quantfold/tip/internal/domain/eventstore"
	"github.com/quantfold/tip/internal/schema"
)

type insertCall struct {
	evt    schema.EventV1
	outbox json.RawMessage
}

type memStore struct {
	mu        sync.Mutex
	inserts   []insertCall
	seen      map[string]bool
	insertErr error
}

func (s *memStore) Insert(_ context.Context, evt schema.EventV1, outboxPayload json.RawMessage) (eventstore.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return eventstore.InsertResult{}, s.insertErr
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[evt.DedupeKey] {
		return eventstore.InsertResult{Deduped: true}, nil
	}
	s.seen[evt.DedupeKey] = true
	s.inserts = append(s.inserts, insertCall{evt: evt, outbox: outboxPayload})
	return eventstore.InsertResult{}, nil
}

func (s *memStore) ListWindow(context.Context, eventstore.TimeColumn, time.Time, time.Time) ([]eventstore.Record, error) {
	return nil, nil
}

type memBlobs struct {
	order    []string
	rawErr   error
	eventErr error
}

func (b *memBlobs) WriteRaw(_ context.Context, _ schema.Source, eventID string, _ time.Time, _ map[string]any) (string, error) {
	if b.rawErr != nil {
		return "", b.rawErr
	}
	b.order = append(b.order, "raw:"+eventID)
	return "s3://test/raw/" + eventID, nil
}

func (b *memBlobs) WriteEvent(_ context.Context, evt schema.EventV1) (string, error) {
	if b.eventErr != nil {
		return "", b.eventErr
	}
	b.order = append(b.order, "event:"+evt.EventID)
	return "s3://test/events/" + evt.EventID, nil
}

type captureNotifier struct {
	events []schema.EventV1
}

func (n *captureNotifier) EventIngested(_ context.Context, evt schema.EventV1) {
	n.events = append(n.events, evt)
}

type fakeAdapter struct {
	name      string
	source    schema.Source
	raws      []Raw
	fetchErr  error
	fetches   int
	onFetch   func()
	normalize func(Raw) (Partial, error)
}

func (a *fakeAdapter) Name() string {
	if a.name == "" {
		return "fake"
	}
	return a.name
}

func (a *fakeAdapter) Source() schema.Source {
	if a.source == "" {
		return schema.SourceSystem
	}
	return a.source
}

func (a *fakeAdapter) Fetch(context.Context) ([]Raw, error) {
	a.fetches++
	if a.onFetch != nil {
		a.onFetch()
	}
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.raws, nil
}

func (a *fakeAdapter) Normalize(raw Raw) (Partial, error) {
	if a.normalize != nil {
		return a.normalize(raw)
	}
	return Partial{
		EventType: schema.EventTypeSystemHealth,
		Payload:   map[string]any{"key": raw["key"]},
		DedupeKey: fmt.Sprintf("fake:%v", raw["key"]),
	}, nil
}

var testClock = func() time.Time {
	return time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "shadow", want: ModeShadow},
		{in: "emit", want: ModeEmit},
		{in: " EMIT ", want: ModeEmit},
		{in: "", wantErr: true},
		{in: "both", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%q", tc.in), func(t *testing.T) {
			got, err := ParseMode(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseMode(%q) accepted", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRunOnceIngestsAndArchives(t *testing.T) {
	store := new(memStore)
	blobs := new(memBlobs)
	adapter := &fakeAdapter{raws: []Raw{{"key": "one"}}}
	r := NewRunner(adapter, ModeShadow, store, blobs, WithClock(testClock))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 1, Ingested: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(store.inserts) != 1 {
		t.Fatalf("inserted %d events, want 1", len(store.inserts))
	}

	evt := store.inserts[0].evt
	if evt.SchemaVersion != schema.Version {
		t.Fatalf("schema version = %q", evt.SchemaVersion)
	}
	if evt.Source != schema.SourceSystem {
		t.Fatalf("source = %q", evt.Source)
	}
	if evt.DedupeKey != "fake:one" {
		t.Fatalf("dedupe key = %q", evt.DedupeKey)
	}
	if evt.Severity != schema.DefaultSeverity {
		t.Fatalf("severity = %d, want default %d", evt.Severity, schema.DefaultSeverity)
	}
	if evt.TsEvent != testClock() || evt.TsIngested != testClock() {
		t.Fatalf("timestamps not stamped with runner clock: %v / %v", evt.TsEvent, evt.TsIngested)
	}
	if evt.PayloadRefs.Raw != "s3://test/raw/"+evt.EventID {
		t.Fatalf("raw ref = %q", evt.PayloadRefs.Raw)
	}
	if err := uuid.Validate(evt.EventID); err != nil {
		t.Fatalf("event id %q: %v", evt.EventID, err)
	}
	if store.inserts[0].outbox != nil {
		t.Fatal("shadow mode must not attach an outbox payload")
	}

	wantOrder := []string{"raw:" + evt.EventID, "event:" + evt.EventID}
	if len(blobs.order) != 2 || blobs.order[0] != wantOrder[0] || blobs.order[1] != wantOrder[1] {
		t.Fatalf("blob order = %v, want %v", blobs.order, wantOrder)
	}
}

func TestRunOnceEmitModeAttachesOutboxPayload(t *testing.T) {
	store := new(memStore)
	adapter := &fakeAdapter{raws: []Raw{{"key": "one"}}}
	r := NewRunner(adapter, ModeEmit, store, new(memBlobs), WithClock(testClock))

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	payload := store.inserts[0].outbox
	if payload == nil {
		t.Fatal("emit mode must attach the canonical payload")
	}
	decoded, err := schema.Decode(payload)
	if err != nil {
		t.Fatalf("decode outbox payload: %v", err)
	}
	if decoded.EventID != store.inserts[0].evt.EventID {
		t.Fatalf("outbox event id = %q, want %q", decoded.EventID, store.inserts[0].evt.EventID)
	}
	if decoded.DedupeKey != "fake:one" {
		t.Fatalf("outbox dedupe key = %q", decoded.DedupeKey)
	}
}

func TestRunOnceCountsDuplicates(t *testing.T) {
	store := new(memStore)
	notifier := new(captureNotifier)
	adapter := &fakeAdapter{raws: []Raw{{"key": "same"}, {"key": "same"}}}
	r := NewRunner(adapter, ModeShadow, store, new(memBlobs),
		WithClock(testClock), WithNotifier(notifier))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 2, Ingested: 1, Deduped: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("notifier saw %d events, want 1 (duplicates are silent)", len(notifier.events))
	}
}

func TestRunOnceNormalizeFailureSkipsArchive(t *testing.T) {
	store := new(memStore)
	blobs := new(memBlobs)
	adapter := &fakeAdapter{
		raws:      []Raw{{"key": "bad"}},
		normalize: func(Raw) (Partial, error) { return Partial{}, errors.New("mangled record") },
	}
	r := NewRunner(adapter, ModeShadow, store, blobs, WithClock(testClock))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 1, Errors: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(blobs.order) != 0 {
		t.Fatalf("blob writes = %v, want none before normalization", blobs.order)
	}
	if len(store.inserts) != 0 {
		t.Fatal("nothing should be persisted for a failed record")
	}
}

func TestRunOnceValidationFailureLeavesOrphanRawBlob(t *testing.T) {
	store := new(memStore)
	blobs := new(memBlobs)
	bad := -5
	adapter := &fakeAdapter{
		raws: []Raw{{"key": "angry"}},
		normalize: func(Raw) (Partial, error) {
			return Partial{
				EventType: schema.EventTypeSocialMentions,
				Severity:  &bad,
				DedupeKey: "fake:angry",
			}, nil
		},
	}
	r := NewRunner(adapter, ModeShadow, store, blobs, WithClock(testClock))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 1, Errors: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(blobs.order) != 1 {
		t.Fatalf("blob writes = %v, want the orphan raw capture", blobs.order)
	}
	if len(store.inserts) != 0 {
		t.Fatal("invalid event must not be persisted")
	}
}

func TestRunOnceCanonicalArchiveFailureStillCountsIngested(t *testing.T) {
	store := new(memStore)
	blobs := new(memBlobs)
	adapter := &fakeAdapter{raws: []Raw{{"key": "one"}}}
	r := NewRunner(adapter, ModeShadow, store, blobs, WithClock(testClock))
	blobs.eventErr = errors.New("bucket gone")

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 1, Ingested: 1, Errors: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(store.inserts) != 1 {
		t.Fatal("committed row must stand despite the archive failure")
	}
}

func TestRunOnceFetchFailureAbortsCycle(t *testing.T) {
	adapter := &fakeAdapter{fetchErr: errors.New("upstream down")}
	r := NewRunner(adapter, ModeShadow, new(memStore), new(memBlobs), WithClock(testClock))

	stats, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected fetch error")
	}
	want := CycleStats{Errors: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestRunOnceSynthesizesDedupeKeyFromContent(t *testing.T) {
	store := new(memStore)
	adapter := &fakeAdapter{
		raws: []Raw{{"n": 1}, {"n": 1}},
		normalize: func(Raw) (Partial, error) {
			return Partial{
				EventType: schema.EventTypeSystemHealth,
				TsEvent:   testClock(),
				Payload:   map[string]any{"n": 1},
			}, nil
		},
	}
	r := NewRunner(adapter, ModeShadow, store, new(memBlobs), WithClock(testClock))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 2, Ingested: 1, Deduped: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(store.inserts) != 1 {
		t.Fatalf("inserted %d, want 1", len(store.inserts))
	}
	if store.inserts[0].evt.DedupeKey == "" {
		t.Fatal("runner must synthesize a dedupe key")
	}
}

func TestRunOnceStoreFailureCounts(t *testing.T) {
	store := &memStore{insertErr: errors.New("connection reset")}
	adapter := &fakeAdapter{raws: []Raw{{"key": "one"}}}
	r := NewRunner(adapter, ModeShadow, store, new(memBlobs), WithClock(testClock))

	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := CycleStats{Fetched: 1, Errors: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
