package postgres

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/internal/domain/artifactstore"
	"github.com/quantfold/tip/internal/domain/canarystore"
	"github.com/quantfold/tip/internal/domain/eventstore"
	"github.com/quantfold/tip/internal/schema"
)

func TestEventStoreNilPool(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()
	evt := schema.EventV1{
		EventID:       "6a0f39c2-3c6e-4d0f-9a44-1c4f6ea1b7d2",
		SchemaVersion: schema.Version,
		EventType:     schema.EventTypeSocialMentions,
		Source:        schema.SourceWSB,
		DedupeKey:     "reddit:wallstreetbets:abc123",
	}
	if _, err := store.Insert(ctx, evt, nil); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := store.ListWindow(ctx, eventstore.ByEventTime, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestEventStoreListWindowRejectsUnknownColumn(t *testing.T) {
	store := NewEventStore(nil)
	if _, err := store.ListWindow(context.Background(), eventstore.TimeColumn("created_at"), time.Now(), time.Now()); err == nil {
		t.Fatalf("expected unknown column to be rejected")
	}
}

func TestOutboxStoreNilPool(t *testing.T) {
	store := NewOutboxStore(nil)
	ctx := context.Background()
	if _, err := store.ListPending(ctx, 10); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if err := store.MarkPublished(ctx, []int64{1}, time.Now()); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestArtifactStoreNilPool(t *testing.T) {
	store := NewArtifactStore(nil)
	artifact := artifactstore.Artifact{
		EventID:      "6a0f39c2-3c6e-4d0f-9a44-1c4f6ea1b7d2",
		ArtifactType: "ticker_mention",
		ArtifactJSON: json.RawMessage(`{"symbol":"OPEN"}`),
	}
	if _, err := store.Insert(context.Background(), artifact); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestArtifactStoreRequiresTypeAndEvent(t *testing.T) {
	store := NewArtifactStore(nil)
	if _, err := store.Insert(context.Background(), artifactstore.Artifact{EventID: "x"}); err == nil {
		t.Fatalf("expected missing artifact type to fail")
	}
	if _, err := store.Insert(context.Background(), artifactstore.Artifact{ArtifactType: "ticker_mention"}); err == nil {
		t.Fatalf("expected missing event id to fail")
	}
}

func TestCanaryStoreNilPool(t *testing.T) {
	store := NewCanaryStore(nil)
	run := canarystore.Run{
		Service:   "edgar",
		Version:   "0.4.0",
		StatsJSON: json.RawMessage(`{"cycles":1}`),
		Status:    "ok",
	}
	if _, err := store.Insert(context.Background(), run); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestCanaryStoreRequiresServiceAndStatus(t *testing.T) {
	store := NewCanaryStore(nil)
	if _, err := store.Insert(context.Background(), canarystore.Run{Status: "ok"}); err == nil {
		t.Fatalf("expected missing service to fail")
	}
	if _, err := store.Insert(context.Background(), canarystore.Run{Service: "edgar"}); err == nil {
		t.Fatalf("expected missing status to fail")
	}
}
