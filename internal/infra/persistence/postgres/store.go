package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tip/internal/infra/persistence"
)

// Store bundles the PostgreSQL-backed repositories used by the pipeline.
type Store struct {
	*persistence.Store
	Events    *EventStore
	Outbox    *OutboxStore
	Artifacts *ArtifactStore
	Canary    *CanaryStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Store:     persistence.NewStore(pool),
		Events:    NewEventStore(pool),
		Outbox:    NewOutboxStore(pool),
		Artifacts: NewArtifactStore(pool),
		Canary:    NewCanaryStore(pool),
	}
}
