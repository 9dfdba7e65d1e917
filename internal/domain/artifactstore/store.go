// Package artifactstore defines persistence contracts for derived event
// artifacts written by downstream consumers.
package artifactstore

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// Artifact describes a derived annotation tied to an event.
type Artifact struct {
	EventID      string
	ArtifactType string
	ModelName    string
	ArtifactJSON json.RawMessage
	ArtifactURI  string
}

// Record captures the persisted state of an artifact row.
type Record struct {
	ArtifactID int64
	Artifact
	CreatedAt time.Time
}

// Store abstracts persistence operations for event artifacts.
type Store interface {
	Insert(ctx context.Context, artifact Artifact) (Record, error)
}
