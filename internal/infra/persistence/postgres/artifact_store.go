package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tip/internal/domain/artifactstore"
)

// ArtifactStore persists derived annotations produced by consumers.
type ArtifactStore struct {
	pool *pgxpool.Pool
}

// NewArtifactStore constructs an ArtifactStore backed by the provided pool.
func NewArtifactStore(pool *pgxpool.Pool) *ArtifactStore {
	return &ArtifactStore{pool: pool}
}

const artifactInsertSQL = `
INSERT INTO event_artifacts (
    event_id,
    artifact_type,
    model_name,
    artifact_json,
    artifact_s3_uri,
    created_at
)
VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb), $5, NOW())
RETURNING
    artifact_id,
    event_id,
    artifact_type,
    model_name,
    artifact_json,
    artifact_s3_uri,
    created_at;
`

// Insert stores a new artifact row for an event.
func (s *ArtifactStore) Insert(ctx context.Context, artifact artifactstore.Artifact) (artifactstore.Record, error) {
	artifactType := strings.TrimSpace(artifact.ArtifactType)
	if artifactType == "" {
		return artifactstore.Record{}, fmt.Errorf("artifact store: artifact type required")
	}
	if strings.TrimSpace(artifact.EventID) == "" {
		return artifactstore.Record{}, fmt.Errorf("artifact store: event id required")
	}
	if s.pool == nil {
		return artifactstore.Record{}, fmt.Errorf("artifact store: nil pool")
	}
	row := s.pool.QueryRow(ctx, artifactInsertSQL,
		artifact.EventID,
		artifactType,
		textOrNil(artifact.ModelName),
		[]byte(artifact.ArtifactJSON),
		textOrNil(artifact.ArtifactURI),
	)
	return scanArtifactRecord(row)
}

func scanArtifactRecord(row rowScanner) (artifactstore.Record, error) {
	var (
		record    artifactstore.Record
		modelName pgtype.Text
		uri       pgtype.Text
		payload   []byte
	)
	if err := row.Scan(
		&record.ArtifactID,
		&record.EventID,
		&record.ArtifactType,
		&modelName,
		&payload,
		&uri,
		&record.CreatedAt,
	); err != nil {
		return artifactstore.Record{}, fmt.Errorf("artifact store: scan record: %w", err)
	}
	if modelName.Valid {
		record.ModelName = modelName.String
	}
	if uri.Valid {
		record.ArtifactURI = uri.String
	}
	record.ArtifactJSON = payload
	return record, nil
}

var _ artifactstore.Store = (*ArtifactStore)(nil)
