// Package canarystore defines persistence contracts for connector run reports.
package canarystore

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// Run captures one connector process run for deploy comparison.
type Run struct {
	Service   string
	Version   string
	StatsJSON json.RawMessage
	Status    string
}

// Record is a persisted run report.
type Record struct {
	ID int64
	Run
	CreatedAt time.Time
}

// Store persists connector run reports.
type Store interface {
	Insert(ctx context.Context, run Run) (Record, error)
}
