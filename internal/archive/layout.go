// Package archive writes immutable gzip-JSON blobs to the object store using
// the partitioned key layout shared with downstream indexers.
package archive

import (
	"fmt"
	"time"

	"github.com/quantfold/tip/internal/schema"
)

// datePath renders the yyyy=/mm=/dd= partition segment for ts in UTC.
func datePath(ts time.Time) string {
	u := ts.UTC()
	return fmt.Sprintf("yyyy=%04d/mm=%02d/dd=%02d", u.Year(), int(u.Month()), u.Day())
}

// RawKey locates the verbatim upstream record for an event.
func RawKey(source schema.Source, eventID string, ts time.Time) string {
	return fmt.Sprintf("raw/%s/%s/%s.json.gz", source, datePath(ts), eventID)
}

// EventKey locates the canonical JSON for an event.
func EventKey(eventType schema.EventType, eventID string, ts time.Time) string {
	return fmt.Sprintf("events/eventType=%s/%s/%s.json.gz", eventType, datePath(ts), eventID)
}

// EnrichedKey locates a model annotation blob for an event.
func EnrichedKey(model string, eventType schema.EventType, eventID string, ts time.Time) string {
	return fmt.Sprintf("enriched/model=%s/eventType=%s/%s/%s.json.gz", model, eventType, datePath(ts), eventID)
}

// DailyIndexKey locates the columnar daily index partition for an event type.
// The layout is reserved here; index files are produced by a downstream
// writer and stored as application/octet-stream.
func DailyIndexKey(eventType schema.EventType, day time.Time) string {
	return fmt.Sprintf("indexes/daily/eventType=%s/%s/part-000.parquet", eventType, datePath(day))
}
