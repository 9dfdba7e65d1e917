package schema

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quantfold/tip/errs"
)

func validEvent() EventV1 {
	conf := 0.81
	return EventV1{
		EventID:       "6a0f39c2-3c6e-4d0f-9a44-1c4f6ea1b7d2",
		SchemaVersion: Version,
		EventType:     EventTypeSocialMentions,
		Source:        SourceWSB,
		Symbol:        "OPEN",
		EntityID:      "wallstreetbets",
		TsEvent:       time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		TsIngested:    time.Date(2023, 11, 14, 22, 13, 25, 0, time.UTC),
		DedupeKey:     "reddit:wallstreetbets:abc123",
		Severity:      10,
		Confidence:    &conf,
		Payload:       map[string]any{"title": "$OPEN to the moon"},
		PayloadRefs:   PayloadRefs{Raw: "s3://tip-dev/raw/wsb/yyyy=2023/mm=11/dd=14/x.json.gz"},
	}
}

func TestEventValidateAcceptsCanonicalEvent(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

func TestEventValidateBoundaries(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	tests := []struct {
		name      string
		mutate    func(e *EventV1)
		wantField string
	}{
		{"severity below range", func(e *EventV1) { e.Severity = -1 }, "severity"},
		{"severity zero ok", func(e *EventV1) { e.Severity = 0 }, ""},
		{"severity hundred ok", func(e *EventV1) { e.Severity = 100 }, ""},
		{"severity above range", func(e *EventV1) { e.Severity = 101 }, "severity"},
		{"confidence below range", func(e *EventV1) { e.Confidence = conf(-0.01) }, "confidence"},
		{"confidence zero ok", func(e *EventV1) { e.Confidence = conf(0) }, ""},
		{"confidence one ok", func(e *EventV1) { e.Confidence = conf(1) }, ""},
		{"confidence above range", func(e *EventV1) { e.Confidence = conf(1.01) }, "confidence"},
		{"confidence absent ok", func(e *EventV1) { e.Confidence = nil }, ""},
		{"symbol single char ok", func(e *EventV1) { e.Symbol = "A" }, ""},
		{"symbol sixteen chars ok", func(e *EventV1) { e.Symbol = strings.Repeat("A", 16) }, ""},
		{"symbol seventeen chars rejected", func(e *EventV1) { e.Symbol = strings.Repeat("A", 17) }, "symbol"},
		{"symbol lowercase rejected", func(e *EventV1) { e.Symbol = "open" }, "symbol"},
		{"symbol class share ok", func(e *EventV1) { e.Symbol = "BRK.B" }, ""},
		{"symbol dashed ok", func(e *EventV1) { e.Symbol = "BF-B" }, ""},
		{"symbol digits rejected", func(e *EventV1) { e.Symbol = "A1" }, "symbol"},
		{"symbol absent ok", func(e *EventV1) { e.Symbol = "" }, ""},
		{"unknown event type rejected", func(e *EventV1) { e.EventType = "SOCIAL.POSTS" }, "eventType"},
		{"unknown source rejected", func(e *EventV1) { e.Source = "forum" }, "source"},
		{"wrong schema version rejected", func(e *EventV1) { e.SchemaVersion = "v2" }, "schemaVersion"},
		{"malformed event id rejected", func(e *EventV1) { e.EventID = "not-a-uuid" }, "eventId"},
		{"empty dedupe key rejected", func(e *EventV1) { e.DedupeKey = "" }, "dedupeKey"},
		{"zero ingest time rejected", func(e *EventV1) { e.TsIngested = time.Time{} }, "tsIngested"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := validEvent()
			tt.mutate(&evt)
			err := evt.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid event, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation failure on %s", tt.wantField)
			}
			var e *errs.E
			if !errors.As(err, &e) {
				t.Fatalf("expected structured error, got %T: %v", err, err)
			}
			if e.Code != errs.CodeInvalidEvent {
				t.Fatalf("expected invalid_event code, got %q", e.Code)
			}
			if e.Field != tt.wantField {
				t.Fatalf("expected field %q, got %q (%v)", tt.wantField, e.Field, err)
			}
		})
	}
}
