package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/internal/domain/artifactstore"
	"github.com/quantfold/tip/internal/schema"
	"github.com/quantfold/tip/internal/telemetry"
)

const (
	artifactTypeTickerMention = "ticker_mention"
	processorModelName        = "event_processor_v1"
)

// TickerMentionProcessor writes one ticker_mention artifact per ticker
// carried by a social-mentions event. Every other event type is acknowledged
// untouched. Artifact writes are not transactional across tickers; a
// redelivered message can duplicate mention rows.
type TickerMentionProcessor struct {
	artifacts artifactstore.Store
	metrics   *telemetry.PipelineMetrics
	logger    *log.Logger
}

// ProcessorOption adjusts processor construction.
type ProcessorOption func(*TickerMentionProcessor)

// WithProcessorMetrics attaches pipeline metrics.
func WithProcessorMetrics(m *telemetry.PipelineMetrics) ProcessorOption {
	return func(p *TickerMentionProcessor) { p.metrics = m }
}

// WithProcessorLogger attaches a logger.
func WithProcessorLogger(l *log.Logger) ProcessorOption {
	return func(p *TickerMentionProcessor) { p.logger = l }
}

// NewTickerMentionProcessor builds the processor over the artifact store.
func NewTickerMentionProcessor(artifacts artifactstore.Store, opts ...ProcessorOption) *TickerMentionProcessor {
	p := &TickerMentionProcessor{artifacts: artifacts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle decodes one queued event body and fans its tickers out to artifact
// rows. Bodies without a social-mentions type, including replayed bare
// payloads, are acknowledged as processed.
func (p *TickerMentionProcessor) Handle(ctx context.Context, body []byte) error {
	started := time.Now()

	var event struct {
		EventID   string           `json:"eventId"`
		EventType schema.EventType `json:"eventType"`
		Payload   map[string]any   `json:"payload"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode event body: %w", err)
	}

	p.logf("consumer: processing event %s (%s)", event.EventID, event.EventType)
	if event.EventType != schema.EventTypeSocialMentions {
		return nil
	}

	tickers := tickerList(event.Payload["tickers"])
	if len(tickers) == 0 {
		return nil
	}
	sentiment := event.Payload["sentiment"]

	for _, ticker := range tickers {
		artifactJSON, err := json.Marshal(map[string]any{
			"ticker":            ticker,
			"sentiment":         sentiment,
			"source_event_type": schema.EventTypeSocialMentions,
		})
		if err != nil {
			return fmt.Errorf("encode ticker artifact: %w", err)
		}
		if _, err := p.artifacts.Insert(ctx, artifactstore.Artifact{
			EventID:      event.EventID,
			ArtifactType: artifactTypeTickerMention,
			ModelName:    processorModelName,
			ArtifactJSON: artifactJSON,
		}); err != nil {
			return fmt.Errorf("insert ticker artifact: %w", err)
		}
	}

	p.metrics.ObserveEnrichmentLatency(ctx, processorModelName, time.Since(started))
	p.logf("consumer: created %d ticker artifacts for event %s", len(tickers), event.EventID)
	return nil
}

func tickerList(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func (p *TickerMentionProcessor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

var _ Handler = (*TickerMentionProcessor)(nil)
