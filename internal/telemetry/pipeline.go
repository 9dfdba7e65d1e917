package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics bundles the instruments shared by connectors, the
// dispatcher, and the consumer. A nil receiver is safe everywhere so
// components can run without telemetry wired.
type PipelineMetrics struct {
	ingestionLag      metric.Float64Histogram
	errors            metric.Int64Counter
	deduped           metric.Int64Counter
	enrichmentLatency metric.Float64Histogram
	llmSpend          metric.Float64Counter
	outboxPublished   metric.Int64Counter
	consumerMessages  metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline instruments on the global meter provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("tip.pipeline")

	ingestionLag, err := meter.Float64Histogram("tip_ingestion_lag_seconds",
		metric.WithDescription("Delay between event occurrence and ingestion"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create ingestion lag histogram: %w", err)
	}

	errCounter, err := meter.Int64Counter("tip_errors_total",
		metric.WithDescription("Pipeline errors by component"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, fmt.Errorf("create error counter: %w", err)
	}

	deduped, err := meter.Int64Counter("tip_deduped_total",
		metric.WithDescription("Events skipped because their dedupe key was already ingested"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create dedupe counter: %w", err)
	}

	enrichmentLatency, err := meter.Float64Histogram("tip_enrichment_latency_seconds",
		metric.WithDescription("Latency of enrichment model invocations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create enrichment latency histogram: %w", err)
	}

	llmSpend, err := meter.Float64Counter("tip_llm_spend_usd_total",
		metric.WithDescription("Cumulative enrichment model spend in USD"),
		metric.WithUnit("{usd}"))
	if err != nil {
		return nil, fmt.Errorf("create llm spend counter: %w", err)
	}

	outboxPublished, err := meter.Int64Counter("tip_outbox_published_total",
		metric.WithDescription("Outbox rows published to the event bus"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, fmt.Errorf("create outbox counter: %w", err)
	}

	consumerMessages, err := meter.Int64Counter("tip_consumer_messages_total",
		metric.WithDescription("Bus messages handled by the consumer, by result"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, fmt.Errorf("create consumer counter: %w", err)
	}

	return &PipelineMetrics{
		ingestionLag:      ingestionLag,
		errors:            errCounter,
		deduped:           deduped,
		enrichmentLatency: enrichmentLatency,
		llmSpend:          llmSpend,
		outboxPublished:   outboxPublished,
		consumerMessages:  consumerMessages,
	}, nil
}

// ObserveIngestionLag records the event-time to ingest-time delay for a feed.
// Negative lags (clock skew upstream) clamp to zero.
func (m *PipelineMetrics) ObserveIngestionLag(ctx context.Context, source, eventType string, lag time.Duration) {
	if m == nil {
		return
	}
	seconds := lag.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.ingestionLag.Record(ctx, seconds,
		metric.WithAttributes(append(
			SourceAttributes(Environment(), source),
			AttrEventType.String(eventType))...))
}

// IncError counts one failure attributed to a pipeline component.
func (m *PipelineMetrics) IncError(ctx context.Context, component string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1,
		metric.WithAttributes(ComponentAttributes(Environment(), component)...))
}

// IncDeduped counts one duplicate skipped during ingestion.
func (m *PipelineMetrics) IncDeduped(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.deduped.Add(ctx, 1,
		metric.WithAttributes(SourceAttributes(Environment(), source)...))
}

// ObserveEnrichmentLatency records one enrichment model round trip.
func (m *PipelineMetrics) ObserveEnrichmentLatency(ctx context.Context, model string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.enrichmentLatency.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(ModelAttributes(Environment(), model)...))
}

// AddLLMSpend accumulates enrichment spend in USD.
func (m *PipelineMetrics) AddLLMSpend(ctx context.Context, model string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.llmSpend.Add(ctx, usd,
		metric.WithAttributes(ModelAttributes(Environment(), model)...))
}

// AddOutboxPublished counts rows the dispatcher published this cycle.
func (m *PipelineMetrics) AddOutboxPublished(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.outboxPublished.Add(ctx, int64(count),
		metric.WithAttributes(ComponentAttributes(Environment(), "dispatcher")...))
}

// IncConsumerMessage counts one bus message by handling result.
func (m *PipelineMetrics) IncConsumerMessage(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.consumerMessages.Add(ctx, 1,
		metric.WithAttributes(ResultAttributes(Environment(), "consumer", result)...))
}
