// Package telemetry provides semantic conventions for pipeline observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across pipeline metrics. Names follow OpenTelemetry
// conventions: namespace.attribute_name.
const (
	// AttrSource identifies the upstream feed (edgar, wsb, market, llm, system).
	AttrSource = attribute.Key("source")
	// AttrEventType annotates counters with the canonical event classification.
	AttrEventType = attribute.Key("event.type")
	// AttrComponent names the pipeline stage that produced a signal (connector, dispatcher, consumer, archive).
	AttrComponent = attribute.Key("component")
	// AttrModel labels enrichment metrics with the model that produced the artifact.
	AttrModel = attribute.Key("model.name")
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrResult records the outcome of an operation (ok, error, deduped, ...).
	AttrResult = attribute.Key("result")
)

// SourceAttributes returns common attributes for per-feed metrics.
func SourceAttributes(environment, source string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrSource.String(source),
	}
}

// ComponentAttributes returns attributes for error and throughput metrics.
func ComponentAttributes(environment, component string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrComponent.String(component),
	}
}

// ModelAttributes returns attributes for enrichment metrics.
func ModelAttributes(environment, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
	}
	if model != "" {
		attrs = append(attrs, AttrModel.String(model))
	}
	return attrs
}

// ResultAttributes returns attributes for operations classified by outcome.
func ResultAttributes(environment, component, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrComponent.String(component),
		AttrResult.String(result),
	}
}
