package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// PromExporter is an implementation of trace.SpanExporter that turns finished spans into metrics.
type PromExporter struct {
	metrics *Metrics
}

func NewPromExporter(m *Metrics) *PromExporter {
	return &PromExporter{
		metrics: m,
	}
}

// ExportSpans observes each span in the MetricSet of its kind.
func (e *PromExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := attributesToMap(s.Attributes())

		kind := attrs[AttributeKeyKind]

		ms := e.metrics.MetricSet(kind)
		if ms == nil {
			continue
		}

		labelValues := []string{}
		for i := 0; i < len(e.metrics.labelNames)-1; i++ {
			labelName := e.metrics.labelNames[i]
			if labelName == kind {
				break
			}
			labelValues = append(labelValues, attrs[kindToAttributeKey(labelName)])
		}
		labelValues = append(labelValues, s.Name())

		ms.Observe(s.StartTime(), s.EndTime(), s.Status().Code.String(), labelValues)
	}

	return nil
}

func (e *PromExporter) Shutdown(ctx context.Context) error {
	return nil
}

func attributesToMap(kvs []attribute.KeyValue) map[string]string {
	m := map[string]string{}
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}
