// See:
//   https://godoc.org/github.com/prometheus/client_golang/prometheus/push#Pusher.Push
//   https://prometheus.io/docs/instrumenting/pushing/
package telemetry

import (
	"context"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics represents a collection of metrics, one MetricSet per span kind.
type Metrics struct {
	labelNames       []string
	kindToMetricSets map[string]*MetricSet
}

// NewMetrics returns a Metrics object.
//
// Each kind is labeled by the names of its enclosing kinds, so that
// for kinds ["command", "step"] the step metrics carry both the command
// and the step name.
// Every metric carries constLabels, which may be nil.
func NewMetrics(name string, labelNames []string, constLabels prom.Labels) *Metrics {
	metricsets := map[string]*MetricSet{}
	for i := 0; i < len(labelNames); i++ {
		l := labelNames[i]
		metricsets[l] = NewMetricSet(name, labelNames[:i+1], constLabels)
	}

	return &Metrics{
		labelNames:       labelNames,
		kindToMetricSets: metricsets,
	}
}

// MetricSet returns the metrics of the kind, or nil for an unknown kind.
func (m *Metrics) MetricSet(kind string) *MetricSet {
	return m.kindToMetricSets[kind]
}

// Describe sends the super-set of all possible descriptors of metrics
// collected by this Collector to the provided channel and returns once
// the last descriptor has been sent.
func (m *Metrics) Describe(ch chan<- *prom.Desc) {
	for _, ms := range m.kindToMetricSets {
		ms.Describe(ch)
	}
}

// Collect is called by the Prometheus registry when collecting
// metrics. The implementation sends each collected metric via the
// provided channel and returns once the last metric has been sent.
func (m *Metrics) Collect(ch chan<- prom.Metric) {
	for _, ms := range m.kindToMetricSets {
		ms.Collect(ch)
	}
}

// pushBase can be something like http://pushgateway:9091 (for pushgateway)
// or http://pushgateway:9091/api/ui (for weaveworks/prom-aggregation-gateway)
func (m *Metrics) Push(ctx context.Context, pushBase, job string) error {
	return push.New(pushBase, job).
		Collector(m).
		PushContext(ctx)
}
