package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DurationBuckets are the histogram buckets in seconds. Waits on an environment
// of several instances take tens of minutes.
var DurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600}

// MetricSet counts and times the spans of a single kind.
//
// The labels are the names of the enclosing spans followed by the span's own
// name, like ["deploy", "wait-ready"] for a step of the deploy command.
type MetricSet struct {
	LabelNames []string

	Started  *prometheus.CounterVec
	Handled  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewMetricSet(job string, labelNames []string, constLabels prometheus.Labels) *MetricSet {
	kind := labelNames[len(labelNames)-1]

	return &MetricSet{
		LabelNames: labelNames,
		Started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        fmt.Sprintf("%s_%s_started_total", job, kind),
			Help:        fmt.Sprintf("Number of %ss started.", kind),
			ConstLabels: constLabels,
		}, labelNames),
		Handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        fmt.Sprintf("%s_%s_handled_total", job, kind),
			Help:        fmt.Sprintf("Number of %ss finished, by span status.", kind),
			ConstLabels: constLabels,
		}, append(append([]string{}, labelNames...), "status")),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        fmt.Sprintf("%s_%s_handling_seconds", job, kind),
			Help:        fmt.Sprintf("Time taken by each %s in seconds.", kind),
			ConstLabels: constLabels,
			Buckets:     DurationBuckets,
		}, labelNames),
	}
}

func (m *MetricSet) Observe(startTime, endTime time.Time, status string, labelValues []string) {
	m.Started.WithLabelValues(labelValues...).Inc()

	handled := append(append([]string{}, labelValues...), status)
	m.Handled.WithLabelValues(handled...).Inc()

	m.Duration.WithLabelValues(labelValues...).Observe(endTime.Sub(startTime).Seconds())
}

func (m *MetricSet) Describe(ch chan<- *prometheus.Desc) {
	m.Started.Describe(ch)
	m.Handled.Describe(ch)
	m.Duration.Describe(ch)
}

func (m *MetricSet) Collect(ch chan<- prometheus.Metric) {
	m.Started.Collect(ch)
	m.Handled.Collect(ch)
	m.Duration.Collect(ch)
}
