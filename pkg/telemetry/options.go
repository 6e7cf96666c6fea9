package telemetry

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

type Option func(*Telemeter)

// PushGateway sets the base URL metrics are pushed to, like http://pushgateway:9091
func PushGateway(url string) Option {
	return func(t *Telemeter) {
		t.pushEndpoint = url
	}
}

// TraceOutput prints every finished span as JSON to w.
func TraceOutput(w io.Writer) Option {
	return func(t *Telemeter) {
		t.traceOutput = w
	}
}

func Logger(l logr.Logger) Option {
	return func(t *Telemeter) {
		t.Logger = l
	}
}

// ConstLabels are added to every metric, like the application and environment deployed.
func ConstLabels(labels prometheus.Labels) Option {
	return func(t *Telemeter) {
		t.constLabels = labels
	}
}
