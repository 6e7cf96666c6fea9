package telemetry

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2/klogr"
)

const (
	AttributeKeyKind = "kind"

	instrumentationName = "github.com/variantdev/ebs-deploy/pkg/telemetry"
)

type SpanKind string

type Telemeter struct {
	jobName      string
	pushEndpoint string
	traceOutput  io.Writer
	constLabels  prometheus.Labels

	labelNames   []string
	nonLeafKinds map[string]struct{}
	kinds        map[string]struct{}

	provider *sdktrace.TracerProvider

	Tracer trace.Tracer

	Metrics *Metrics

	Logger logr.Logger
}

// New returns a Telemeter recording spans of the given kinds, outermost first.
func New(jobName string, kinds []SpanKind, opts ...Option) (*Telemeter, error) {
	labelNames := make([]string, len(kinds))
	for i := range kinds {
		labelNames[i] = string(kinds[i])
	}

	r := &Telemeter{
		jobName:      jobName,
		labelNames:   labelNames,
		nonLeafKinds: labelNamesToNonLeafKinds(labelNames),
		kinds:        labelNamesToKinds(labelNames),
	}

	for _, o := range opts {
		o(r)
	}

	if r.Logger.GetSink() == nil {
		r.Logger = klogr.New()
	}

	r.Metrics = NewMetrics(jobName, labelNames, r.constLabels)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(NewPromExporter(r.Metrics))),
	}

	if r.traceOutput != nil {
		stdoutExporter, err := stdouttrace.New(stdouttrace.WithWriter(r.traceOutput))
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(stdoutExporter)))
	}

	r.provider = sdktrace.NewTracerProvider(tpOpts...)
	r.Tracer = r.provider.Tracer(instrumentationName)

	return r, nil
}

func kindToAttributeKey(kind string) string {
	return fmt.Sprintf("ebsdeploy.%s", kind)
}

type kindContextKey string

func (r *Telemeter) withNonLeafKind(ctx context.Context, kind, name string) context.Context {
	return context.WithValue(ctx, kindContextKey(kind), name)
}

func labelNamesToNonLeafKinds(labelNames []string) map[string]struct{} {
	ctxLabels := map[string]struct{}{}
	for i := 0; i < len(labelNames)-1; i++ {
		ctxLabels[labelNames[i]] = struct{}{}
	}
	return ctxLabels
}

func labelNamesToKinds(labelNames []string) map[string]struct{} {
	kinds := map[string]struct{}{}
	for i := 0; i < len(labelNames); i++ {
		kinds[labelNames[i]] = struct{}{}
	}
	return kinds
}

func (r *Telemeter) WithSpan(ctx context.Context, k SpanKind, operation string, body func(ctx context.Context) error) error {
	kind := string(k)

	if _, ok := r.kinds[kind]; !ok {
		return fmt.Errorf("unregistered kind found: %q", kind)
	}

	// Propagate the non-leaf kind to the child spans
	// If known kinds are ["command", "step"], each "step" span is given the "command"
	// which ran it so that slow or failing steps can be told apart per command.
	if _, ok := r.nonLeafKinds[kind]; ok {
		ctx = r.withNonLeafKind(ctx, kind, operation)
	}

	// This attribute is used to tell the metrics exporter about the kind
	attrs := []attribute.KeyValue{attribute.String(AttributeKeyKind, kind)}
	for nonLeaf := range r.nonLeafKinds {
		if name, ok := ctx.Value(kindContextKey(nonLeaf)).(string); ok {
			attrs = append(attrs, attribute.String(kindToAttributeKey(nonLeaf), name))
		}
	}

	ctx, span := r.Tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	defer span.End()

	r.Logger.V(2).Info("span.begin", "kind", kind, "name", operation)

	err := body(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	r.Logger.V(2).Info("span.end", "kind", kind, "name", operation, "failed", err != nil)

	return err
}

func (r *Telemeter) AddTraceEvent(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	kvs := make([]interface{}, 0, len(attrs)*2)
	for _, a := range attrs {
		kvs = append(kvs, string(a.Key), a.Value.Emit())
	}
	r.Logger.V(1).Info(msg, kvs...)

	trace.SpanFromContext(ctx).AddEvent(msg, trace.WithAttributes(attrs...))
}

// Push sends the metrics to the pushgateway. It is a no-op without one.
func (r *Telemeter) Push(ctx context.Context) error {
	if r.pushEndpoint == "" {
		return nil
	}

	r.Logger.V(1).Info("pushing metrics", "endpoint", r.pushEndpoint, "job", r.jobName)

	if err := r.Metrics.Push(ctx, r.pushEndpoint, r.jobName); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", r.pushEndpoint, err)
	}

	return nil
}

func (r *Telemeter) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
