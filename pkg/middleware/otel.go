package middleware

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/cellgraph/pkg/reactive"
)

const defaultTracerName = "cellgraph"

// OTelConfig configures the OpenTelemetry instrument.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "cellgraph").
	TracerName string

	// Provider supplies the tracer. Default: otel.GetTracerProvider().
	Provider trace.TracerProvider

	// MinQueued skips flushes with fewer queued items. Observer failures
	// outside a traced flush still get their own span.
	MinQueued int

	// Attributes are added to every span.
	Attributes []attribute.KeyValue

	// Context is the parent of every span (default: context.Background()).
	Context context.Context
}

// OTelOption configures the OpenTelemetry instrument.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.Provider = tp
	}
}

// WithMinQueued only traces flushes of at least n items.
func WithMinQueued(n int) OTelOption {
	return func(c *OTelConfig) {
		c.MinQueued = n
	}
}

// WithAttributes adds constant attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// WithParentContext sets the context spans are started from.
func WithParentContext(ctx context.Context) OTelOption {
	return func(c *OTelConfig) {
		c.Context = ctx
	}
}

// Tracer is a reactive.Instrument that emits one span per flush.
type Tracer struct {
	config OTelConfig
	tracer trace.Tracer

	mu      sync.Mutex
	current trace.Span
}

var _ reactive.Instrument = (*Tracer)(nil)

// OpenTelemetry creates an instrument that traces scheduler flushes.
//
// Each flush becomes a "cellgraph.flush" span carrying the queued and
// dispatched item counts. A flush stopped by the cycle breaker ends with an
// error status. Observer failures raised while a flush span is open are
// recorded on it; failures of async observers that settle later get a
// short "cellgraph.observer_failure" span of their own.
//
// The tracer uses the global OpenTelemetry tracer provider unless one is
// passed with WithTracerProvider. Configure it in main():
//
//	otel.SetTracerProvider(tp)
//	s := reactive.NewScheduler(reactive.WithInstrument(middleware.OpenTelemetry()))
func OpenTelemetry(opts ...OTelOption) *Tracer {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Provider == nil {
		config.Provider = otel.GetTracerProvider()
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	return &Tracer{
		config: config,
		tracer: config.Provider.Tracer(config.TracerName),
	}
}

// FlushStarted implements reactive.Instrument.
func (t *Tracer) FlushStarted(queued int) reactive.FlushDone {
	if queued < t.config.MinQueued {
		return func(int, error) {}
	}

	attrs := append([]attribute.KeyValue{
		attribute.Int("cellgraph.queued", queued),
	}, t.config.Attributes...)
	_, span := t.tracer.Start(t.config.Context, "cellgraph.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	t.mu.Lock()
	t.current = span
	t.mu.Unlock()

	return func(dispatched int, err error) {
		t.mu.Lock()
		t.current = nil
		t.mu.Unlock()

		span.SetAttributes(attribute.Int("cellgraph.dispatched", dispatched))
		var cycle *reactive.CycleError
		if errors.As(err, &cycle) {
			span.SetAttributes(
				attribute.Int("cellgraph.generations", cycle.Generations),
				attribute.Int("cellgraph.dropped", cycle.Dropped),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// ObserverFailed implements reactive.Instrument.
func (t *Tracer) ObserverFailed(err error) {
	attrs := []attribute.KeyValue{attribute.String("cellgraph.failure_kind", failureKind(err))}
	var oerr *reactive.ObserverError
	if errors.As(err, &oerr) {
		attrs = append(attrs, attribute.Int64("cellgraph.cell", int64(oerr.Cell)))
	}

	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	if current != nil {
		current.RecordError(err, trace.WithAttributes(attrs...))
		return
	}

	_, span := t.tracer.Start(t.config.Context, "cellgraph.observer_failure",
		trace.WithAttributes(append(attrs, t.config.Attributes...)...),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
