package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds tracing settings for the API process.
type Config struct {
	Enabled     bool
	Exporter    string  // otlp-http or none
	Endpoint    string  // host:port of the OTLP HTTP receiver
	ServiceName string  // defaults to "letletme"
	SampleRate  float64 // head sampling for new traces, 0 < r <= 1

	// Reported on the resource so traces can be split by deployment.
	CacheBackend string // "redis" or "memory"
	Season       string // empty when derived from the date
}

// Version is reported as service.version.
var Version = "dev"

const instrumentationName = "github.com/oriys/letletme"

type state struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

var current atomic.Pointer[state]

// Init installs the tracer provider. With tracing disabled it only clears
// previous state and spans fall back to the otel global (no-op) tracer.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		current.Store(nil)
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "letletme"
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	current.Store(&state{tp: tp, tracer: tp.Tracer(instrumentationName)})
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp-http", "otlp", "":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		return exp, nil
	case "none":
		return discardExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}
}

// newSampler follows the parent's decision and samples new traces at rate.
func newSampler(rate float64) sdktrace.Sampler {
	root := sdktrace.AlwaysSample()
	if rate > 0 && rate < 1 {
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(Version),
	}
	if cfg.CacheBackend != "" {
		attrs = append(attrs, AttrCacheBackend.String(cfg.CacheBackend))
	}
	if cfg.Season != "" {
		attrs = append(attrs, AttrSeason.String(cfg.Season))
	}
	return attrs
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	st := current.Swap(nil)
	if st == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return st.tp.Shutdown(ctx)
}

// Tracer returns the installed tracer, or the otel global one before Init.
func Tracer() trace.Tracer {
	if st := current.Load(); st != nil {
		return st.tracer
	}
	return otel.Tracer(instrumentationName)
}

// Enabled reports whether Init installed a provider.
func Enabled() bool {
	return current.Load() != nil
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }
