package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTracerBeforeInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "cache.produce", AttrCacheService.String("event"))
	SetSpanError(span, errors.New("boom"))
	span.End()

	if ctx == nil {
		t.Fatal("expected a context")
	}
	if GetTraceID(context.Background()) != "" {
		t.Fatal("no span in context should give an empty trace id")
	}
}

func TestInitNoneExporter(t *testing.T) {
	ctx := context.Background()
	if err := Init(ctx, Config{Enabled: true, Exporter: "none", ServiceName: "letletme-test", SampleRate: 1}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		Shutdown(context.Background())
		Init(context.Background(), Config{})
	})

	var traceID string
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/current", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not passed through: %d", rec.Code)
	}
	if len(traceID) != 32 {
		t.Fatalf("expected a trace id inside the handler, got %q", traceID)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestResourceAttributes(t *testing.T) {
	attrs := resourceAttributes(Config{ServiceName: "letletme", CacheBackend: "redis", Season: "2526"})

	got := map[string]string{}
	for _, kv := range attrs {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != "letletme" || got["letletme.cache.backend"] != "redis" || got["letletme.season"] != "2526" {
		t.Fatalf("unexpected resource attributes %v", got)
	}

	if n := len(resourceAttributes(Config{ServiceName: "letletme"})); n != 2 {
		t.Fatalf("expected only service name and version without backend or season, got %d", n)
	}
}

func TestSamplerDescription(t *testing.T) {
	if d := newSampler(1).Description(); !strings.Contains(d, "AlwaysOnSampler") {
		t.Fatalf("full rate should always sample roots, got %s", d)
	}
	if d := newSampler(0.25).Description(); !strings.Contains(d, "TraceIDRatioBased{0.25}") {
		t.Fatalf("fractional rate should use ratio sampling, got %s", d)
	}
}
