package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oriys/letletme/internal/cache"
	"github.com/oriys/letletme/internal/logging"
	"github.com/oriys/letletme/internal/metrics"
	"github.com/oriys/letletme/internal/observability"
	"github.com/oriys/letletme/internal/service"
	"github.com/oriys/letletme/internal/store"
)

// Pinger is a backend the health endpoint checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the public read API and cache administration.
type Handler struct {
	Events   *service.EventService
	Fixtures *service.FixtureService
	Entries  *service.EntryService
	Cache    cache.Store
	Policy   *cache.Policy
	// Backends checked by /health, keyed by name. Nil values are skipped.
	Backends map[string]Pinger
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/events/current", h.GetCurrentEvent)
	mux.HandleFunc("GET /v1/events/average-scores", h.GetAverageScores)
	mux.HandleFunc("GET /v1/fixtures/{event}", h.ListFixtures)
	mux.HandleFunc("GET /v1/entries/{id}", h.GetEntry)

	mux.HandleFunc("DELETE /v1/cache/{service}", h.ClearService)
	mux.HandleFunc("DELETE /v1/cache/{service}/{endpoint}", h.DeleteEndpoint)

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /stats", metrics.Global().JSONHandler())
	mux.Handle("GET /metrics/prometheus", metrics.PrometheusHandler())
}

// GetCurrentEvent handles GET /v1/events/current
func (h *Handler) GetCurrentEvent(w http.ResponseWriter, r *http.Request) {
	cur, err := h.Events.CurrentWithDeadline(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCached(w, r, cur)
}

// GetAverageScores handles GET /v1/events/average-scores
func (h *Handler) GetAverageScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.Events.AverageScores(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCached(w, r, scores)
}

// ListFixtures handles GET /v1/fixtures/{event}
func (h *Handler) ListFixtures(w http.ResponseWriter, r *http.Request) {
	event, err := strconv.Atoi(r.PathValue("event"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %q", service.ErrInvalidEvent, r.PathValue("event")))
		return
	}
	fixtures, err := h.Fixtures.Fixtures(r.Context(), event)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCached(w, r, fixtures)
}

// GetEntry handles GET /v1/entries/{id}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %q", service.ErrInvalidEntry, r.PathValue("id")))
		return
	}
	entry, err := h.Entries.Info(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCached(w, r, entry)
}

// ClearService handles DELETE /v1/cache/{service}
func (h *Handler) ClearService(w http.ResponseWriter, r *http.Request) {
	s, ok := cache.ParseService(r.PathValue("service"))
	if !ok {
		http.Error(w, "unknown service", http.StatusBadRequest)
		return
	}
	cache.ClearService(r.Context(), h.Cache, s)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEndpoint handles DELETE /v1/cache/{service}/{endpoint}
func (h *Handler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	s, ok := cache.ParseService(r.PathValue("service"))
	if !ok {
		http.Error(w, "unknown service", http.StatusBadRequest)
		return
	}
	cache.Delete(r.Context(), h.Cache, s, r.PathValue("endpoint"))
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.Backends))
	status := "ok"
	for name, p := range h.Backends {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// writeCached writes a 200 response with Cache-Control derived from the
// path's cache policy.
func (h *Handler) writeCached(w http.ResponseWriter, r *http.Request, v interface{}) {
	if h.Policy != nil {
		cfg := h.Policy.ConfigForPath(r.URL.Path)
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cfg.TTL/time.Second)))
		w.Header().Set("X-Cache-Service", cfg.Service.String())
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.OpWithRequest(r.Header.Get(requestIDHeader)).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "trace_id", observability.GetTraceID(r.Context()), "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidEvent), errors.Is(err, service.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDeadlinesNotFound), errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEntriesUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
