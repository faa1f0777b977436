package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/oriys/letletme/internal/cache"
	"github.com/oriys/letletme/internal/service"
	"github.com/oriys/letletme/internal/store"
)

type stubEntries map[int]*store.Entry

func (s stubEntries) GetEntry(_ context.Context, id int) (*store.Entry, error) {
	if e, ok := s[id]; ok {
		return e, nil
	}
	return nil, store.ErrEntryNotFound
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router  http.Handler
	handler *Handler
	data    *miniredis.Miniredis
	cache   *miniredis.Miniredis
}

func newTestEnv(t *testing.T, entries store.EntryReader) *testEnv {
	t.Helper()

	dataMR := miniredis.RunT(t)
	cacheMR := miniredis.RunT(t)
	dataClient := redis.NewClient(&redis.Options{Addr: dataMR.Addr()})
	cacheClient := redis.NewClient(&redis.Options{Addr: cacheMR.Addr()})
	t.Cleanup(func() {
		dataClient.Close()
		cacheClient.Close()
	})

	data := store.NewDataStoreFromClient(dataClient)
	policy := cache.DefaultPolicy()
	st := cache.NewHashStoreFromClient(cacheClient, policy)
	opts := service.Options{
		Season: "2526",
		Now:    func() time.Time { return time.Date(2025, time.August, 20, 0, 0, 0, 0, time.UTC) },
	}

	h := &Handler{
		Events:   service.NewEventService(data, st, opts),
		Fixtures: service.NewFixtureService(data, st, opts),
		Entries:  service.NewEntryService(entries, st, opts),
		Cache:    st,
		Policy:   policy,
		Backends: map[string]Pinger{"data_redis": data, "cache_redis": st},
	}
	return &testEnv{router: NewRouter(h), handler: h, data: dataMR, cache: cacheMR}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestGetCurrentEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.data.HSet(service.DeadlinesKey("2526"), "1", "2025-08-15T17:30:00Z")
	env.data.HSet(service.DeadlinesKey("2526"), "2", "2025-08-22T17:30:00Z")

	rec := env.do(t, http.MethodGet, "/v1/events/current")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Fatalf("unexpected Cache-Control %q", got)
	}
	if got := rec.Header().Get("X-Cache-Service"); got != "event" {
		t.Fatalf("unexpected X-Cache-Service %q", got)
	}

	var body service.CurrentEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Event != 1 {
		t.Fatalf("expected event 1, got %+v", body)
	}

	if env.cache.HGet(cache.HashKey(cache.Event), service.EndpointCurrentWithDeadline) == "" {
		t.Fatal("expected response to be cached")
	}
}

func TestGetCurrentEvent_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/events/current")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetAverageScores(t *testing.T) {
	env := newTestEnv(t, nil)
	env.data.HSet(service.OverallResultKey("2526"), "1", `{"averageEntryScore": 54}`)
	env.data.HSet(service.OverallResultKey("2526"), "2", `garbage`)

	rec := env.do(t, http.MethodGet, "/v1/events/average-scores")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body["1"] != 54 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestListFixtures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.data.SAdd(service.FixturesKey("2526", 2), `{"id":11,"event":2,"kickoffTime":"2025-08-23T14:00:00Z","teamH":1,"teamA":2}`)
	env.data.HSet(service.TeamNamesKey("2526"), "1", "Arsenal")

	rec := env.do(t, http.MethodGet, "/v1/fixtures/2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Fatalf("unexpected Cache-Control %q", got)
	}
	var body []service.Fixture
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0].TeamHName != "Arsenal" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestListFixtures_BadEvent(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/v1/fixtures/abc", "/v1/fixtures/0", "/v1/fixtures/39"} {
		if rec := env.do(t, http.MethodGet, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestGetEntry(t *testing.T) {
	env := newTestEnv(t, stubEntries{42: {ID: 42, EntryName: "Klopp Till You Drop", PlayerName: "Alex"}})

	rec := env.do(t, http.MethodGet, "/v1/entries/42")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Cache-Service"); got != "entry" {
		t.Fatalf("unexpected X-Cache-Service %q", got)
	}

	if rec := env.do(t, http.MethodGet, "/v1/entries/7"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing entry, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/v1/entries/x"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestGetEntry_NoDatabase(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/v1/entries/42"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCacheDeleteEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	key := cache.HashKey(cache.Fixture)
	env.cache.HSet(key, "fixtures:1", "[]")
	env.cache.HSet(key, "fixtures:2", "[]")

	rec := env.do(t, http.MethodDelete, "/v1/cache/fixture/fixtures:1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if env.cache.HGet(key, "fixtures:1") != "" || env.cache.HGet(key, "fixtures:2") == "" {
		t.Fatal("expected only fixtures:1 removed")
	}

	if rec := env.do(t, http.MethodDelete, "/v1/cache/fixtures"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if env.cache.Exists(key) {
		t.Fatal("expected whole hash removed")
	}

	if rec := env.do(t, http.MethodDelete, "/v1/cache/nope"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown service, got %d", rec.Code)
	}
}

func TestCacheOutageStillServes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.data.HSet(service.DeadlinesKey("2526"), "1", "2025-08-15T17:30:00Z")
	env.cache.SetError("connection refused")

	if rec := env.do(t, http.MethodGet, "/v1/events/current"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 during cache outage, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	env.handler.Backends["postgres"] = stubPinger{err: errors.New("down")}
	rec = env.do(t, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" || body.Checks["postgres"] != "down" || body.Checks["data_redis"] != "ok" {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}
