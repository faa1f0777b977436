package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oriys/letletme/internal/logging"
	"github.com/oriys/letletme/internal/metrics"
)

var jsonNull = []byte("null")

// Get decodes the cached value of an endpoint. It reports false on a miss
// and on any cache failure. A value that does not decode into T is evicted
// so it is not served again.
func Get[T any](ctx context.Context, st Store, s Service, endpoint string) (T, bool) {
	var zero T

	raw, err := st.Load(ctx, s, endpoint)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordCacheLookup(s.String(), "miss")
		return zero, false
	}
	if errors.Is(err, ErrCircuitOpen) {
		metrics.RecordCacheLookup(s.String(), "bypass")
		return zero, false
	}
	if err != nil {
		metrics.RecordCacheLookup(s.String(), "error")
		logging.Op().Warn("cache read failed",
			"op", "get", "service", s.String(), "endpoint", endpoint, "error", err)
		return zero, false
	}
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		metrics.RecordCacheLookup(s.String(), "miss")
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		metrics.RecordCacheLookup(s.String(), "corrupt")
		logging.Op().Warn("cache entry corrupt, evicting",
			"op", "get", "service", s.String(), "endpoint", endpoint,
			"error", &OpError{Op: "get", Service: s, Endpoint: endpoint, Err: errors.Join(ErrCorrupt, err)})
		if err := st.Remove(ctx, s, endpoint); err != nil {
			logging.Op().Debug("evict corrupt entry failed", "service", s.String(), "endpoint", endpoint, "error", err)
		}
		return zero, false
	}

	metrics.RecordCacheLookup(s.String(), "hit")
	return v, true
}

// Set stores value as JSON under the endpoint. ttl <= 0 uses the service
// TTL; either way the TTL only applies if the hash has no expiry yet. A
// value that encodes to JSON null is not stored. Failures are logged.
func Set[T any](ctx context.Context, st Store, s Service, endpoint string, value T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		metrics.RecordCacheWrite(s.String(), "error")
		logging.Op().Warn("cache encode failed",
			"op", "set", "service", s.String(), "endpoint", endpoint, "error", err)
		return
	}
	if bytes.Equal(data, jsonNull) {
		return
	}
	if err := st.Save(ctx, s, endpoint, data, ttl); errors.Is(err, ErrCircuitOpen) {
		metrics.RecordCacheWrite(s.String(), "bypass")
		return
	} else if err != nil {
		metrics.RecordCacheWrite(s.String(), "error")
		logging.Op().Warn("cache write failed",
			"op", "set", "service", s.String(), "endpoint", endpoint, "error", err)
		return
	}
	metrics.RecordCacheWrite(s.String(), "ok")
}

// Delete removes one cached endpoint. Failures are logged.
func Delete(ctx context.Context, st Store, s Service, endpoint string) {
	if err := st.Remove(ctx, s, endpoint); err != nil {
		logging.Op().Warn("cache delete failed",
			"op", "delete", "service", s.String(), "endpoint", endpoint, "error", err)
		return
	}
	metrics.RecordCacheInvalidation(s.String(), "endpoint")
}

// ClearService drops every cached endpoint of a service. Failures are logged.
func ClearService(ctx context.Context, st Store, s Service) {
	if err := st.Purge(ctx, s); err != nil {
		logging.Op().Warn("cache clear failed",
			"op", "clear", "service", s.String(), "error", err)
		return
	}
	metrics.RecordCacheInvalidation(s.String(), "service")
}
