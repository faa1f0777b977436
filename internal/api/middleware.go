package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/letletme/internal/cache"
	"github.com/oriys/letletme/internal/logging"
	"github.com/oriys/letletme/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// requestID assigns an X-Request-ID to requests that arrive without one
// and echoes it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one access log line and the HTTP metrics per request.
func accessLog(policy *cache.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			svc := ""
			if policy != nil && strings.HasPrefix(r.URL.Path, "/v1/") {
				svc = policy.ConfigForPath(r.URL.Path).Service.String()
			}
			elapsed := time.Since(start)
			logging.Default().Log(&logging.RequestLog{
				RequestID:  r.Header.Get(requestIDHeader),
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     rec.status,
				DurationMs: elapsed.Milliseconds(),
				Service:    svc,
				Bytes:      rec.bytes,
			})
			metrics.RecordHTTPRequest(svc, r.Method, rec.status, elapsed)
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}
