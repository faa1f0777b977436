package api

import (
	"net/http"
	"time"

	"github.com/oriys/letletme/internal/logging"
	"github.com/oriys/letletme/internal/observability"
)

// StartHTTPServer creates and starts the HTTP server.
func StartHTTPServer(addr string, h *Handler) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}

// NewRouter builds the full middleware chain around h's routes.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = observability.HTTPMiddleware(handler)
	handler = accessLog(h.Policy)(handler)
	handler = requestID(handler)
	return handler
}
