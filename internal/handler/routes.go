package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP router. metrics may be nil.
func NewRouter(h *WatchHandler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)                  // structured access log

	r.Get("/health", HealthCheck)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/watchlist/{user}", func(r chi.Router) {
		r.Post("/", h.Subscribe)
		r.Get("/", h.List)
		r.Delete("/", h.Clear)
		r.Delete("/{crn}", h.Unsubscribe)
	})
	r.Get("/courses", h.Courses)
	r.Get("/notifications", h.Notifications)

	return r
}

// Logger writes one structured log line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}
