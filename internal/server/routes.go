// Package server wires HTTP handlers into a chi router for the chat
// service via routing helpers.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures and returns the HTTP router with all application routes.
// It sets up handlers for health check, room listing, the WebSocket gateway,
// and the test page.
func SetupRoutes(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", HealthHandler)
	r.Get("/rooms", s.RoomsHandler)
	r.Get("/ws", s.WebSocketHandler)
	r.Get("/test", TestPageHandler)
	return r
}

// requestLogger logs each request once it completes. WebSocket requests are
// logged when their session ends.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}
