package handler

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openpit/exchange/internal/fanout"
	"github.com/openpit/exchange/internal/session"
)

// NewRouter creates a chi router with all routes registered and request
// logging middleware. Commands arrive over the websocket; the REST
// surface is read-only snapshots plus the health check.
func NewRouter(mgr *session.Manager, hub *fanout.Hub, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))

	socketH := NewSocketHandler(mgr, hub, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Read-only snapshots.
	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, mgr.SessionState())
	})
	r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, mgr.Books())
	})
	r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, mgr.Leaderboard())
	})

	// Game connection: commands in, events out.
	r.Get("/ws", socketH.ServeWS)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// Hijack delegates to the wrapped writer so the websocket upgrade, which
// needs the raw connection, still works behind the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}
