// Package health exposes the process's /ping, /health and /metrics
// surface over a chi router, plus a cycle summary endpoint.
//
// Built around a small HTTP server shut down on ctx.Done(), serving the
// orchestrator's last cycle Summary as JSON from a per-instance
// chi.Router instead of a global match store and a bare net/http
// ServeMux.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the process's ops HTTP surface.
type Server struct {
	addr string
	log  *slog.Logger
	srv  *http.Server

	mu      sync.RWMutex
	summary any
}

func New(addr string, log *slog.Logger) *Server {
	s := &Server{addr: addr, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			if log != nil {
				log.Debug("health: request", "method", req.Method, "path", req.URL.Path, "duration", time.Since(start))
			}
		})
	})

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("pong\n"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/metrics", s.handleMetrics)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetLastCycleSummary records the most recent cycle's summary, exposed
// at /metrics. Safe for concurrent use by the Orchestrator's main loop.
func (s *Server) SetLastCycleSummary(summary any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	summary := s.summary
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if summary == nil {
		_, _ = w.Write([]byte(`{"status":"no cycle completed yet"}`))
		return
	}
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Run starts the server in the background and stops it gracefully when
// ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if s.log != nil {
			s.log.Info("health: listening", "addr", s.addr)
		}
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.Error("health: server error", "error", err)
			}
		}
	}()
}
