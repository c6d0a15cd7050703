// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"context"
	"net/http"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/config"
	"github.com/woozymasta/herald/internal/poller"
	"github.com/woozymasta/herald/internal/storage"
)

// New creates a new Server instance with the provided storage, poller, query client and configuration.
func New(store *storage.Repository, poll *poller.Poller, client *a2s.Client, cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		storage:        store,
		poller:         poll,
		client:         client,
		ctx:            ctx,
		cancel:         cancel,
		authToken:      cfg.Server.AuthToken,
		maxBody:        cfg.Server.MaxBodySize,
		workers:        max(cfg.Server.Workers, 1),
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,

		queue:    make(chan targetJob, max(cfg.Server.QueueSize, 1)),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers starts the background target registration workers.
func (s *Server) StartWorkers() {
	for range s.workers {
		s.wg.Add(1)
		go s.worker()
	}
}

// StopWorkers lets the workers drain the registration queue and stops them.
// Handlers must not be serving when it is called.
func (s *Server) StopWorkers() {
	close(s.shutdown)
	close(s.queue)
	s.wg.Wait()
	s.cancel()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.Handler {
		return AdminAuthMiddleware(s.authToken, h)
	}
	limit := s.RateLimitMiddleware

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	mux.Handle("GET /api/servers", auth(s.handleServers))
	mux.Handle("GET /api/server", auth(s.handleGetServer))
	mux.Handle("DELETE /api/server", auth(s.handleDeleteServer))
	mux.Handle("GET /api/a2s", limit(auth(s.handleServerQuery)))
	mux.Handle("POST /api/poll", auth(s.handlePoll))
	mux.Handle("POST /api/targets", limit(auth(s.handleRegisterTarget)))

	return s.LoggingMiddleware(mux)
}
