// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"net/http"

	"github.com/woozymasta/mcwatch/internal/broadcast"
	"github.com/woozymasta/mcwatch/internal/config"
	"github.com/woozymasta/mcwatch/internal/history"
	"github.com/woozymasta/mcwatch/internal/metrics"
	"github.com/woozymasta/mcwatch/internal/resolver"
	"github.com/woozymasta/mcwatch/internal/storage"
)

// New creates a new Server instance with its collaborators and configuration.
func New(
	cfg *config.Config,
	store *storage.Repository,
	engine *resolver.Engine,
	recorder *history.Recorder,
	events *broadcast.Broadcaster,
	m *metrics.Collector,
) *Server {
	return &Server{
		storage:        store,
		engine:         engine,
		history:        recorder,
		events:         events,
		metrics:        m,
		authToken:      cfg.Server.AuthToken,
		webToken:       cfg.Server.WebToken,
		maxBody:        cfg.Server.MaxBodySize,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		heartbeat:      cfg.Events.Heartbeat,

		shutdown: make(chan struct{}),
	}
}

// StopWorkers stops background routines started by the middleware and
// waits for them to exit.
func (s *Server) StopWorkers() {
	close(s.shutdown)
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()
	limited := s.RateLimitMiddleware

	mux.Handle("GET /api/v1/java/{address}", limited(s.handleResolve(false)))
	mux.Handle("GET /api/v1/bedrock/{address}", limited(s.handleResolve(true)))

	mux.HandleFunc("GET /api/v1/servers", s.handleServers)
	mux.HandleFunc("GET /api/v1/servers/{id}", s.handleServer)
	mux.HandleFunc("GET /api/v1/servers/{id}/checks", s.handleChecks)
	mux.HandleFunc("GET /api/v1/servers/{id}/stats", s.handleServerStats)
	mux.HandleFunc("GET /api/v1/servers/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/sse/vote", s.handleEvents)
	mux.Handle("POST /api/v1/servers/{id}/votes", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleVote)))

	mux.HandleFunc("GET /api/v1/stats", s.handleTotals)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /metrics", AdminAuthMiddleware(s.authToken, s.metrics.Handler()))

	return s.LoggingMiddleware(mux)
}
