package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/queue"
	"github.com/codeready-toolchain/tarsy-core/pkg/services"
)

// DatabaseSource exposes the database client for health checks.
// history.Service satisfies it; Client returns nil while persistence is
// unavailable.
type DatabaseSource interface {
	Client() *database.Client
}

// WorkerHealthSource reports claim worker health.
// queue.SessionClaimWorker satisfies it.
type WorkerHealthSource interface {
	Health() queue.WorkerHealth
}

// Server is the HTTP surface of the session core.
type Server struct {
	cfg            *config.Config
	db             DatabaseSource
	worker         WorkerHealthSource
	alertService   *services.AlertService
	sessionService *services.SessionService

	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer creates the API server and registers its routes. worker may be
// nil.
func NewServer(
	cfg *config.Config,
	db DatabaseSource,
	alertService *services.AlertService,
	sessionService *services.SessionService,
	worker WorkerHealthSource,
) *Server {
	s := &Server{
		cfg:            cfg,
		db:             db,
		worker:         worker,
		alertService:   alertService,
		sessionService: sessionService,
		engine:         gin.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery(), securityHeaders(), requestLogger())

	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/alerts", s.submitAlertHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.GET("/sessions/:id/summary", s.sessionSummaryHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve serves HTTP on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
