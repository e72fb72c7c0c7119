// internal/server/server.go

// Package server exposes sessions and document management over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/mwiater/examrag/internal/ingest"
	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/metrics"
	"github.com/mwiater/examrag/internal/session"
)

// maxUploadBytes bounds a multipart document upload.
const maxUploadBytes = 64 << 20

// Server is the HTTP API.
type Server struct {
	echo     *echo.Echo
	sessions *session.Manager
	ingester *ingest.Ingester
	metrics  *metrics.Aggregator
}

// Option configures optional server features.
type Option func(*Server)

// WithMetrics serves the aggregator's snapshot at /api/metrics.
func WithMetrics(agg *metrics.Aggregator) Option {
	return func(s *Server) { s.metrics = agg }
}

// New builds the API and registers its routes.
func New(sessions *session.Manager, ingester *ingest.Ingester, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			logging.LogEvent("[HTTP] %s %s status=%d latency=%s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(echoMiddleware.BodyLimit("64M"))

	s := &Server{echo: e, sessions: sessions, ingester: ingester}
	for _, opt := range opts {
		opt(s)
	}
	s.register()
	return s
}

func (s *Server) register() {
	s.echo.GET("/health", s.health)

	api := s.echo.Group("/api")
	api.POST("/sessions", s.createSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/sessions/:id/messages", s.postMessage)
	api.POST("/sessions/:id/reset", s.resetSession)
	api.GET("/sessions/:id/transcript", s.transcript)
	api.POST("/sessions/:id/feedback", s.feedback)

	api.GET("/documents", s.listDocuments)
	api.POST("/documents", s.uploadDocuments)
	api.GET("/documents/stats", s.documentStats)
	api.DELETE("/documents/:filename", s.deleteDocument)

	if s.metrics != nil {
		api.GET("/metrics", s.modelMetrics)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		logging.LogEvent("HTTP API listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logging.LogEvent("HTTP API shutting down")
	return s.echo.Shutdown(shutdownCtx)
}
