// Package httpapi exposes the change queue over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/orchestrator"
)

// Server serves the queue API for one Workbench.
type Server struct {
	echo   *echo.Echo
	wb     *orchestrator.Workbench
	logger *zap.Logger

	// done is closed by Shutdown so open event streams end before the
	// listener drains.
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Server.
type Option func(*options)

type options struct {
	gatherer prometheus.Gatherer
	mounts   map[string]http.Handler
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithHandler mounts h under path for every method. Used for the MCP
// streamable HTTP endpoint.
func WithHandler(path string, h http.Handler) Option {
	return func(o *options) { o.mounts[path] = h }
}

// NewServer builds the echo router for wb.
func NewServer(wb *orchestrator.Workbench, logger *zap.Logger, opts ...Option) (*Server, error) {
	if wb == nil {
		return nil, errors.New("httpapi: workbench is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{gatherer: prometheus.DefaultGatherer, mounts: map[string]http.Handler{}}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, wb: wb, logger: logger, done: make(chan struct{})}
	s.registerRoutes()

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	for path, h := range o.mounts {
		e.Any(path, echo.WrapHandler(h))
		e.Any(path+"/*", echo.WrapHandler(h))
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/queue", s.handleListQueue)
	v1.POST("/drafts", s.handleCreateDraft)
	v1.PATCH("/drafts/:id", s.handleUpdateDraft)

	v1.GET("/requests/:id", s.handleGetRequest)
	v1.DELETE("/requests/:id", s.handleDeleteRequest)
	v1.POST("/requests/:id/submit", s.handleSubmit)
	v1.POST("/requests/:id/retry", s.handleRetry)
	v1.POST("/requests/:id/duplicate", s.handleDuplicate)
	v1.POST("/requests/:id/select", s.handleSelect)
	v1.POST("/requests/:id/annotate", s.handleAnnotate)
	v1.PUT("/requests/:id/qa", s.handleSetQA)

	v1.GET("/build/preflight", s.handlePreflight)
	v1.POST("/build", s.handleBuild)
	v1.GET("/builds", s.handleListBuilds)
	v1.GET("/builds/:id", s.handleGetBuild)

	v1.GET("/config", s.handleConfig)
	v1.POST("/prompts/suggest", s.handleSuggest)
	v1.GET("/events", s.handleEvents)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open event streams and then gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	s.doneOnce.Do(func() { close(s.done) })
	return s.echo.Shutdown(ctx)
}
