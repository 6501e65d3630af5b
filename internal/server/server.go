// Package server exposes the external interfaces over HTTP: task
// submission, worker registration, event ingestion, and the read-only
// query projection. No caller can corrupt graph state from here — every
// write goes through the orchestrator and its state machine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gantryd/gantry/internal/metrics"
	"github.com/gantryd/gantry/internal/orchestrator"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints for gantryd.
type Server struct {
	echo    *echo.Echo
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
	metrics *metrics.Metrics
	config  *Config
}

// New creates the HTTP server.
func New(orch *orchestrator.Orchestrator, m *metrics.Metrics, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8320}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			if m != nil {
				m.HTTPRequests.WithLabelValues(
					c.Request().Method, c.Path(), strconv.Itoa(c.Response().Status),
				).Inc()
			}
			return err
		}
	})

	s := &Server{
		echo:    e,
		orch:    orch,
		logger:  logger,
		metrics: m,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleSubmitTask)
	v1.GET("/tasks", s.handleListTasks)
	v1.GET("/tasks/:id", s.handleGetTask)
	v1.GET("/tasks/:id/events", s.handleTaskEvents)
	v1.POST("/tasks/:id/cancel", s.handleCancelTask)
	v1.POST("/workers", s.handleRegisterWorker)
	v1.GET("/workers", s.handleListWorkers)
	v1.POST("/events", s.handleIngestEvent)
	v1.GET("/status", s.handleStatus)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
