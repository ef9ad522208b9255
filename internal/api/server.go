// Package api is the HTTP front of the edge. Every request not handled by
// the admin API, the metrics endpoint or the page agent route is
// intercepted by the offline cache manager.
package api

import (
	"context"
	"net/http"
	"time"

	apiv2 "github.com/gopos/gopos-edge/internal/api/v2"
	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/clients"
	"github.com/gopos/gopos-edge/internal/conf"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/gopos/gopos-edge/internal/serviceworker"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Config holds the server's collaborators.
type Config struct {
	Settings     *conf.Settings
	Registration *serviceworker.Registration
	Versions     repository.WorkerVersionRepository
	Storage      *cachestorage.Storage
	Hub          *clients.Hub
	// Push overrides the process-wide push service.
	Push    *push.Service
	Metrics *metrics.Metrics
	Logger  logger.Logger
}

// Server is the edge HTTP server.
type Server struct {
	cfg        Config
	echo       *echo.Echo
	controller *apiv2.Controller
	httpServer *http.Server
	log        logger.Logger
}

// New creates a server with every route registered.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		cfg:  cfg,
		echo: echo.New(),
		log:  log.Module("http"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger())

	s.controller = apiv2.New(s.echo, &apiv2.Controller{
		Settings:     cfg.Settings,
		Registration: cfg.Registration,
		Versions:     cfg.Versions,
		Storage:      cfg.Storage,
		Hub:          cfg.Hub,
		Push:         cfg.Push,
	}, log)

	s.registerPWARoutes()
	s.registerMetricsRoute()
	s.registerInterceptRoute()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) registerMetricsRoute() {
	if s.cfg.Metrics == nil {
		return
	}
	path := "/metrics"
	if s.cfg.Settings != nil && s.cfg.Settings.Metrics.Path != "" {
		path = s.cfg.Settings.Metrics.Path
	}
	s.echo.GET(path, echo.WrapHandler(s.cfg.Metrics.Handler()))
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				s.log.Warn("request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			s.log.Debug("request", fields...)
			return nil
		},
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := ":8080"
	if s.cfg.Settings != nil && s.cfg.Settings.Server.Listen != "" {
		addr = s.cfg.Settings.Server.Listen
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.log.Info("edge listening", logger.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
