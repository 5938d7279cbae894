// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ryosukesatoh/group-digest/internal/config"
	"github.com/ryosukesatoh/group-digest/internal/fetcher"
	"github.com/ryosukesatoh/group-digest/internal/runner"
)

// Pipeline runs one summarization job.
type Pipeline interface {
	Run(ctx context.Context, req runner.Request) *runner.Outcome
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of the pipeline.
type Server struct {
	echo     *echo.Echo
	cfg      config.ServerConfig
	pipeline Pipeline
	store    Pinger
	digests  http.Handler
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDigests mounts a handler serving published digests under /digests/.
func WithDigests(h http.Handler) Option {
	return func(s *Server) { s.digests = h }
}

// New builds the server and registers its routes.
func New(cfg config.ServerConfig, pipeline Pipeline, store Pinger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health" || c.Request().URL.Path == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				s.logger.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				s.logger.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, secretHeader},
		MaxAge:       86400,
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	if cfg.MaxBodyBytes != "" {
		api.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}
	if cfg.RateLimit > 0 {
		api.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(cfg.RateLimit),
				Burst: int(math.Max(1, math.Ceil(cfg.RateLimit))),
			}),
		}))
	}
	if cfg.SharedSecret != "" {
		api.Use(sharedSecret(cfg.SharedSecret))
	}
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.ContextTimeout(cfg.RequestTimeout))
	}
	api.POST("/summarize", s.handleSummarize)

	if s.digests != nil {
		digests := echo.WrapHandler(http.StripPrefix("/digests", s.digests))
		e.GET("/digests", func(c echo.Context) error {
			return c.Redirect(http.StatusMovedPermanently, "/digests/")
		})
		e.GET("/digests/*", digests)
	}

	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.cfg.Addr))
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleSummarize(c echo.Context) error {
	var capture fetcher.Capture
	if err := json.NewDecoder(c.Request().Body).Decode(&capture); err != nil {
		return c.JSON(http.StatusBadRequest, rejected(decodeErrorReason(err)))
	}

	req, err := runner.NewRequest(&capture)
	if err != nil {
		return c.JSON(http.StatusBadRequest, rejected(err.Error()))
	}

	out := s.pipeline.Run(c.Request().Context(), req)
	return c.JSON(statusFor(out), out)
}

// decodeErrorReason names the offending field when the body is valid JSON of
// the wrong shape. Older extension builds send posts as one preformatted string.
func decodeErrorReason(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch typeErr.Field {
		case "posts":
			return "posts must be an array of post objects"
		case "screenshots":
			return "screenshots must be an array of strings"
		}
	}
	return "invalid JSON body"
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// rejected is the outcome of a request refused before the pipeline ran.
func rejected(reason string) *runner.Outcome {
	return &runner.Outcome{
		Error: reason,
		Stage: runner.StageReceived,
		RunID: uuid.NewString(),
	}
}

// statusFor maps an outcome to its HTTP status.
func statusFor(out *runner.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	if out.Failure == nil {
		return http.StatusInternalServerError
	}
	switch out.Failure.Kind {
	case runner.KindInput:
		return http.StatusBadRequest
	case runner.KindExtraction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
