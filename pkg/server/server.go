// Package server exposes the chart synchronization stores over HTTP and
// WebSocket so charts rendered in separate processes or browser tabs can
// share hover, series and preference state.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/chartsync/pkg/chartsync"
	"github.com/vango-dev/chartsync/pkg/middleware"
)

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the server configuration. Zero fields take their defaults.
func WithConfig(c *Config) Option {
	return func(s *Server) {
		s.config = c.withDefaults()
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records request and stream metrics and serves them on /metrics.
func WithMetrics(m *middleware.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracing starts an OpenTelemetry span for every request.
func WithTracing(opts ...middleware.TracingOption) Option {
	return func(s *Server) {
		s.tracing = middleware.Tracing(opts...)
	}
}

// Server serves one chartsync.Services container.
type Server struct {
	svc      *chartsync.Services
	config   *Config
	logger   *slog.Logger
	metrics  *middleware.Metrics
	tracing  func(http.Handler) http.Handler
	upgrader websocket.Upgrader
	router   chi.Router

	httpServer *http.Server
}

// New creates a server for svc.
func New(svc *chartsync.Services, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.CheckOrigin,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Config returns the effective configuration.
func (s *Server) Config() *Config {
	return s.config
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if s.tracing != nil {
		r.Use(s.tracing)
	}
	if s.metrics != nil {
		r.Use(s.metrics.Handler)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Exposition())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/hover", func(r chi.Router) {
			r.Get("/", s.handleGetHover)
			r.Get("/prefs", s.handleGetPrefs)
			r.Put("/prefs", s.handlePutPrefs)
			r.Put("/{chartID}", s.handlePutHover)
			r.Delete("/{chartID}", s.handleDeleteHover)
		})
		r.Route("/series", func(r chi.Router) {
			r.Get("/", s.handleListSeries)
			r.Get("/{key}", s.handleGetSeries)
			r.Patch("/{key}", s.handlePatchSeries)
			r.Delete("/{key}", s.handleDeleteSeries)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/hover/{chartID}", s.handleHoverStream)
		r.Get("/series/{key}", s.handleSeriesStream)
		r.Get("/highlight", s.handleHighlightStream)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. An empty addr uses the configured address.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.config.Address
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
