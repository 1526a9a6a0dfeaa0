package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/cache"
	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/health"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/pipeline"
	"github.com/vyrodovalexey/omnigw/internal/ratelimit"
	"github.com/vyrodovalexey/omnigw/internal/server/middleware"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// BreakerReporter reports the backend circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// Deps are the collaborators served by the HTTP surface. Dispatcher and
// Health are required; the rest enable the admin routes.
type Deps struct {
	Dispatcher *pipeline.Dispatcher
	Health     *health.Checker
	Engine     *auth.Engine
	Gate       *ratelimit.Gate
	Cache      *cache.Tiered
	Breaker    BreakerReporter
}

// Server is the public HTTP listener.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	deps       Deps
	cfg        config.ServerConfig
	logger     observability.Logger

	mu      sync.RWMutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds the gin engine, its middleware chain and the routes.
func New(cfg config.ServerConfig, cors config.CORSConfig, deps Deps, opts ...Option) (*Server, error) {
	if deps.Dispatcher == nil || deps.Health == nil {
		return nil, errors.New("server: dispatcher and health checker are required")
	}

	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	s := &Server{
		engine: gin.New(),
		deps:   deps,
		cfg:    cfg,
		logger: observability.L(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}

	s.engine.Use(
		middleware.RequestID(),
		middleware.Recovery(s.logger, s.panicResponse),
		middleware.Tracing(),
		middleware.Logging(s.logger),
		middleware.Secure(middleware.DefaultSecureOptions(gin.Mode() != gin.ReleaseMode)),
		middleware.CORS(cors),
		middleware.BodyLimit(cfg.MaxRequestBodySize),
	)
	s.routes()

	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// Start serves until Stop is called. It returns nil after a graceful
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		IdleTimeout:       s.cfg.IdleTimeout.Duration(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", observability.String("address", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv, running := s.httpServer, s.running
	s.mu.RUnlock()
	if !running || srv == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) panicResponse(c *gin.Context, _ any) {
	writeEnvelope(c, http.StatusInternalServerError, pipeline.Failure(middleware.GetRequestID(c), "Internal error"))
}
