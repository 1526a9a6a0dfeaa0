package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/auth/password"
	"github.com/vyrodovalexey/omnigw/internal/auth/token"
	"github.com/vyrodovalexey/omnigw/internal/cache"
	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/health"
	"github.com/vyrodovalexey/omnigw/internal/kvstore"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/pipeline"
	"github.com/vyrodovalexey/omnigw/internal/proxy"
	"github.com/vyrodovalexey/omnigw/internal/ratelimit"
	"github.com/vyrodovalexey/omnigw/internal/security"
	"github.com/vyrodovalexey/omnigw/internal/server"
	"github.com/vyrodovalexey/omnigw/internal/validation"
)

// application holds all application components.
type application struct {
	cfg     *config.GatewayConfig
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	store   kvstore.Store
	cache   *cache.Tiered
	limiter *ratelimit.Limiter
	gate    *ratelimit.Gate
	engine  *auth.Engine
	backend *proxy.HTTPClient
	server  *server.Server

	metricsServer *http.Server
}

// newApplication wires every component from cfg.
func newApplication(ctx context.Context, cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("omnigw")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(ctx, cfg.Observability.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	store, err := openStore(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	tiered := cache.New(store, cache.PolicyFromConfig(cfg.Cache),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	)

	hasher, err := password.New(password.ConfigFrom(cfg.Auth.Argon2))
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	tokens, err := token.NewManager(token.Config{
		Secret: []byte(cfg.Auth.Secret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	sessions := auth.NewSessionStore(store, cfg.Auth.SessionTTL.Duration(), auth.WithSessionLogger(logger))
	engine := auth.NewEngine(hasher, tokens,
		auth.WithSessions(sessions),
		auth.WithPermissionCache(tiered),
		auth.WithEngineLogger(logger),
	)

	limiter := ratelimit.New(ratelimit.WithLogger(logger))
	gate := ratelimit.NewGate(limiter, ratelimit.PolicyTableFromConfig(cfg.RateLimit),
		ratelimit.WithGateMetrics(metrics),
		ratelimit.WithGateLogger(logger),
	)

	scanner := security.NewScanner(cfg.Security, security.WithLogger(logger))
	validator := validation.New()

	backend := proxy.NewHTTPClient(cfg.Backend,
		proxy.WithLogger(logger),
		proxy.WithMetrics(metrics),
	)
	mux := proxy.NewMux(backend)
	for _, t := range proxy.DefaultTargets() {
		mux.HandleTarget(t)
	}
	pipeline.RegisterAuthHandlers(mux, engine, validator)

	stages := pipeline.DefaultStages(scanner, gate, validator, engine, pipeline.DefaultPermissionRules())
	if !cfg.RateLimit.Enabled {
		stages = slices.DeleteFunc(stages, func(s pipeline.Stage) bool {
			return s.Name() == pipeline.StageRateLimit
		})
	}

	dispatchOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithSessionCapture(tiered, pipeline.DefaultSessionCaptures()...),
	}
	if cfg.Cache.CacheResponses {
		dispatchOpts = append(dispatchOpts, pipeline.WithResponseCache(tiered))
	}
	dispatcher := pipeline.New(mux, stages, dispatchOpts...)

	checker := health.NewChecker(version,
		health.WithLogger(logger),
		health.WithCheck(health.StoreCheck(store)),
		health.WithCheck(health.BackendCheck(backend, health.WithCritical(false), health.WithCacheTTL(5*time.Second))),
	)

	srv, err := server.New(cfg.Server, cfg.CORS, server.Deps{
		Dispatcher: dispatcher,
		Health:     checker,
		Engine:     engine,
		Gate:       gate,
		Cache:      tiered,
		Breaker:    backend,
	}, server.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		store:   store,
		cache:   tiered,
		limiter: limiter,
		gate:    gate,
		engine:  engine,
		backend: backend,
		server:  srv,
	}

	if m := cfg.Observability.Metrics; m.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(m.Path, metrics.Handler())
		app.metricsServer = &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(m.Port)),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	logger.Info("gateway initialized",
		observability.String("backend", backend.BaseURL()),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
		observability.Bool("response_cache", cfg.Cache.CacheResponses),
		observability.Strings("stages", dispatcher.Stages()),
	)
	return app, nil
}

// openStore dials Redis, or uses the in-process store when no address is
// configured.
func openStore(ctx context.Context, cfg config.RedisConfig, logger observability.Logger) (kvstore.Store, error) {
	if cfg.Address == "" {
		logger.Warn("no redis address configured, using in-process store")
		return kvstore.NewMemoryStore(), nil
	}
	store, err := kvstore.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return store, nil
}

// bootstrapAdmin creates an account holding the admin permission.
func (a *application) bootstrapAdmin(ctx context.Context, username, email, plaintext string) error {
	u, err := a.engine.CreateUser(username, email, plaintext)
	if err != nil {
		return err
	}
	if err := a.engine.GrantPermission(ctx, u.ID, auth.PermissionAdmin); err != nil {
		return err
	}
	a.logger.Info("admin account created", observability.String("user_id", u.ID))
	return nil
}

// applyReload swaps the policies that can change at runtime. Listener,
// store and secret changes need a restart.
func (a *application) applyReload(cfg *config.GatewayConfig) {
	a.gate.SetTable(ratelimit.PolicyTableFromConfig(cfg.RateLimit))
	a.cache.SetPolicy(cache.PolicyFromConfig(cfg.Cache))
	a.logger.Info("runtime policies reloaded",
		observability.Int("endpoint_policies", len(cfg.RateLimit.Endpoints)),
	)
}
