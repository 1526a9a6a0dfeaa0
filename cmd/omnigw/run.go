package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/kvstore"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// defaultShutdownTimeout applies when the server config leaves it unset.
const defaultShutdownTimeout = 30 * time.Second

// run serves until ctx is cancelled, then shuts everything down. An empty
// watchPath disables config reloading.
func (a *application) run(ctx context.Context, watchPath string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(gctx)
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			a.logger.Info("starting metrics server", observability.String("address", a.metricsServer.Addr))
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.cache.Run(gctx, a.cfg.Cache.CleanupInterval.Duration())
	})
	g.Go(func() error {
		return a.limiter.Run(gctx, a.cfg.RateLimit.CleanupInterval.Duration())
	})
	if mem, ok := a.store.(*kvstore.MemoryStore); ok {
		g.Go(func() error {
			return sweepLoop(gctx, mem, a.cfg.Cache.CleanupInterval.Duration())
		})
	}

	watcher := a.startWatcher(gctx, watchPath)

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(watcher)
	})

	return g.Wait()
}

func (a *application) startWatcher(ctx context.Context, path string) *config.Watcher {
	if path == "" {
		return nil
	}
	watcher, err := config.NewWatcher(path, a.applyReload, config.WithWatcherLogger(a.logger))
	if err != nil {
		a.logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}
	return watcher
}

// shutdown stops every component within the configured shutdown timeout.
func (a *application) shutdown(watcher *config.Watcher) error {
	shutdownTimeout := a.cfg.Server.ShutdownTimeout.Duration()
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down", observability.Duration("timeout", shutdownTimeout))

	var errs []error
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
	}
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}

func sweepLoop(ctx context.Context, store *kvstore.MemoryStore, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			store.Sweep()
		}
	}
}
