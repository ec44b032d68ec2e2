package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/route-engine/internal/adapters/cache/memory"
	"github.com/nulzo/route-engine/internal/adapters/cache/redis"
	"github.com/nulzo/route-engine/internal/analytics"
	"github.com/nulzo/route-engine/internal/config"
	"github.com/nulzo/route-engine/internal/core/ports"
	"github.com/nulzo/route-engine/internal/core/services"
	"github.com/nulzo/route-engine/internal/platform/logger"
	"github.com/nulzo/route-engine/internal/platform/otel"
	"github.com/nulzo/route-engine/internal/server"
	"github.com/nulzo/route-engine/internal/store"
	memstore "github.com/nulzo/route-engine/internal/store/memory"
	"github.com/nulzo/route-engine/internal/store/sqlite"
	"github.com/nulzo/route-engine/internal/version"
	"go.uber.org/zap"
)

const limiterIdle = 10 * time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	log := logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		EnableColor: cfg.Log.Color,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go version.CheckForUpdates(ctx, cfg.Server.UpdateCheckURL, log)

	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(otel.Options{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version.Version,
			SampleRatio:    cfg.Tracing.SampleRatio,
			Pretty:         cfg.Tracing.Pretty,
			Writer:         os.Stdout,
		}, log)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	repo, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		_ = repo.Close()
	}()

	cache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	ingestor := analytics.NewIngestor(log, repo, analytics.Options{
		BufferSize:    cfg.Analytics.BufferSize,
		BatchSize:     cfg.Analytics.BatchSize,
		FlushInterval: cfg.Analytics.FlushInterval,
	})
	ingestor.Start(context.Background())

	engine := services.NewEngine(repo, cache, ingestor, services.EngineConfig{
		DefaultModel:       cfg.Routing.DefaultModel,
		CredentialCacheTTL: cfg.Routing.CredentialCacheTTL,
		ChainCacheTTL:      cfg.Routing.ChainCacheTTL,
		SweepInterval:      cfg.Routing.SweepInterval,
		ContextTTL:         cfg.Routing.ContextTTL,
	}, log)
	engine.Start(ctx)

	srv := server.New(cfg, log, engine, analytics.NewService(repo))
	go pruneLimiter(ctx, srv.RateLimiter())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("route engine listening",
			zap.String("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Env),
			zap.String("version", version.Version),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	engine.Close()
	ingestor.Stop()

	log.Info("server exited")
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Repository, error) {
	if cfg.Database.DSN == "" {
		log.Info("no database configured, using in-memory store")
		return memstore.New(), nil
	}
	return sqlite.NewSQLiteStorage(cfg.Database.DSN, log)
}

// openCache prefers Redis and falls back to the in-process cache when Redis
// is disabled or unreachable.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (ports.CacheService, func()) {
	if cfg.Redis.Enabled {
		c, err := redis.New(ctx, redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err == nil {
			log.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
			return c, func() { _ = c.Close() }
		}
		log.Warn("redis unavailable, using in-memory cache", zap.Error(err))
	}
	return memory.NewMemoryCache(), func() {}
}

func pruneLimiter(ctx context.Context, rl interface{ Prune(time.Duration) int }) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(limiterIdle)
		}
	}
}
