package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/orderpay/internal/infrastructure/config"
	"github.com/cassiomorais/orderpay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/orderpay/internal/infrastructure/redis"
	"github.com/cassiomorais/orderpay/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the process-wide resources shared by cmd/api and cmd/worker.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client // nil when redis.enabled is false
	Metrics *observability.Metrics

	closers []func() error
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.closers = append(app.closers, func() error {
				return observability.Shutdown(context.Background(), tp)
			})
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	app.Pool = pool
	logger.Info().Msg("Connected to PostgreSQL")

	if cfg.Redis.Enabled {
		redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.Redis = redisClient
		logger.Info().Msg("Connected to Redis")
	}

	return app, nil
}

// Close releases everything New and Deps opened, most recent first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
