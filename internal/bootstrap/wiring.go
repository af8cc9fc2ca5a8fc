package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/orderpay/internal/clients"
	"github.com/cassiomorais/orderpay/internal/controller"
	"github.com/cassiomorais/orderpay/internal/gateway"
	"github.com/cassiomorais/orderpay/internal/infrastructure/config"
	"github.com/cassiomorais/orderpay/internal/infrastructure/kafka"
	infraRedis "github.com/cassiomorais/orderpay/internal/infrastructure/redis"
	"github.com/cassiomorais/orderpay/internal/repository/postgres"
	"github.com/cassiomorais/orderpay/internal/service"
	"github.com/cassiomorais/orderpay/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Deps builds the payment store, gateway and peer facades shared by the
// orchestrator and the sweeper.
func (a *App) Deps() (service.Deps, error) {
	cfg := a.Config

	notifier, err := a.newNotifier()
	if err != nil {
		return service.Deps{}, err
	}
	events, err := a.newEventPublisher()
	if err != nil {
		return service.Deps{}, err
	}

	return service.Deps{
		Payments:      postgres.NewPaymentRepository(a.Pool),
		Gateway:       NewGateway(cfg.Gateway, a.Metrics),
		Orders:        clients.NewOrderClient(peerConfig(cfg.Services, cfg.Services.OrderURL), a.Logger),
		Inventory:     clients.NewInventoryClient(peerConfig(cfg.Services, cfg.Services.InventoryURL), a.Logger),
		Notifications: notifier,
		Events:        events,
		Recorder:      a.Metrics,
		Logger:        a.Logger,
		FrontendURL:   cfg.Payment.FrontendURL,
		ExpiryTimeout: cfg.Payment.ExpiryTimeout,
		NotifyTimeout: cfg.Services.NotifyTimeout,
	}, nil
}

// Locker returns the redis sweep lock, or nil when redis is disabled.
func (a *App) Locker() service.Locker {
	if a.Redis == nil {
		return nil
	}
	return sweepLocker{infraRedis.NewLocker(a.Redis)}
}

type sweepLocker struct {
	locker *infraRedis.Locker
}

func (l sweepLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (service.Lease, bool, error) {
	lock, ok, err := l.locker.TryLock(ctx, key, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return lock, true, nil
}

// NewGateway selects the gateway driver and wraps it in the circuit breaker.
func NewGateway(cfg config.GatewayConfig, observer gateway.Observer) gateway.Gateway {
	var next gateway.Gateway
	switch cfg.Driver {
	case "stripe":
		next = gateway.NewStripeGateway(cfg.StripeSecretKey)
	default:
		next = gateway.NewMockGateway("mock",
			gateway.WithFailureRate(cfg.MockFailureRate),
			gateway.WithLatency(cfg.MockLatency),
		)
	}

	settings := gateway.DefaultBreakerSettings()
	if cfg.Breaker.MaxRequests > 0 {
		settings.MaxRequests = cfg.Breaker.MaxRequests
	}
	if cfg.Breaker.Interval > 0 {
		settings.Interval = cfg.Breaker.Interval
	}
	if cfg.Breaker.Timeout > 0 {
		settings.Timeout = cfg.Breaker.Timeout
	}
	if cfg.Breaker.MinRequests > 0 {
		settings.MinRequests = cfg.Breaker.MinRequests
	}
	if cfg.Breaker.FailureRatio > 0 {
		settings.FailureRatio = cfg.Breaker.FailureRatio
	}
	if cfg.CallTimeout > 0 {
		settings.CallTimeout = cfg.CallTimeout
	}
	return gateway.NewBreaker(next, settings, observer)
}

func peerConfig(s config.ServicesConfig, baseURL string) clients.Config {
	r := retry.DefaultConfig()
	if s.RetryAttempts > 0 {
		r.MaxAttempts = s.RetryAttempts
	}
	if s.RetryDelay > 0 {
		r.InitialDelay = s.RetryDelay
	}
	return clients.Config{
		BaseURL: baseURL,
		Timeout: s.RequestTimeout,
		Retry:   r,
	}
}

func (a *App) newNotifier() (service.NotificationSender, error) {
	s := a.Config.Services
	if s.NotificationTransport != "nats" {
		return clients.NewHTTPNotificationClient(peerConfig(s, s.NotificationURL), a.Logger), nil
	}

	nc, err := clients.ConnectNATS(s.NATSURL, a.Config.Observability.ServiceName)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		return nc.Drain()
	})
	a.Logger.Info().Str("subject", s.NATSSubject).Msg("Notifications over NATS")
	return clients.NewNATSNotificationClient(nc, s.NATSSubject, s.NotifyTimeout), nil
}

func (a *App) newEventPublisher() (service.EventPublisher, error) {
	return newEventPublisher(a.Config.Events, a.Redis, a.Logger, a.onClose)
}

func newEventPublisher(cfg config.EventsConfig, rdb *redis.Client, logger zerolog.Logger, onClose func(func() error)) (service.EventPublisher, error) {
	switch cfg.Driver {
	case "kafka":
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		onClose(pub.Close)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("Publishing payment events to Kafka")
		return pub, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("events.driver redis: redis client not connected")
		}
		logger.Info().Str("stream", cfg.RedisStream).Msg("Publishing payment events to Redis stream")
		return infraRedis.NewStreamPublisher(rdb, cfg.RedisStream, cfg.RedisStreamMax), nil
	default:
		return nil, nil
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Pingers returns the readiness checks for the database and, when enabled, redis.
func (a *App) Pingers() (db, cache controller.Pinger) {
	db = a.Pool
	if a.Redis != nil {
		cache = redisPinger{client: a.Redis}
	}
	return db, cache
}
