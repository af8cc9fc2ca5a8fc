package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/orderpay/internal/gateway"
	"github.com/cassiomorais/orderpay/internal/infrastructure/config"
	"github.com/cassiomorais/orderpay/internal/infrastructure/kafka"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateway_SelectsDriver(t *testing.T) {
	mock := NewGateway(config.GatewayConfig{Driver: "mock"}, nil)
	require.IsType(t, &gateway.Breaker{}, mock)
	assert.Equal(t, "mock", mock.Name())

	stripe := NewGateway(config.GatewayConfig{Driver: "stripe", StripeSecretKey: "sk_test_123"}, nil)
	assert.Equal(t, "stripe", stripe.Name())
}

func TestNewGateway_MockRoundTrip(t *testing.T) {
	gw := NewGateway(config.GatewayConfig{Driver: "mock", CallTimeout: time.Second}, nil)
	ctx := context.Background()

	created, err := gw.CreateTransaction(ctx, gateway.CreateRequest{
		AmountCents:    1999,
		Currency:       "USD",
		PaymentMethod:  "pm_card_visa",
		IdempotencyKey: "order-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ClientSecret)

	confirmed, err := gw.Confirm(ctx, created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, created.TransactionID, confirmed.TransactionID)
}

func TestPeerConfig(t *testing.T) {
	cfg := peerConfig(config.ServicesConfig{
		RequestTimeout: 3 * time.Second,
		RetryAttempts:  5,
		RetryDelay:     50 * time.Millisecond,
	}, "http://orders")

	assert.Equal(t, "http://orders", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, uint(5), cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialDelay)

	defaults := peerConfig(config.ServicesConfig{}, "http://inventory")
	assert.Equal(t, uint(3), defaults.Retry.MaxAttempts)
}

func TestNewEventPublisher(t *testing.T) {
	var closers []func() error
	onClose := func(fn func() error) { closers = append(closers, fn) }

	t.Run("none", func(t *testing.T) {
		pub, err := newEventPublisher(config.EventsConfig{Driver: "none"}, nil, zerolog.Nop(), onClose)
		require.NoError(t, err)
		assert.Nil(t, pub)
	})

	t.Run("kafka registers a closer", func(t *testing.T) {
		pub, err := newEventPublisher(config.EventsConfig{
			Driver:       "kafka",
			KafkaBrokers: []string{"localhost:9092"},
		}, nil, zerolog.Nop(), onClose)
		require.NoError(t, err)
		assert.IsType(t, &kafka.Publisher{}, pub)
		assert.Len(t, closers, 1)
	})

	t.Run("redis without a client", func(t *testing.T) {
		_, err := newEventPublisher(config.EventsConfig{Driver: "redis"}, nil, zerolog.Nop(), onClose)
		assert.Error(t, err)
	})
}

func TestApp_LockerAndPingersWithoutRedis(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}

	assert.Nil(t, app.Locker())
	_, cache := app.Pingers()
	assert.Nil(t, cache)
}
