package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/notification"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// HTTPNotificationClient posts notifications to the notification service.
// Notifications are never retried.
type HTTPNotificationClient struct {
	c *httpClient
}

func NewHTTPNotificationClient(cfg Config, logger zerolog.Logger) *HTTPNotificationClient {
	cfg.Retry.MaxAttempts = 1
	return &HTTPNotificationClient{c: newHTTPClient("notification", cfg, logger)}
}

func (n *HTTPNotificationClient) Send(ctx context.Context, msg notification.Notification) error {
	return n.c.do(ctx, "send notification", http.MethodPost, "/api/notifications/send", msg, nil, nil)
}

// NATSNotificationClient publishes notifications on a NATS subject consumed
// by the notification service.
type NATSNotificationClient struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSNotificationClient(nc *nats.Conn, subject string, timeout time.Duration) *NATSNotificationClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSNotificationClient{nc: nc, subject: subject, timeout: timeout}
}

func (n *NATSNotificationClient) Send(ctx context.Context, msg notification.Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return domainErrors.NewDependencyError("notification", "publish", fmt.Errorf("%w: %v", domainErrors.ErrDependencyUnavailable, err))
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return domainErrors.NewDependencyError("notification", "flush", fmt.Errorf("%w: %v", domainErrors.ErrDependencyUnavailable, err))
	}
	return nil
}

// ConnectNATS dials NATS with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}
