package service

import (
	"context"
	"time"

	"github.com/cassiomorais/orderpay/internal/domain/notification"
	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
)

// OrderService is the order service facade.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error
	ListSellerOrders(ctx context.Context, sellerID string) ([]*order.Order, error)
}

// InventoryService is the inventory service facade.
type InventoryService interface {
	ReleaseItem(ctx context.Context, productID string) error
}

// NotificationSender delivers a single user notification.
type NotificationSender interface {
	Send(ctx context.Context, n notification.Notification) error
}

// EventPublisher publishes committed payment transitions.
type EventPublisher interface {
	Publish(ctx context.Context, event payment.StateChangedEvent) error
}

// Recorder receives lifecycle metrics.
type Recorder interface {
	RecordLifecycle(operation, outcome string)
	RecordCompensation(outcome string)
	RecordNotification(outcome string)
	RecordSweep(expired int, d time.Duration)
}

// Lease is a lock held by this instance until it is released or its ttl runs out.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker grants a lease held by one sweeper instance at a time. When acquired
// is true the caller must release the lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (lease Lease, acquired bool, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordLifecycle(string, string) {}
func (nopRecorder) RecordCompensation(string) {}
func (nopRecorder) RecordNotification(string) {}
func (nopRecorder) RecordSweep(int, time.Duration) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, payment.StateChangedEvent) error { return nil }
