package service

import (
	"context"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/notification"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/rs/zerolog"
)

// sideEffects holds the best-effort actions shared by request handling and
// the expiry sweep: compensation, notifications and event publishing. None of
// them report failures to the caller.
type sideEffects struct {
	orders        OrderService
	inventory     InventoryService
	notifications NotificationSender
	events        EventPublisher
	recorder      Recorder
	logger        zerolog.Logger
	frontendURL   string
	notifyTimeout time.Duration

	inflight sync.WaitGroup
}

func newSideEffects(d Deps) *sideEffects {
	e := &sideEffects{
		orders:        d.Orders,
		inventory:     d.Inventory,
		notifications: d.Notifications,
		events:        d.Events,
		recorder:      d.Recorder,
		logger:        d.Logger,
		frontendURL:   strings.TrimRight(d.FrontendURL, "/"),
		notifyTimeout: d.NotifyTimeout,
	}
	if e.events == nil {
		e.events = nopPublisher{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = 5 * time.Second
	}
	return e
}

// compensate releases the order's reserved item back to stock.
func (e *sideEffects) compensate(ctx context.Context, orderID string) {
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With().Str("order_id", orderID).Logger()

	o, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("compensation: fetch order failed")
		e.recorder.RecordCompensation("failed")
		return
	}
	if o.Item == nil || o.Item.ProductID == "" {
		log.Warn().Err(domainErrors.ErrOrderHasNoItem).Msg("compensation: nothing to release")
		e.recorder.RecordCompensation("skipped")
		return
	}
	if err := e.inventory.ReleaseItem(ctx, o.Item.ProductID); err != nil {
		log.Error().Err(err).Str("product_id", o.Item.ProductID).Msg("compensation: release item failed")
		e.recorder.RecordCompensation("failed")
		return
	}

	log.Info().Str("product_id", o.Item.ProductID).Msg("released reserved item")
	e.recorder.RecordCompensation("released")
}

// notify sends n in the background with its own timeout.
func (e *sideEffects) notify(ctx context.Context, n notification.Notification) {
	if e.notifications == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
		defer cancel()

		if err := e.notifications.Send(ctx, n); err != nil {
			e.logger.Warn().Err(err).
				Str("user_id", n.UserID).
				Str("type", string(n.Type)).
				Msg("notification not delivered")
			e.recorder.RecordNotification("failed")
			return
		}
		e.recorder.RecordNotification("sent")
	}()
}

func (e *sideEffects) publish(ctx context.Context, p *payment.Payment) {
	if err := e.events.Publish(ctx, payment.NewStateChangedEvent(p)); err != nil {
		e.logger.Warn().Err(err).
			Str("payment_id", p.ID.String()).
			Str("status", string(p.Status)).
			Msg("failed to publish state change")
	}
}

// wait blocks until queued notifications are done.
func (e *sideEffects) wait() {
	e.inflight.Wait()
}

func (e *sideEffects) initiated(p *payment.Payment) notification.Notification {
	return notification.Notification{
		UserID:    p.UserID,
		Message:   "Payment initiated for your order. Please complete the payment within 15 minutes.",
		Type:      notification.TypeInfo,
		ActionURL: e.frontendURL + "/payment/" + p.ID.String(),
	}
}

func (e *sideEffects) confirmed(p *payment.Payment) notification.Notification {
	return notification.Notification{
		UserID:    p.UserID,
		Message:   "Payment successful for order #" + p.OrderID,
		Type:      notification.TypeSuccess,
		ActionURL: e.frontendURL + "/orders/" + p.OrderID,
	}
}

func (e *sideEffects) confirmFailed(p *payment.Payment) notification.Notification {
	return notification.Notification{
		UserID:    p.UserID,
		Message:   "Payment failed for order #" + p.OrderID,
		Type:      notification.TypeError,
		ActionURL: e.frontendURL + "/payment/retry/" + p.ID.String(),
	}
}

func (e *sideEffects) refunded(p *payment.Payment) notification.Notification {
	return notification.Notification{
		UserID:    p.UserID,
		Message:   "Refund processed for order #" + p.OrderID,
		Type:      notification.TypeInfo,
		ActionURL: e.frontendURL + "/orders/" + p.OrderID,
	}
}

func (e *sideEffects) expired(p *payment.Payment) notification.Notification {
	return notification.Notification{
		UserID:    p.UserID,
		Message:   "Payment expired for order #" + p.OrderID,
		Type:      notification.TypeWarning,
		ActionURL: e.frontendURL + "/payment/retry/" + p.ID.String(),
	}
}
