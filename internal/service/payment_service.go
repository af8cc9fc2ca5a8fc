package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/cassiomorais/orderpay/internal/gateway"
	"github.com/cassiomorais/orderpay/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cassiomorais/orderpay/internal/service"

// Deps are the collaborators shared by PaymentService and ExpirySweeper.
type Deps struct {
	Payments      payment.Repository
	Gateway       gateway.Gateway
	Orders        OrderService
	Inventory     InventoryService
	Notifications NotificationSender
	Events        EventPublisher // optional
	Recorder      Recorder       // optional
	Logger        zerolog.Logger
	FrontendURL   string
	ExpiryTimeout time.Duration
	NotifyTimeout time.Duration
	// WriteRetry covers the COMPLETED write after a capture. Zero uses retry.DefaultConfig.
	WriteRetry retry.Config
}

// PaymentService drives payments through create, confirm and refund.
type PaymentService struct {
	payments payment.Repository
	gateway  gateway.Gateway
	orders   OrderService
	effects  *sideEffects
	recorder Recorder
	logger   zerolog.Logger
	expiry   time.Duration
	retry    retry.Config
	tracer   trace.Tracer
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(d Deps) *PaymentService {
	effects := newSideEffects(d)
	expiry := d.ExpiryTimeout
	if expiry <= 0 {
		expiry = payment.ExpiryTimeout
	}
	writeRetry := d.WriteRetry
	if writeRetry.MaxAttempts == 0 {
		writeRetry = retry.DefaultConfig()
	}
	writeRetry.Retryable = func(err error) bool {
		return !errors.Is(err, domainErrors.ErrOptimisticLockFailed) &&
			!errors.Is(err, domainErrors.ErrPaymentNotFound)
	}
	return &PaymentService{
		payments: d.Payments,
		gateway:  d.Gateway,
		orders:   d.Orders,
		effects:  effects,
		recorder: effects.recorder,
		logger:   d.Logger,
		expiry:   expiry,
		retry:    writeRetry,
		tracer:   otel.Tracer(tracerName),
	}
}

// CreatePayment opens a gateway transaction for an order and records it as pending.
// A gateway failure is returned as a FAILED response, not as an error.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (resp *PaymentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreatePayment",
		trace.WithAttributes(attribute.String("order.id", req.OrderID)))
	defer func() { endSpan(span, resp, err) }()

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	// Step 1: the order, not the caller, decides the amount
	o, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", req.OrderID, err)
	}
	amount := payment.Amount{ValueCents: o.TotalAmount, Currency: req.Currency}
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	// Step 2: gateway transaction, idempotent per order
	res, err := s.gateway.CreateTransaction(ctx, gateway.CreateRequest{
		AmountCents:    amount.ValueCents,
		Currency:       amount.Currency,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.OrderID,
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"user_id":  req.UserID,
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", req.OrderID).Msg("gateway create failed")
		s.effects.compensate(ctx, req.OrderID)
		s.recorder.RecordLifecycle("create", "failed")
		return failedResponse("", gatewayMessage(err)), nil
	}

	// Step 3: persist as pending
	p, err := payment.NewPayment(req.OrderID, req.UserID, req.PaymentMethod, res.TransactionID, amount, s.expiry)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateTransaction) {
			// A retried create got the same transaction back from the gateway.
			return s.existingCreate(ctx, res)
		}
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	s.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("order_id", p.OrderID).
		Str("amount", p.Amount.String()).
		Msg("payment created")
	s.effects.publish(ctx, p)
	s.effects.notify(ctx, s.effects.initiated(p))
	s.recorder.RecordLifecycle("create", "pending")

	resp = newResponse(p, "Payment created successfully")
	resp.ClientSecret = res.ClientSecret
	resp.ExpiresAt = &p.ExpiresAt
	return resp, nil
}

func (s *PaymentService) existingCreate(ctx context.Context, res *gateway.Result) (*PaymentResponse, error) {
	existing, err := s.payments.GetByGatewayTransactionID(ctx, res.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("load existing payment: %w", err)
	}
	resp := newResponse(existing, "Payment created successfully")
	resp.ClientSecret = res.ClientSecret
	if existing.Status == payment.StatusPending {
		resp.ExpiresAt = &existing.ExpiresAt
	}
	return resp, nil
}

// ConfirmPayment completes the payment behind a gateway transaction.
//
// Whoever commits a final status runs its side effects, so the item is
// released at most once. A gateway decline persists FAILED before
// compensating. Funds captured for a payment that cannot be recorded as
// COMPLETED are refunded. If a step after the COMPLETED write fails, the
// payment stays COMPLETED and the response is still FAILED. Confirming an
// already completed payment is a no-op.
func (s *PaymentService) ConfirmPayment(ctx context.Context, transactionID string) (resp *PaymentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ConfirmPayment",
		trace.WithAttributes(attribute.String("gateway.transaction_id", transactionID)))
	defer func() { endSpan(span, resp, err) }()

	if strings.TrimSpace(transactionID) == "" {
		return nil, domainErrors.NewValidationError("transactionId", "Transaction ID is required")
	}

	p, err := s.payments.GetByGatewayTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			return nil, domainErrors.NewNotFoundError("payment not found for transaction " + transactionID)
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}

	switch p.Status {
	case payment.StatusPending:
	case payment.StatusCompleted:
		return newResponse(p, "Payment already confirmed"), nil
	default:
		return nil, domainErrors.NewInvalidStateError(fmt.Sprintf("cannot confirm payment in status %s", p.Status))
	}

	if _, err := s.gateway.Confirm(ctx, transactionID); err != nil {
		return s.confirmDeclined(ctx, p, errors.New(gatewayMessage(err)))
	}

	// The gateway has captured the funds from here on.
	if err := p.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := retry.Do(ctx, s.retry, func() error { return s.payments.Update(ctx, p) }); err != nil {
		if errors.Is(err, domainErrors.ErrOptimisticLockFailed) {
			return s.confirmConflict(ctx, p, true), nil
		}
		// Still PENDING: the sweep expires it and releases the item.
		s.reverseCapture(ctx, p)
		return s.confirmFailed(ctx, p, err, false), nil
	}
	s.effects.publish(ctx, p)

	if err := s.orders.UpdateOrderStatus(ctx, p.OrderID, order.StatusConfirmed); err != nil {
		return s.confirmFailed(ctx, p, err, true), nil
	}

	s.logger.Info().Str("payment_id", p.ID.String()).Str("order_id", p.OrderID).Msg("payment confirmed")
	s.effects.notify(ctx, s.effects.confirmed(p))
	s.recorder.RecordLifecycle("confirm", "completed")
	return newResponse(p, "Payment confirmed successfully"), nil
}

// confirmDeclined records a gateway decline as FAILED and only then releases
// the item, so neither a retried confirm nor the sweep can act on it again.
func (s *PaymentService) confirmDeclined(ctx context.Context, p *payment.Payment, cause error) (*PaymentResponse, error) {
	if err := p.MarkFailed(); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		if errors.Is(err, domainErrors.ErrOptimisticLockFailed) {
			return s.confirmConflict(ctx, p, false), nil
		}
		// Left PENDING for the sweep to expire and compensate.
		s.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("failed to persist declined payment")
		return s.confirmFailed(ctx, p, cause, false), nil
	}
	s.effects.publish(ctx, p)
	return s.confirmFailed(ctx, p, cause, true), nil
}

// confirmConflict handles a lost version race. The winner, a concurrent confirm
// or the expiry sweep, has already run its own side effects. Funds captured by
// a confirm that lost to a final status are refunded.
func (s *PaymentService) confirmConflict(ctx context.Context, p *payment.Payment, captured bool) *PaymentResponse {
	current, err := s.payments.GetByID(ctx, p.ID)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("failed to reload payment after conflict")
	case current.Status == payment.StatusCompleted:
		return newResponse(current, "Payment already confirmed")
	case captured && (current.Status == payment.StatusExpired || current.Status == payment.StatusFailed):
		s.reverseCapture(ctx, current)
	}
	return s.confirmFailed(ctx, p, errors.New("payment was modified concurrently"), false)
}

// reverseCapture refunds funds captured for a payment that did not end up
// COMPLETED. The refund key is the payment's own, so retries collapse into one refund.
func (s *PaymentService) reverseCapture(ctx context.Context, p *payment.Payment) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With().Str("payment_id", p.ID.String()).Str("order_id", p.OrderID).Logger()

	_, err := s.gateway.Refund(ctx, gateway.RefundRequest{
		TransactionID:  p.GatewayTransactionID,
		IdempotencyKey: gateway.RefundIdempotencyKey(p.ID.String()),
	})
	if err != nil {
		log.Error().Err(err).Msg("captured funds not reversed, manual refund required")
		s.recorder.RecordLifecycle("reverse_capture", "failed")
		return
	}
	log.Warn().Msg("reversed capture of unrecorded confirmation")
	s.recorder.RecordLifecycle("reverse_capture", "refunded")
}

func (s *PaymentService) confirmFailed(ctx context.Context, p *payment.Payment, cause error, compensate bool) *PaymentResponse {
	s.logger.Error().Err(cause).
		Str("payment_id", p.ID.String()).
		Str("order_id", p.OrderID).
		Str("status", string(p.Status)).
		Msg("payment confirmation failed")

	if compensate {
		s.effects.compensate(ctx, p.OrderID)
	}
	s.effects.notify(ctx, s.effects.confirmFailed(p))
	s.recorder.RecordLifecycle("confirm", "failed")
	return failedResponse(p.ID.String(), "Payment confirmation failed: "+cause.Error())
}

// RefundPayment refunds a completed payment and returns the item to stock.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID) (resp *PaymentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.RefundPayment",
		trace.WithAttributes(attribute.String("payment.id", paymentID.String())))
	defer func() { endSpan(span, resp, err) }()

	p, err := s.get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusCompleted {
		return nil, domainErrors.NewInvalidStateError("only completed payments can be refunded")
	}

	_, err = s.gateway.Refund(ctx, gateway.RefundRequest{
		TransactionID:  p.GatewayTransactionID,
		IdempotencyKey: gateway.RefundIdempotencyKey(p.ID.String()),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("gateway refund failed")
		s.recorder.RecordLifecycle("refund", "failed")
		return failedResponse(p.ID.String(), "Refund processing failed: "+gatewayMessage(err)), nil
	}

	if err := p.MarkRefunded(); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		if errors.Is(err, domainErrors.ErrOptimisticLockFailed) {
			// The refund key makes a retry safe; a concurrent refund may already have won.
			if current, getErr := s.payments.GetByID(ctx, p.ID); getErr == nil && current.Status == payment.StatusRefunded {
				return newResponse(current, "Payment refunded successfully"), nil
			}
			s.recorder.RecordLifecycle("refund", "failed")
			return failedResponse(p.ID.String(), "Refund processing failed: payment was modified concurrently"), nil
		}
		return nil, fmt.Errorf("persist refund: %w", err)
	}

	s.logger.Info().Str("payment_id", p.ID.String()).Str("order_id", p.OrderID).Msg("payment refunded")
	s.effects.publish(ctx, p)
	s.effects.compensate(ctx, p.OrderID)
	s.effects.notify(ctx, s.effects.refunded(p))
	s.recorder.RecordLifecycle("refund", "refunded")
	return newResponse(p, "Payment refunded successfully"), nil
}

// GetStatus reports the stored status of a payment.
func (s *PaymentService) GetStatus(ctx context.Context, paymentID uuid.UUID) (*PaymentResponse, error) {
	p, err := s.get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	resp := newResponse(p, "Payment status: "+string(p.Status))
	expiresAt := p.ExpiresAt
	resp.ExpiresAt = &expiresAt
	return resp, nil
}

// ListUserPayments returns all payments made by a user, newest first.
func (s *PaymentService) ListUserPayments(ctx context.Context, userID string) ([]*payment.Payment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domainErrors.NewValidationError("userId", "User ID is required")
	}
	payments, err := s.payments.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments for user %s: %w", userID, err)
	}
	return payments, nil
}

// ListCompletedPaymentsForSeller returns the completed payments for orders of a seller's items.
// An order whose payments cannot be read is left out.
func (s *PaymentService) ListCompletedPaymentsForSeller(ctx context.Context, sellerID string) ([]*payment.Payment, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, domainErrors.NewValidationError("sellerId", "Seller ID is required")
	}
	orders, err := s.orders.ListSellerOrders(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list orders for seller %s: %w", sellerID, err)
	}

	completed := make([]*payment.Payment, 0, len(orders))
	for _, o := range orders {
		payments, err := s.payments.ListByOrderID(ctx, o.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("seller_id", sellerID).Str("order_id", o.ID).
				Msg("skipping order in seller payment listing")
			continue
		}
		for _, p := range payments {
			if p.Status == payment.StatusCompleted {
				completed = append(completed, p)
			}
		}
	}
	return completed, nil
}

// Wait blocks until notifications still being delivered are done.
func (s *PaymentService) Wait() {
	s.effects.wait()
}

func (s *PaymentService) get(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			return nil, domainErrors.NewNotFoundError("payment not found: " + id.String())
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return p, nil
}

func validateCreate(req CreatePaymentRequest) error {
	switch {
	case strings.TrimSpace(req.OrderID) == "":
		return domainErrors.NewValidationError("orderId", "Order ID is required")
	case strings.TrimSpace(req.UserID) == "":
		return domainErrors.NewValidationError("userId", "User ID is required")
	case strings.TrimSpace(req.Currency) == "":
		return domainErrors.NewValidationError("currency", "Currency is required")
	case strings.TrimSpace(req.PaymentMethod) == "":
		return domainErrors.NewValidationError("paymentMethod", "Payment method is required")
	}
	return nil
}

func gatewayMessage(err error) string {
	var ge *domainErrors.GatewayError
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}

func endSpan(span trace.Span, resp *PaymentResponse, err error) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case resp != nil:
		span.SetAttributes(attribute.String("payment.status", string(resp.Status)))
		if resp.Status == payment.StatusFailed {
			span.SetStatus(codes.Error, resp.Message)
		}
	}
	span.End()
}
