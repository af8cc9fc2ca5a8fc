package service

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/notification"
	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/cassiomorais/orderpay/internal/gateway"
	"github.com/cassiomorais/orderpay/internal/testutil"
	"github.com/cassiomorais/orderpay/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type testEnv struct {
	repo      *testutil.MockPaymentRepository
	gateway   *testutil.MockGateway
	orders    *testutil.MockOrderService
	inventory *testutil.MockInventoryService
	notifier  *testutil.MockNotificationSender
	events    *testutil.MockEventPublisher
}

func (e *testEnv) deps() Deps {
	return Deps{
		Payments:      e.repo,
		Gateway:       e.gateway,
		Orders:        e.orders,
		Inventory:     e.inventory,
		Notifications: e.notifier,
		Events:        e.events,
		Logger:        zerolog.Nop(),
		FrontendURL:   "http://shop.local/",
		WriteRetry:    retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:      testutil.NewMockPaymentRepository(),
		gateway:   &testutil.MockGateway{},
		orders:    testutil.NewMockOrderService(),
		inventory: &testutil.MockInventoryService{},
		notifier:  &testutil.MockNotificationSender{},
		events:    &testutil.MockEventPublisher{},
	}
	env.orders.AddOrder(testutil.NewTestOrder("order-1", "user-1", "prod-1", 1999))
	return env
}

func setupPaymentService() (*PaymentService, *testEnv) {
	env := newTestEnv()
	return NewPaymentService(env.deps()), env
}

func validCreateRequest() CreatePaymentRequest {
	return CreatePaymentRequest{
		OrderID:       "order-1",
		UserID:        "user-1",
		Currency:      "USD",
		PaymentMethod: "pm_card_visa",
	}
}

func createPending(t *testing.T, svc *PaymentService) *PaymentResponse {
	t.Helper()
	resp, err := svc.CreatePayment(context.Background(), validCreateRequest())
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, resp.Status)
	return resp
}

// sweepLater returns a sweeper that runs an hour from now, past every pending deadline.
func sweepLater(env *testEnv) *ExpirySweeper {
	sweeper := NewExpirySweeper(env.deps(), nil, SweeperConfig{})
	sweeper.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	return sweeper
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

// --- CreatePayment Tests ---

func TestCreatePayment_Success(t *testing.T) {
	svc, env := setupPaymentService()
	ctx := context.Background()

	resp, err := svc.CreatePayment(ctx, validCreateRequest())
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusPending, resp.Status)
	assert.Equal(t, "Payment created successfully", resp.Message)
	assert.Equal(t, "secret_order-1", resp.ClientSecret)
	assert.Equal(t, "txn_order-1", resp.GatewayTransactionID)
	require.NotNil(t, resp.ExpiresAt)

	// Amount comes from the order; idempotency key is the order id
	calls := env.gateway.CreateCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(1999), calls[0].AmountCents)
	assert.Equal(t, "USD", calls[0].Currency)
	assert.Equal(t, "pm_card_visa", calls[0].PaymentMethod)
	assert.Equal(t, "order-1", calls[0].IdempotencyKey)

	stored := env.repo.Stored(mustUUID(t, resp.PaymentID))
	require.NotNil(t, stored)
	assert.Equal(t, payment.StatusPending, stored.Status)
	assert.Equal(t, stored.CreatedAt.Add(15*time.Minute), stored.ExpiresAt)
	assert.Equal(t, stored.ExpiresAt, *resp.ExpiresAt)
	assert.Equal(t, int64(1999), stored.Amount.ValueCents)

	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.TypeInfo, sent[0].Type)
	assert.Equal(t, "user-1", sent[0].UserID)
	assert.Equal(t, "http://shop.local/payment/"+resp.PaymentID, sent[0].ActionURL)

	events := env.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, payment.StatusPending, events[0].Status)
	assert.Empty(t, env.inventory.Released())
}

func TestCreatePayment_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*CreatePaymentRequest)
		wantField string
	}{
		{"missing order", func(r *CreatePaymentRequest) { r.OrderID = "" }, "orderId"},
		{"blank user", func(r *CreatePaymentRequest) { r.UserID = "   " }, "userId"},
		{"missing currency", func(r *CreatePaymentRequest) { r.Currency = "" }, "currency"},
		{"missing payment method", func(r *CreatePaymentRequest) { r.PaymentMethod = "\t" }, "paymentMethod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, env := setupPaymentService()
			req := validCreateRequest()
			tt.mutate(&req)

			resp, err := svc.CreatePayment(context.Background(), req)
			assert.Nil(t, resp)
			var ve *domainErrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Empty(t, env.gateway.CreateCalls())
			assert.Equal(t, 0, env.repo.Count())
		})
	}
}

func TestCreatePayment_OrderNotFound(t *testing.T) {
	svc, env := setupPaymentService()
	req := validCreateRequest()
	req.OrderID = "missing"

	_, err := svc.CreatePayment(context.Background(), req)
	assert.True(t, domainErrors.IsNotFound(err))
	assert.Empty(t, env.gateway.CreateCalls())
}

func TestCreatePayment_OrderServiceUnavailable(t *testing.T) {
	svc, env := setupPaymentService()
	env.orders.GetOrderFunc = func(ctx context.Context, orderID string) (*order.Order, error) {
		return nil, domainErrors.NewDependencyError("order", "get order", nil)
	}

	_, err := svc.CreatePayment(context.Background(), validCreateRequest())
	assert.ErrorIs(t, err, domainErrors.ErrDependencyUnavailable)
	assert.Empty(t, env.gateway.CreateCalls())
}

func TestCreatePayment_ZeroOrderTotal(t *testing.T) {
	svc, env := setupPaymentService()
	env.orders.AddOrder(testutil.NewTestOrder("order-0", "user-1", "prod-1", 0))
	req := validCreateRequest()
	req.OrderID = "order-0"

	_, err := svc.CreatePayment(context.Background(), req)
	var ve *domainErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Empty(t, env.gateway.CreateCalls())
}

func TestCreatePayment_GatewayFailure(t *testing.T) {
	svc, env := setupPaymentService()
	env.gateway.CreateTransactionFunc = func(ctx context.Context, req gateway.CreateRequest) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("create", "Your card was declined.", nil)
	}

	resp, err := svc.CreatePayment(context.Background(), validCreateRequest())
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, "Your card was declined.", resp.Message)
	assert.Empty(t, resp.ClientSecret)
	assert.Nil(t, resp.ExpiresAt)
	assert.Equal(t, 0, env.repo.Count())
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())
	assert.Empty(t, env.notifier.Sent())
	assert.Empty(t, env.events.Events())
}

func TestCreatePayment_GatewayFailure_CompensationFailureIsSwallowed(t *testing.T) {
	svc, env := setupPaymentService()
	env.gateway.CreateTransactionFunc = func(ctx context.Context, req gateway.CreateRequest) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("create", "gateway unavailable", domainErrors.ErrGatewayUnavailable)
	}
	env.inventory.ReleaseItemFunc = func(ctx context.Context, productID string) error {
		return domainErrors.NewDependencyError("inventory", "release item", nil)
	}

	resp, err := svc.CreatePayment(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, "gateway unavailable", resp.Message)
}

func TestCreatePayment_NotificationFailureDoesNotFailCreate(t *testing.T) {
	svc, env := setupPaymentService()
	env.notifier.SendFunc = func(ctx context.Context, n notification.Notification) error {
		return errors.New("notification service down")
	}

	resp, err := svc.CreatePayment(context.Background(), validCreateRequest())
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, payment.StatusPending, resp.Status)
	assert.Len(t, env.notifier.Sent(), 1)
	assert.Equal(t, 1, env.repo.Count())
}

func TestCreatePayment_EventPublishFailureDoesNotFailCreate(t *testing.T) {
	svc, env := setupPaymentService()
	env.events.PublishFunc = func(ctx context.Context, e payment.StateChangedEvent) error {
		return errors.New("stream unavailable")
	}

	resp, err := svc.CreatePayment(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, resp.Status)
}

func TestCreatePayment_RetryReturnsExistingPayment(t *testing.T) {
	svc, env := setupPaymentService()

	first := createPending(t, svc)
	second := createPending(t, svc)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	assert.Equal(t, 1, env.repo.Count())
	assert.Len(t, env.gateway.CreateCalls(), 2)
}

// --- GetStatus Tests ---

func TestGetStatus_RoundTrip(t *testing.T) {
	svc, _ := setupPaymentService()
	created := createPending(t, svc)

	resp, err := svc.GetStatus(context.Background(), mustUUID(t, created.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, created.Status, resp.Status)
	assert.Equal(t, *created.ExpiresAt, *resp.ExpiresAt)
	assert.Equal(t, "Payment status: PENDING", resp.Message)
}

func TestGetStatus_NotFound(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

// --- ConfirmPayment Tests ---

func TestConfirmPayment_Success(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	svc.Wait()

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusCompleted, resp.Status)
	assert.Equal(t, "Payment confirmed successfully", resp.Message)
	assert.Equal(t, payment.StatusCompleted, env.repo.Stored(mustUUID(t, created.PaymentID)).Status)
	assert.Equal(t, []testutil.StatusUpdate{{OrderID: "order-1", Status: order.StatusConfirmed}}, env.orders.StatusUpdates())
	assert.Equal(t, []string{created.GatewayTransactionID}, env.gateway.ConfirmCalls())

	sent := env.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.TypeSuccess, sent[1].Type)
	assert.Equal(t, "Payment successful for order #order-1", sent[1].Message)
	assert.Equal(t, "http://shop.local/orders/order-1", sent[1].ActionURL)
	assert.Empty(t, env.inventory.Released())
}

func TestConfirmPayment_NotFound(t *testing.T) {
	svc, env := setupPaymentService()

	_, err := svc.ConfirmPayment(context.Background(), "txn_unknown")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
	assert.Empty(t, env.gateway.ConfirmCalls())
}

func TestConfirmPayment_BlankTransaction(t *testing.T) {
	svc, _ := setupPaymentService()

	_, err := svc.ConfirmPayment(context.Background(), " ")
	assert.True(t, domainErrors.IsValidation(err))
}

func TestConfirmPayment_SecondCallIsNoOp(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)

	_, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusCompleted, resp.Status)
	assert.Equal(t, "Payment already confirmed", resp.Message)
	assert.Len(t, env.orders.StatusUpdates(), 1)
	assert.Len(t, env.gateway.ConfirmCalls(), 1)
	assert.Len(t, env.notifier.Sent(), 2) // initiated + success
}

func TestConfirmPayment_TerminalStates(t *testing.T) {
	for _, status := range []payment.PaymentStatus{payment.StatusExpired, payment.StatusFailed, payment.StatusRefunded} {
		t.Run(string(status), func(t *testing.T) {
			svc, env := setupPaymentService()
			p := testutil.NewTestPayment("order-1", "user-1", 1999, "USD")
			p.Status = status
			env.repo.AddPayment(p)

			_, err := svc.ConfirmPayment(context.Background(), p.GatewayTransactionID)
			assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
			assert.Empty(t, env.orders.StatusUpdates())
			assert.Equal(t, status, env.repo.Stored(p.ID).Status)
		})
	}
}

func TestConfirmPayment_OrderStatusPushFails_PaymentStaysCompleted(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	env.orders.UpdateOrderStatusFunc = func(ctx context.Context, orderID string, status order.Status) error {
		return domainErrors.NewDependencyError("order", "update order status", nil)
	}

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Contains(t, resp.Message, "Payment confirmation failed: ")
	assert.Contains(t, resp.Message, "dependency unavailable")

	// The capture already happened, so the record keeps COMPLETED and stays refundable.
	assert.Equal(t, payment.StatusCompleted, env.repo.Stored(mustUUID(t, created.PaymentID)).Status)
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())

	sent := env.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.TypeError, sent[1].Type)
	assert.Equal(t, "http://shop.local/payment/retry/"+created.PaymentID, sent[1].ActionURL)

	status, err := svc.GetStatus(context.Background(), mustUUID(t, created.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, status.Status)
}

func TestConfirmPayment_GatewayDecline_PersistsFailed(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)
	env.gateway.ConfirmFunc = func(ctx context.Context, transactionID string) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("confirm", "payment intent requires a payment method", nil)
	}

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, "Payment confirmation failed: payment intent requires a payment method", resp.Message)
	assert.Equal(t, payment.StatusFailed, env.repo.Stored(id).Status)
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())
	assert.Empty(t, env.orders.StatusUpdates())
	assert.Empty(t, env.gateway.RefundCalls())

	events := env.events.Events()
	require.Len(t, events, 2)
	assert.Equal(t, payment.StatusFailed, events[1].Status)
}

// A declined payment cannot be completed by a retry nor expired later, so the
// item released for it is never released twice or sold with a live payment.
func TestConfirmPayment_GatewayDecline_ThenRetryAndSweep(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)
	env.gateway.ConfirmFunc = func(ctx context.Context, transactionID string) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("confirm", "card declined", nil)
	}

	first, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, first.Status)

	env.gateway.ConfirmFunc = nil
	_, err = svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	assert.True(t, domainErrors.IsInvalidState(err))

	sweeper := sweepLater(env)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	svc.Wait()
	sweeper.Wait()

	assert.Zero(t, n)
	assert.Equal(t, payment.StatusFailed, env.repo.Stored(id).Status)
	assert.Len(t, env.gateway.ConfirmCalls(), 1)
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())
}

// The FAILED write itself fails: nothing is released and the sweep compensates later.
func TestConfirmPayment_GatewayDecline_StoreFailureLeavesPending(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)
	env.gateway.ConfirmFunc = func(ctx context.Context, transactionID string) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("confirm", "card declined", nil)
	}
	env.repo.UpdateFunc = func(ctx context.Context, p *payment.Payment) error {
		if p.Status == payment.StatusFailed {
			return errors.New("connection reset")
		}
		return env.repo.ApplyUpdate(p)
	}

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	assert.Equal(t, "Payment confirmation failed: card declined", resp.Message)
	assert.Equal(t, payment.StatusPending, env.repo.Stored(id).Status)
	assert.Empty(t, env.inventory.Released())

	sweeper := sweepLater(env)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	svc.Wait()
	sweeper.Wait()

	assert.Equal(t, 1, n)
	assert.Equal(t, payment.StatusExpired, env.repo.Stored(id).Status)
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())
}

func TestConfirmPayment_StoreFailureIsRetried(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)
	attempts := 0
	env.repo.UpdateFunc = func(ctx context.Context, p *payment.Payment) error {
		attempts++
		if attempts == 1 {
			return errors.New("connection reset")
		}
		return env.repo.ApplyUpdate(p)
	}

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusCompleted, resp.Status)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, payment.StatusCompleted, env.repo.Stored(id).Status)
	assert.Empty(t, env.gateway.RefundCalls())
	assert.Empty(t, env.inventory.Released())
}

// The capture succeeded but COMPLETED could not be written: the funds go back
// and the item is released once, by the sweep that expires the payment.
func TestConfirmPayment_StoreFailure_RefundsCaptureThenSweepExpires(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)
	attempts := 0
	env.repo.UpdateFunc = func(ctx context.Context, p *payment.Payment) error {
		if p.Status == payment.StatusCompleted {
			attempts++
			return errors.New("connection reset")
		}
		return env.repo.ApplyUpdate(p)
	}

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, "Payment confirmation failed: connection reset", resp.Message)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, payment.StatusPending, env.repo.Stored(id).Status)
	assert.Empty(t, env.inventory.Released())

	refunds := env.gateway.RefundCalls()
	require.Len(t, refunds, 1)
	assert.Equal(t, "refund_"+created.PaymentID, refunds[0].IdempotencyKey)
	assert.Equal(t, created.GatewayTransactionID, refunds[0].TransactionID)

	sweeper := sweepLater(env)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	svc.Wait()
	sweeper.Wait()

	assert.Equal(t, 1, n)
	assert.Equal(t, payment.StatusExpired, env.repo.Stored(id).Status)
	assert.Len(t, env.gateway.ConfirmCalls(), 1)
	assert.Len(t, env.gateway.RefundCalls(), 1)
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())
}

// The expiry sweep committed EXPIRED between our read and our write, after
// the gateway had captured the funds.
func TestConfirmPayment_LosesRaceToExpiry(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	svc.Wait()
	id := mustUUID(t, created.PaymentID)

	stale := env.repo.Stored(id)
	env.repo.GetByGatewayTransactionIDFunc = func(ctx context.Context, transactionID string) (*payment.Payment, error) {
		c := *stale
		return &c, nil
	}
	winner := env.repo.Stored(id)
	require.NoError(t, winner.MarkExpired())
	require.NoError(t, env.repo.ApplyUpdate(winner))

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, "Payment confirmation failed: payment was modified concurrently", resp.Message)
	assert.Equal(t, payment.StatusExpired, env.repo.Stored(id).Status)
	assert.Empty(t, env.orders.StatusUpdates())
	assert.Empty(t, env.inventory.Released(), "the expiry already compensated")

	assert.Len(t, env.gateway.ConfirmCalls(), 1)
	refunds := env.gateway.RefundCalls()
	require.Len(t, refunds, 1)
	assert.Equal(t, "refund_"+created.PaymentID, refunds[0].IdempotencyKey)

	sent := env.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.TypeError, sent[1].Type)
}

// A decline that loses to the sweep captured nothing, so there is nothing to refund.
func TestConfirmPayment_DeclineLosesRaceToExpiry(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)
	env.gateway.ConfirmFunc = func(ctx context.Context, transactionID string) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("confirm", "card declined", nil)
	}

	stale := env.repo.Stored(id)
	env.repo.GetByGatewayTransactionIDFunc = func(ctx context.Context, transactionID string) (*payment.Payment, error) {
		c := *stale
		return &c, nil
	}
	winner := env.repo.Stored(id)
	require.NoError(t, winner.MarkExpired())
	require.NoError(t, env.repo.ApplyUpdate(winner))

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, payment.StatusExpired, env.repo.Stored(id).Status)
	assert.Empty(t, env.gateway.RefundCalls())
	assert.Empty(t, env.inventory.Released())
}

// Another confirm committed COMPLETED between our read and our write.
func TestConfirmPayment_LosesRaceToConcurrentConfirm(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)
	id := mustUUID(t, created.PaymentID)

	stale := env.repo.Stored(id)
	env.repo.GetByGatewayTransactionIDFunc = func(ctx context.Context, transactionID string) (*payment.Payment, error) {
		c := *stale
		return &c, nil
	}
	winner := env.repo.Stored(id)
	require.NoError(t, winner.MarkCompleted())
	require.NoError(t, env.repo.ApplyUpdate(winner))

	resp, err := svc.ConfirmPayment(context.Background(), created.GatewayTransactionID)
	require.NoError(t, err)

	assert.Equal(t, payment.StatusCompleted, resp.Status)
	assert.Equal(t, "Payment already confirmed", resp.Message)
	assert.Empty(t, env.orders.StatusUpdates())
	assert.Empty(t, env.inventory.Released())
}

// --- RefundPayment Tests ---

func TestRefundPayment_Success(t *testing.T) {
	svc, env := setupPaymentService()
	p := testutil.NewCompletedPayment("order-1", "user-1", 1999, "USD")
	env.repo.AddPayment(p)

	resp, err := svc.RefundPayment(context.Background(), p.ID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, payment.StatusRefunded, resp.Status)
	assert.Equal(t, "Payment refunded successfully", resp.Message)
	assert.Equal(t, payment.StatusRefunded, env.repo.Stored(p.ID).Status)

	refunds := env.gateway.RefundCalls()
	require.Len(t, refunds, 1)
	assert.Equal(t, "refund_"+p.ID.String(), refunds[0].IdempotencyKey)
	assert.Equal(t, p.GatewayTransactionID, refunds[0].TransactionID)

	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())
	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.TypeInfo, sent[0].Type)
	assert.Equal(t, "Refund processed for order #order-1", sent[0].Message)

	events := env.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, payment.StatusRefunded, events[0].Status)
}

func TestRefundPayment_RequiresCompleted(t *testing.T) {
	statuses := []payment.PaymentStatus{
		payment.StatusPending, payment.StatusFailed, payment.StatusExpired, payment.StatusRefunded,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			svc, env := setupPaymentService()
			p := testutil.NewTestPayment("order-1", "user-1", 1999, "USD")
			p.Status = status
			env.repo.AddPayment(p)

			resp, err := svc.RefundPayment(context.Background(), p.ID)
			assert.Nil(t, resp)
			assert.True(t, domainErrors.IsInvalidState(err))
			assert.Contains(t, err.Error(), "only completed payments can be refunded")
			assert.Empty(t, env.gateway.RefundCalls())
			assert.Equal(t, *p, *env.repo.Stored(p.ID))
			assert.Empty(t, env.inventory.Released())
		})
	}
}

func TestRefundPayment_GatewayFailure(t *testing.T) {
	svc, env := setupPaymentService()
	p := testutil.NewCompletedPayment("order-1", "user-1", 1999, "USD")
	env.repo.AddPayment(p)
	env.gateway.RefundFunc = func(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error) {
		return nil, domainErrors.NewGatewayError("refund", "Charge has already been refunded.", nil)
	}

	resp, err := svc.RefundPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, resp.Status)
	assert.Equal(t, "Refund processing failed: Charge has already been refunded.", resp.Message)
	assert.Equal(t, payment.StatusCompleted, env.repo.Stored(p.ID).Status)
	assert.Empty(t, env.inventory.Released())
}

func TestRefundPayment_NotFound(t *testing.T) {
	svc, env := setupPaymentService()

	_, err := svc.RefundPayment(context.Background(), uuid.New())
	assert.True(t, domainErrors.IsNotFound(err))
	assert.Empty(t, env.gateway.RefundCalls())
}

func TestRefundPayment_ConcurrentRefundAlreadyApplied(t *testing.T) {
	svc, env := setupPaymentService()
	p := testutil.NewCompletedPayment("order-1", "user-1", 1999, "USD")
	env.repo.AddPayment(p)

	stale := env.repo.Stored(p.ID)
	env.repo.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
		env.repo.GetByIDFunc = nil
		c := *stale
		return &c, nil
	}
	winner := env.repo.Stored(p.ID)
	require.NoError(t, winner.MarkRefunded())
	require.NoError(t, env.repo.ApplyUpdate(winner))

	resp, err := svc.RefundPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, resp.Status)
	assert.Empty(t, env.inventory.Released())
}

// --- Read model Tests ---

func TestListUserPayments(t *testing.T) {
	svc, env := setupPaymentService()
	env.repo.AddPayment(testutil.NewTestPayment("order-1", "user-1", 100, "USD"))
	env.repo.AddPayment(testutil.NewTestPayment("order-2", "user-1", 200, "USD"))
	env.repo.AddPayment(testutil.NewTestPayment("order-3", "user-2", 300, "USD"))

	payments, err := svc.ListUserPayments(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	_, err = svc.ListUserPayments(context.Background(), "")
	assert.True(t, domainErrors.IsValidation(err))
}

func TestListCompletedPaymentsForSeller(t *testing.T) {
	svc, env := setupPaymentService()
	env.orders.AddOrder(testutil.NewTestOrder("order-2", "user-2", "prod-2", 500))
	completed := testutil.NewCompletedPayment("order-1", "user-1", 1999, "USD")
	env.repo.AddPayment(completed)
	env.repo.AddPayment(testutil.NewTestPayment("order-2", "user-2", 500, "USD"))

	payments, err := svc.ListCompletedPaymentsForSeller(context.Background(), "seller-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, completed.ID, payments[0].ID)
}

func TestListCompletedPaymentsForSeller_SkipsUnreadableOrder(t *testing.T) {
	svc, env := setupPaymentService()
	env.orders.AddOrder(testutil.NewTestOrder("order-2", "user-2", "prod-2", 500))
	completed := testutil.NewCompletedPayment("order-1", "user-1", 1999, "USD")
	env.repo.ListByOrderIDFunc = func(ctx context.Context, orderID string) ([]*payment.Payment, error) {
		if orderID == "order-2" {
			return nil, errors.New("statement timeout")
		}
		return []*payment.Payment{completed}, nil
	}

	payments, err := svc.ListCompletedPaymentsForSeller(context.Background(), "seller-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, completed.ID, payments[0].ID)
}

// --- Scenarios ---

func TestScenario_CreateConfirmRefund(t *testing.T) {
	svc, env := setupPaymentService()
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, created.Status)
	assert.NotEmpty(t, created.ClientSecret)

	confirmed, err := svc.ConfirmPayment(ctx, created.GatewayTransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, confirmed.Status)

	refunded, err := svc.RefundPayment(ctx, mustUUID(t, created.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, refunded.Status)
	assert.Equal(t, []string{"prod-1"}, env.inventory.Released())

	status, err := svc.GetStatus(ctx, mustUUID(t, created.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, status.Status)
	svc.Wait()
	assert.Len(t, env.notifier.Sent(), 3)
}

func TestScenario_RealGatewaySimulator(t *testing.T) {
	env := newTestEnv()
	d := env.deps()
	d.Gateway = gateway.NewBreaker(gateway.NewMockGateway("sim"), gateway.DefaultBreakerSettings(), nil)
	svc := NewPaymentService(d)
	ctx := context.Background()

	created, err := svc.CreatePayment(ctx, validCreateRequest())
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, created.Status)

	confirmed, err := svc.ConfirmPayment(ctx, created.GatewayTransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, confirmed.Status)

	refunded, err := svc.RefundPayment(ctx, mustUUID(t, created.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, refunded.Status)
	svc.Wait()
}

func TestScenario_RefundPendingPayment(t *testing.T) {
	svc, env := setupPaymentService()
	created := createPending(t, svc)

	_, err := svc.RefundPayment(context.Background(), mustUUID(t, created.PaymentID))
	assert.True(t, domainErrors.IsInvalidState(err))
	assert.Empty(t, env.gateway.RefundCalls())
	svc.Wait()
}
