package testutil

import (
	"context"
	"sort"
	"sync"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/notification"
	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/cassiomorais/orderpay/internal/gateway"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. It stores copies
// and enforces the version check like the postgres implementation.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	updates  int

	CreateFunc                    func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc                   func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByGatewayTransactionIDFunc func(ctx context.Context, transactionID string) (*payment.Payment, error)
	ListByOrderIDFunc             func(ctx context.Context, orderID string) ([]*payment.Payment, error)
	ListExpiredFunc               func(ctx context.Context, filter payment.ExpiredFilter) ([]*payment.Payment, error)
	UpdateFunc                    func(ctx context.Context, p *payment.Payment) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.GatewayTransactionID == p.GatewayTransactionID {
			return domainErrors.ErrDuplicateTransaction
		}
	}
	m.payments[p.ID] = clone(p)
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clone(p), nil
}

func (m *MockPaymentRepository) GetByGatewayTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	if m.GetByGatewayTransactionIDFunc != nil {
		return m.GetByGatewayTransactionIDFunc(ctx, transactionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.GatewayTransactionID == transactionID {
			return clone(p), nil
		}
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (m *MockPaymentRepository) ListByUserID(_ context.Context, userID string) ([]*payment.Payment, error) {
	return m.filter(func(p *payment.Payment) bool { return p.UserID == userID }), nil
}

func (m *MockPaymentRepository) ListByOrderID(ctx context.Context, orderID string) ([]*payment.Payment, error) {
	if m.ListByOrderIDFunc != nil {
		return m.ListByOrderIDFunc(ctx, orderID)
	}
	return m.filter(func(p *payment.Payment) bool { return p.OrderID == orderID }), nil
}

func (m *MockPaymentRepository) ListExpired(ctx context.Context, f payment.ExpiredFilter) ([]*payment.Payment, error) {
	if m.ListExpiredFunc != nil {
		return m.ListExpiredFunc(ctx, f)
	}
	out := m.filter(func(p *payment.Payment) bool {
		return p.Status == f.Status && p.ExpiresAt.Before(f.Before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	return m.ApplyUpdate(p)
}

// ApplyUpdate is the default Update behaviour, usable from an UpdateFunc override.
func (m *MockPaymentRepository) ApplyUpdate(p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[p.ID]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if stored.Version != p.Version-1 {
		return domainErrors.ErrOptimisticLockFailed
	}
	m.payments[p.ID] = clone(p)
	m.updates++
	return nil
}

// AddPayment stores a payment directly, bypassing CreateFunc.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clone(p)
}

// Stored returns the stored copy of a payment, or nil.
func (m *MockPaymentRepository) Stored(id uuid.UUID) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		return clone(p)
	}
	return nil
}

func (m *MockPaymentRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *MockPaymentRepository) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

func (m *MockPaymentRepository) filter(keep func(*payment.Payment) bool) []*payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*payment.Payment{}
	for _, p := range m.payments {
		if keep(p) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func clone(p *payment.Payment) *payment.Payment {
	c := *p
	return &c
}

// --- Gateway Mock ---

// MockGateway records calls and succeeds unless a Func override says otherwise.
// Transaction ids are derived from the idempotency key.
type MockGateway struct {
	mu       sync.Mutex
	creates  []gateway.CreateRequest
	confirms []string
	refunds  []gateway.RefundRequest

	CreateTransactionFunc func(ctx context.Context, req gateway.CreateRequest) (*gateway.Result, error)
	ConfirmFunc           func(ctx context.Context, transactionID string) (*gateway.Result, error)
	RefundFunc            func(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error)
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateTransaction(ctx context.Context, req gateway.CreateRequest) (*gateway.Result, error) {
	m.mu.Lock()
	m.creates = append(m.creates, req)
	m.mu.Unlock()
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, req)
	}
	return &gateway.Result{
		TransactionID: "txn_" + req.IdempotencyKey,
		ClientSecret:  "secret_" + req.IdempotencyKey,
		Status:        "requires_confirmation",
	}, nil
}

func (m *MockGateway) Confirm(ctx context.Context, transactionID string) (*gateway.Result, error) {
	m.mu.Lock()
	m.confirms = append(m.confirms, transactionID)
	m.mu.Unlock()
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, transactionID)
	}
	return &gateway.Result{TransactionID: transactionID, Status: "succeeded"}, nil
}

func (m *MockGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error) {
	m.mu.Lock()
	m.refunds = append(m.refunds, req)
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, req)
	}
	return &gateway.Result{TransactionID: req.TransactionID, RefundID: "re_" + req.IdempotencyKey, Status: "succeeded"}, nil
}

func (m *MockGateway) CreateCalls() []gateway.CreateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.CreateRequest(nil), m.creates...)
}

func (m *MockGateway) ConfirmCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.confirms...)
}

func (m *MockGateway) RefundCalls() []gateway.RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.RefundRequest(nil), m.refunds...)
}

// --- Order Service Mock ---

type StatusUpdate struct {
	OrderID string
	Status  order.Status
}

type MockOrderService struct {
	mu            sync.Mutex
	orders        map[string]*order.Order
	statusUpdates []StatusUpdate

	GetOrderFunc          func(ctx context.Context, orderID string) (*order.Order, error)
	UpdateOrderStatusFunc func(ctx context.Context, orderID string, status order.Status) error
	ListSellerOrdersFunc  func(ctx context.Context, sellerID string) ([]*order.Order, error)
}

func NewMockOrderService() *MockOrderService {
	return &MockOrderService{orders: make(map[string]*order.Order)}
}

func (m *MockOrderService) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, domainErrors.NewDependencyError("order", "get order", domainErrors.ErrOrderNotFound)
	}
	return o, nil
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	m.mu.Lock()
	m.statusUpdates = append(m.statusUpdates, StatusUpdate{OrderID: orderID, Status: status})
	m.mu.Unlock()
	if m.UpdateOrderStatusFunc != nil {
		return m.UpdateOrderStatusFunc(ctx, orderID, status)
	}
	return nil
}

func (m *MockOrderService) ListSellerOrders(ctx context.Context, sellerID string) ([]*order.Order, error) {
	if m.ListSellerOrdersFunc != nil {
		return m.ListSellerOrdersFunc(ctx, sellerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if o.Item != nil && o.Item.SellerID == sellerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderService) StatusUpdates() []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusUpdate(nil), m.statusUpdates...)
}

// --- Inventory Service Mock ---

type MockInventoryService struct {
	mu       sync.Mutex
	released []string

	ReleaseItemFunc func(ctx context.Context, productID string) error
}

func (m *MockInventoryService) ReleaseItem(ctx context.Context, productID string) error {
	m.mu.Lock()
	m.released = append(m.released, productID)
	m.mu.Unlock()
	if m.ReleaseItemFunc != nil {
		return m.ReleaseItemFunc(ctx, productID)
	}
	return nil
}

func (m *MockInventoryService) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// --- Notification Mock ---

type MockNotificationSender struct {
	mu   sync.Mutex
	sent []notification.Notification

	SendFunc func(ctx context.Context, n notification.Notification) error
}

func (m *MockNotificationSender) Send(ctx context.Context, n notification.Notification) error {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, n)
	}
	return nil
}

func (m *MockNotificationSender) Sent() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Notification(nil), m.sent...)
}

// --- Event Publisher Mock ---

type MockEventPublisher struct {
	mu     sync.Mutex
	events []payment.StateChangedEvent

	PublishFunc func(ctx context.Context, event payment.StateChangedEvent) error
}

func (m *MockEventPublisher) Publish(ctx context.Context, event payment.StateChangedEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

func (m *MockEventPublisher) Events() []payment.StateChangedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.StateChangedEvent(nil), m.events...)
}
