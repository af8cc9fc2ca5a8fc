package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/google/uuid"
)

// MockGateway simulates a payment gateway in memory. It honours idempotency
// keys the way a real gateway does.
type MockGateway struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0

	mu           sync.Mutex
	transactions map[string]*Result // by transaction id
	byKey        map[string]string  // idempotency key -> transaction id
	refunds      map[string]*Result // by idempotency key
}

type MockOption func(*MockGateway)

func WithFailureRate(rate float64) MockOption {
	return func(g *MockGateway) { g.failureRate = rate }
}

func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

func WithTimeoutRate(rate float64) MockOption {
	return func(g *MockGateway) { g.timeoutRate = rate }
}

func NewMockGateway(name string, opts ...MockOption) *MockGateway {
	g := &MockGateway{
		name:         name,
		transactions: make(map[string]*Result),
		byKey:        make(map[string]string),
		refunds:      make(map[string]*Result),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MockGateway) Name() string { return g.name }

func (g *MockGateway) CreateTransaction(ctx context.Context, req CreateRequest) (*Result, error) {
	if err := g.simulate(ctx, "create"); err != nil {
		return nil, err
	}
	if req.AmountCents <= 0 {
		return nil, domainErrors.NewGatewayError("create", "Amount must be at least 1 minor unit", nil)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		r := *g.transactions[id]
		return &r, nil
	}

	id := fmt.Sprintf("%s_txn_%s", g.name, uuid.New().String()[:8])
	r := &Result{
		TransactionID: id,
		ClientSecret:  fmt.Sprintf("%s_secret_%s", id, uuid.New().String()[:12]),
		Status:        "requires_confirmation",
	}
	g.transactions[id] = r
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = id
	}
	out := *r
	return &out, nil
}

func (g *MockGateway) Confirm(ctx context.Context, transactionID string) (*Result, error) {
	if err := g.simulate(ctx, "confirm"); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.transactions[transactionID]
	if !ok {
		return nil, domainErrors.NewGatewayError("confirm", fmt.Sprintf("No such transaction: '%s'", transactionID), nil)
	}
	switch r.Status {
	case "requires_confirmation":
		r.Status = "succeeded"
	case "refunded":
		return nil, domainErrors.NewGatewayError("confirm", fmt.Sprintf("Transaction %s has been refunded", transactionID), nil)
	}
	out := *r
	return &out, nil
}

func (g *MockGateway) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	if err := g.simulate(ctx, "refund"); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		out := *r
		return &out, nil
	}
	tx, ok := g.transactions[req.TransactionID]
	if !ok {
		return nil, domainErrors.NewGatewayError("refund", fmt.Sprintf("No such transaction: '%s'", req.TransactionID), nil)
	}
	if tx.Status == "refunded" {
		return nil, domainErrors.NewGatewayError("refund", fmt.Sprintf("Transaction %s has already been refunded", tx.TransactionID), nil)
	}
	tx.Status = "refunded"

	r := &Result{
		TransactionID: tx.TransactionID,
		RefundID:      fmt.Sprintf("%s_refund_%s", g.name, uuid.New().String()[:8]),
		Status:        "succeeded",
	}
	if req.IdempotencyKey != "" {
		g.refunds[req.IdempotencyKey] = r
	}
	out := *r
	return &out, nil
}

func (g *MockGateway) simulate(ctx context.Context, op string) error {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return domainErrors.NewGatewayError(op, "gateway request cancelled", ctx.Err())
		}
	}

	if g.timeoutRate > 0 && rand.Float64() < g.timeoutRate {
		return domainErrors.NewGatewayError(op, "gateway request timed out", domainErrors.ErrGatewayUnavailable)
	}
	if g.failureRate > 0 && rand.Float64() < g.failureRate {
		return domainErrors.NewGatewayError(op, fmt.Sprintf("%s: simulated %s failure", g.name, op), nil)
	}
	return nil
}
