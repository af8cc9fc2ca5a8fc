package gateway

import (
	"context"
)

// Result is what the gateway reports for a create, confirm or refund call.
type Result struct {
	TransactionID string
	ClientSecret  string
	RefundID      string
	Status        string
}

// Gateway is the payment gateway facade. Failures are returned as
// *errors.GatewayError carrying the gateway's human-readable message.
type Gateway interface {
	// Name returns the gateway name.
	Name() string
	// CreateTransaction opens a transaction. Calls sharing an idempotency key yield one transaction.
	CreateTransaction(ctx context.Context, req CreateRequest) (*Result, error)
	// Confirm verifies that the transaction was captured, confirming it if still required.
	Confirm(ctx context.Context, transactionID string) (*Result, error)
	// Refund refunds the full transaction amount.
	Refund(ctx context.Context, req RefundRequest) (*Result, error)
}

type CreateRequest struct {
	AmountCents    int64 // in minor units
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
	Metadata       map[string]string
}

type RefundRequest struct {
	TransactionID  string
	IdempotencyKey string
}

// RefundIdempotencyKey is the key used for refunding a payment, stable across retries.
func RefundIdempotencyKey(paymentID string) string {
	return "refund_" + paymentID
}
