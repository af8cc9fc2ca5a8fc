package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create creates a new payment
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByGatewayTransactionID retrieves the payment created for a gateway transaction
	GetByGatewayTransactionID(ctx context.Context, transactionID string) (*Payment, error)

	// ListByUserID lists a user's payments, newest first
	ListByUserID(ctx context.Context, userID string) ([]*Payment, error)

	// ListByOrderID lists the payments attempted for an order, newest first
	ListByOrderID(ctx context.Context, orderID string) ([]*Payment, error)

	// ListExpired returns pending payments whose deadline is before the given time
	ListExpired(ctx context.Context, filter ExpiredFilter) ([]*Payment, error)

	// Update persists a transition. It fails with ErrOptimisticLockFailed when
	// the stored version is not payment.Version-1.
	Update(ctx context.Context, payment *Payment) error
}

// ExpiredFilter selects payments for the expiry sweep.
type ExpiredFilter struct {
	Status PaymentStatus
	Before time.Time
	Limit  int
}
