package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/google/uuid"
)

// ExpiryTimeout is how long a payment may stay pending before the sweep expires it.
const ExpiryTimeout = 15 * time.Minute

// PaymentStatus represents the payment status in the state machine
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusFailed    PaymentStatus = "FAILED"
	StatusExpired   PaymentStatus = "EXPIRED"
	StatusRefunded  PaymentStatus = "REFUNDED"
)

// ParseStatus converts a stored status string back to a PaymentStatus.
func ParseStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(s)); st {
	case StatusPending, StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending: {
		StatusCompleted,
		StatusFailed,
		StatusExpired,
	},
	StatusCompleted: {
		StatusRefunded,
	},
	StatusFailed:   {}, // Terminal state
	StatusExpired:  {}, // Terminal state
	StatusRefunded: {}, // Terminal state
}

// Payment is a monetary transaction for a single order.
type Payment struct {
	ID                   uuid.UUID
	OrderID              string
	UserID               string
	Amount               Amount
	PaymentMethod        string
	GatewayTransactionID string
	Status               PaymentStatus
	ExpiresAt            time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Version              int // Optimistic locking
}

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// NewPayment creates a pending payment for an order whose gateway transaction already exists.
func NewPayment(orderID, userID, paymentMethod, gatewayTransactionID string, amount Amount, expiresIn time.Duration) (*Payment, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.NewValidationError("orderId", "Order ID is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.NewValidationError("userId", "User ID is required")
	}
	if strings.TrimSpace(gatewayTransactionID) == "" {
		return nil, errors.NewValidationError("gatewayTransactionId", "cannot be empty")
	}
	if expiresIn <= 0 {
		expiresIn = ExpiryTimeout
	}

	now := time.Now().UTC()
	return &Payment{
		ID:                   uuid.New(),
		OrderID:              orderID,
		UserID:               userID,
		Amount:               amount,
		PaymentMethod:        paymentMethod,
		GatewayTransactionID: gatewayTransactionID,
		Status:               StatusPending,
		ExpiresAt:            now.Add(expiresIn),
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              0,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status
func (p *Payment) CanTransitionTo(newStatus PaymentStatus) bool {
	allowedTransitions, exists := transitions[p.Status]
	if !exists {
		return false
	}

	for _, allowed := range allowedTransitions {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the payment to newStatus and bumps its version.
// The repository persists the change only if the stored version is still Version-1.
func (p *Payment) TransitionTo(newStatus PaymentStatus) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	p.Status = newStatus
	p.UpdatedAt = time.Now().UTC()
	p.Version++
	return nil
}

// MarkCompleted transitions the payment to completed status
func (p *Payment) MarkCompleted() error {
	return p.TransitionTo(StatusCompleted)
}

// MarkFailed transitions the payment to failed status
func (p *Payment) MarkFailed() error {
	return p.TransitionTo(StatusFailed)
}

// MarkExpired transitions the payment to expired status
func (p *Payment) MarkExpired() error {
	return p.TransitionTo(StatusExpired)
}

// MarkRefunded transitions the payment to refunded status
func (p *Payment) MarkRefunded() error {
	return p.TransitionTo(StatusRefunded)
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return len(transitions[p.Status]) == 0
}

// IsExpired reports whether a pending payment is past its deadline at t.
func (p *Payment) IsExpired(t time.Time) bool {
	return p.Status == StatusPending && p.ExpiresAt.Before(t)
}

func validateAmount(amount Amount) error {
	if amount.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if strings.TrimSpace(amount.Currency) == "" {
		return errors.NewValidationError("currency", "Currency is required")
	}
	return nil
}
