package testutil

import (
	"time"

	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/google/uuid"
)

func NewTestOrder(orderID, userID, productID string, totalCents int64) *order.Order {
	return &order.Order{
		ID:          orderID,
		UserID:      userID,
		TotalAmount: totalCents,
		Status:      order.StatusPending,
		Item: &order.Item{
			ProductID:   productID,
			ProductName: "Hand-thrown vase",
			SellerID:    "seller-1",
			Quantity:    1,
			Price:       totalCents,
			Subtotal:    totalCents,
		},
	}
}

func NewTestPayment(orderID, userID string, amountCents int64, currency string) *payment.Payment {
	now := time.Now().UTC()
	return &payment.Payment{
		ID:                   uuid.New(),
		OrderID:              orderID,
		UserID:               userID,
		Amount:               payment.Amount{ValueCents: amountCents, Currency: currency},
		PaymentMethod:        "pm_card_visa",
		GatewayTransactionID: "txn_" + orderID,
		Status:               payment.StatusPending,
		ExpiresAt:            now.Add(payment.ExpiryTimeout),
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              0,
	}
}

func NewCompletedPayment(orderID, userID string, amountCents int64, currency string) *payment.Payment {
	p := NewTestPayment(orderID, userID, amountCents, currency)
	p.Status = payment.StatusCompleted
	p.Version = 1
	return p
}

// NewExpiredPendingPayment returns a pending payment whose deadline passed `ago` ago.
func NewExpiredPendingPayment(orderID, userID string, ago time.Duration) *payment.Payment {
	p := NewTestPayment(orderID, userID, 1999, "USD")
	p.CreatedAt = time.Now().UTC().Add(-payment.ExpiryTimeout - ago)
	p.UpdatedAt = p.CreatedAt
	p.ExpiresAt = p.CreatedAt.Add(payment.ExpiryTimeout)
	return p
}
