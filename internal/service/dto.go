package service

import (
	"time"

	"github.com/cassiomorais/orderpay/internal/domain/payment"
)

// Controllers convert their HTTP DTOs to this type. The amount always comes from the order.
type CreatePaymentRequest struct {
	OrderID       string
	UserID        string
	Currency      string
	PaymentMethod string
}

// PaymentResponse is the uniform result of every lifecycle operation.
// Gateway failures are reported here with StatusFailed rather than as errors.
type PaymentResponse struct {
	PaymentID            string
	GatewayTransactionID string
	ClientSecret         string
	Status               payment.PaymentStatus
	Message              string
	ExpiresAt            *time.Time
}

func newResponse(p *payment.Payment, message string) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:            p.ID.String(),
		GatewayTransactionID: p.GatewayTransactionID,
		Status:               p.Status,
		Message:              message,
	}
}

func failedResponse(paymentID, message string) *PaymentResponse {
	return &PaymentResponse{
		PaymentID: paymentID,
		Status:    payment.StatusFailed,
		Message:   message,
	}
}
