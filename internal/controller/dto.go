package controller

import (
	"time"

	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/cassiomorais/orderpay/internal/service"
)

// --- Request DTOs ---
// The amount is never taken from the caller; the service reads it from the order.

// CreatePaymentRequest holds the input for starting a payment.
type CreatePaymentRequest struct {
	OrderID         string `json:"orderId" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	Currency        string `json:"currency" validate:"required,max=3"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

func (r CreatePaymentRequest) toService() service.CreatePaymentRequest {
	return service.CreatePaymentRequest{
		OrderID:       r.OrderID,
		UserID:        r.UserID,
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethodID,
	}
}

// --- Response DTOs ---

// PaymentResponse is the result of a lifecycle operation.
type PaymentResponse struct {
	PaymentID            string     `json:"paymentId,omitempty"`
	GatewayTransactionID string     `json:"gatewayTransactionId,omitempty"`
	ClientSecret         string     `json:"clientSecret,omitempty"`
	Status               string     `json:"status"`
	Message              string     `json:"message"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
}

// PaymentView represents a stored payment in list responses.
type PaymentView struct {
	ID                   string    `json:"id"`
	OrderID              string    `json:"orderId"`
	UserID               string    `json:"userId"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	GatewayTransactionID string    `json:"gatewayTransactionId"`
	Status               string    `json:"paymentStatus"`
	ExpiresAt            time.Time `json:"expiresAt"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromServiceResponse converts a lifecycle result to its API form.
func FromServiceResponse(r *service.PaymentResponse) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:            r.PaymentID,
		GatewayTransactionID: r.GatewayTransactionID,
		ClientSecret:         r.ClientSecret,
		Status:               string(r.Status),
		Message:              r.Message,
		ExpiresAt:            r.ExpiresAt,
	}
}

// FromPayment converts a domain payment to its list view.
func FromPayment(p *payment.Payment) *PaymentView {
	return &PaymentView{
		ID:                   p.ID.String(),
		OrderID:              p.OrderID,
		UserID:               p.UserID,
		Amount:               p.Amount.ValueCents,
		Currency:             p.Amount.Currency,
		GatewayTransactionID: p.GatewayTransactionID,
		Status:               string(p.Status),
		ExpiresAt:            p.ExpiresAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func fromPayments(payments []*payment.Payment) []*PaymentView {
	views := make([]*PaymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, FromPayment(p))
	}
	return views
}
