package controller

import (
	"net/http"

	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/cassiomorais/orderpay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PaymentController handles payment lifecycle HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.paymentService.CreatePayment(r.Context(), req.toService())
	if err != nil {
		writeError(w, err)
		return
	}

	// A gateway rejection is a FAILED body, not an HTTP error.
	status := http.StatusOK
	if resp.Status == payment.StatusPending {
		status = http.StatusCreated
	}
	writeJSON(w, status, FromServiceResponse(resp))
}

// ConfirmPayment handles POST /api/v1/payments/confirm/{transactionId}
func (h *PaymentController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	resp, err := h.paymentService.ConfirmPayment(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromServiceResponse(resp))
}

// RefundPayment handles POST /api/v1/payments/{id}/refund
func (h *PaymentController) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.paymentService.RefundPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromServiceResponse(resp))
}

// GetPaymentStatus handles GET /api/v1/payments/{id}/status
func (h *PaymentController) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.paymentService.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromServiceResponse(resp))
}

// ListUserPayments handles GET /api/v1/users/{userId}/payments
func (h *PaymentController) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.paymentService.ListUserPayments(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromPayments(payments))
}

// ListSellerPayments handles GET /api/v1/sellers/{sellerId}/payments
func (h *PaymentController) ListSellerPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.paymentService.ListCompletedPaymentsForSeller(r.Context(), chi.URLParam(r, "sellerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromPayments(payments))
}

func paymentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return uuid.Nil, false
	}
	return id, true
}
