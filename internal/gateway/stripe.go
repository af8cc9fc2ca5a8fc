package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway maps the gateway facade onto Stripe PaymentIntents.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{api: sc}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateTransaction(ctx context.Context, req CreateRequest) (*Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.PaymentMethod),
		ConfirmationMethod: stripe.String(string(stripe.PaymentIntentConfirmationMethodManual)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, toGatewayError("create", err)
	}
	return &Result{
		TransactionID: pi.ID,
		ClientSecret:  pi.ClientSecret,
		Status:        string(pi.Status),
	}, nil
}

func (g *StripeGateway) Confirm(ctx context.Context, transactionID string) (*Result, error) {
	get := &stripe.PaymentIntentParams{}
	get.Context = ctx
	get.AddExpand("latest_charge")
	pi, err := g.api.PaymentIntents.Get(transactionID, get)
	if err != nil {
		return nil, toGatewayError("confirm", err)
	}
	if pi.LatestCharge != nil && pi.LatestCharge.Refunded {
		return nil, domainErrors.NewGatewayError("confirm",
			fmt.Sprintf("payment intent %s has been refunded", pi.ID), nil)
	}

	if pi.Status == stripe.PaymentIntentStatusRequiresConfirmation {
		confirm := &stripe.PaymentIntentConfirmParams{}
		confirm.Context = ctx
		confirm.SetIdempotencyKey("confirm_" + transactionID)
		pi, err = g.api.PaymentIntents.Confirm(transactionID, confirm)
		if err != nil {
			return nil, toGatewayError("confirm", err)
		}
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return &Result{TransactionID: pi.ID, Status: string(pi.Status)}, nil
	}
	return nil, domainErrors.NewGatewayError("confirm",
		fmt.Sprintf("payment intent %s is %s", pi.ID, pi.Status), nil)
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, toGatewayError("refund", err)
	}
	return &Result{
		TransactionID: req.TransactionID,
		RefundID:      r.ID,
		Status:        string(r.Status),
	}, nil
}

// toGatewayError keeps Stripe's message. Server-side and transport failures
// are marked unavailable so they count against the circuit breaker.
func toGatewayError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = err.Error()
		}
		if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == 429 {
			return domainErrors.NewGatewayError(op, msg, domainErrors.ErrGatewayUnavailable)
		}
		return domainErrors.NewGatewayError(op, msg, nil)
	}
	return domainErrors.NewGatewayError(op, err.Error(), domainErrors.ErrGatewayUnavailable)
}
