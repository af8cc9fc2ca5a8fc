package payment

import "time"

// EventStateChanged is the event type published after every committed transition.
const EventStateChanged = "payment.state.changed"

// StateChangedEvent describes a committed payment transition.
type StateChangedEvent struct {
	PaymentID   string        `json:"paymentId"`
	OrderID     string        `json:"orderId"`
	UserID      string        `json:"userId"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Version     int           `json:"version"`
	OccurredAt  time.Time     `json:"occurredAt"`
}

func NewStateChangedEvent(p *Payment) StateChangedEvent {
	return StateChangedEvent{
		PaymentID:   p.ID.String(),
		OrderID:     p.OrderID,
		UserID:      p.UserID,
		Status:      p.Status,
		AmountCents: p.Amount.ValueCents,
		Currency:    p.Amount.Currency,
		Version:     p.Version,
		OccurredAt:  p.UpdatedAt,
	}
}
