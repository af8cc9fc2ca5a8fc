package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/redis/go-redis/v9"
)

const DefaultEventStream = "payments:events"

// StreamPublisher appends payment lifecycle events to a Redis stream.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher. maxLen caps the stream approximately; 0 leaves it unbounded.
func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultEventStream
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, event payment.StateChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"payment_id": event.PaymentID,
			"event_type": payment.EventStateChanged,
			"status":     string(event.Status),
			"payload":    string(payload),
			"timestamp":  event.OccurredAt.Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}
	return nil
}
