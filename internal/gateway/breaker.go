package gateway

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Observer receives call timings and circuit breaker state changes.
type Observer interface {
	ObserveGatewayCall(op string, d time.Duration, err error)
	SetCircuitState(name string, state float64)
}

// BreakerSettings configures the circuit breaker and the per-call timeout.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
	CallTimeout  time.Duration
}

// DefaultBreakerSettings returns the default breaker settings.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  10,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
		CallTimeout:  10 * time.Second,
	}
}

// Breaker decorates a Gateway with a circuit breaker and a per-call timeout.
// Declines reported by the gateway do not count as breaker failures; only
// unavailability does.
type Breaker struct {
	next        Gateway
	cb          *gobreaker.CircuitBreaker[*Result]
	callTimeout time.Duration
	observer    Observer
}

// NewBreaker creates a new Breaker around next. observer may be nil.
func NewBreaker(next Gateway, s BreakerSettings, observer Observer) *Breaker {
	b := &Breaker{
		next:        next,
		callTimeout: s.CallTimeout,
		observer:    observer,
	}
	b.cb = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isUnavailable(err)
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			if observer != nil {
				observer.SetCircuitState(name, float64(to))
			}
		},
	})
	return b
}

func (b *Breaker) Name() string { return b.next.Name() }

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) CreateTransaction(ctx context.Context, req CreateRequest) (*Result, error) {
	return b.call(ctx, "create", func(ctx context.Context) (*Result, error) {
		return b.next.CreateTransaction(ctx, req)
	})
}

func (b *Breaker) Confirm(ctx context.Context, transactionID string) (*Result, error) {
	return b.call(ctx, "confirm", func(ctx context.Context) (*Result, error) {
		return b.next.Confirm(ctx, transactionID)
	})
}

func (b *Breaker) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	return b.call(ctx, "refund", func(ctx context.Context) (*Result, error) {
		return b.next.Refund(ctx, req)
	})
}

func (b *Breaker) call(ctx context.Context, op string, fn func(context.Context) (*Result, error)) (*Result, error) {
	start := time.Now()
	result, err := b.cb.Execute(func() (*Result, error) {
		callCtx := ctx
		if b.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	err = normalize(op, err)
	if b.observer != nil {
		b.observer.ObserveGatewayCall(op, time.Since(start), err)
	}
	return result, err
}

// normalize guarantees every failure leaving the decorator is a GatewayError.
func normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domainErrors.NewGatewayError(op, "payment gateway temporarily unavailable", domainErrors.ErrGatewayUnavailable)
	}
	var ge *domainErrors.GatewayError
	if errors.As(err, &ge) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domainErrors.NewGatewayError(op, "payment gateway request timed out", domainErrors.ErrGatewayUnavailable)
	}
	return domainErrors.NewGatewayError(op, err.Error(), domainErrors.ErrGatewayUnavailable)
}

func isUnavailable(err error) bool {
	var ge *domainErrors.GatewayError
	if errors.As(err, &ge) {
		return errors.Is(err, domainErrors.ErrGatewayUnavailable) || errors.Is(err, context.DeadlineExceeded)
	}
	return true
}
