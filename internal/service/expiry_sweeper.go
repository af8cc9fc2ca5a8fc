package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/order"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/rs/zerolog"
)

const sweepLockKey = "payments:expiry-sweep"

// SweeperConfig controls how often the sweep runs and how much it does per run.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// DefaultSweeperConfig returns the default sweep configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  60 * time.Second,
		BatchSize: 100,
		LockTTL:   50 * time.Second,
	}
}

// ExpirySweeper expires pending payments past their deadline. It shares the
// store and facades with PaymentService but runs on its own timer.
type ExpirySweeper struct {
	payments payment.Repository
	orders   OrderService
	effects  *sideEffects
	recorder Recorder
	locker   Locker // nil runs unlocked
	cfg      SweeperConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewExpirySweeper creates a new ExpirySweeper. A nil locker runs every sweep unlocked.
func NewExpirySweeper(d Deps, locker Locker, cfg SweeperConfig) *ExpirySweeper {
	effects := newSideEffects(d)
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	return &ExpirySweeper{
		payments: d.Payments,
		orders:   d.Orders,
		effects:  effects,
		recorder: effects.recorder,
		locker:   locker,
		cfg:      cfg,
		logger:   d.Logger.With().Str("component", "expiry_sweeper").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.effects.wait()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("expiry sweeper started")
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("expiry sweep failed")
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every stale pending payment in one batch and returns how
// many were expired. A failure on one payment does not stop the others. The
// lease is renewed once half its ttl has passed; if it is lost the rest of the
// batch is left to the next holder.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()

	var lease Lease
	if s.locker != nil {
		l, acquired, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			s.logger.Debug().Msg("sweep already running on another instance")
			return 0, nil
		}
		lease = l
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("failed to release sweep lock")
			}
		}()
	}
	renewed := time.Now()

	stale, err := s.payments.ListExpired(ctx, payment.ExpiredFilter{
		Status: payment.StatusPending,
		Before: s.now(),
		Limit:  s.cfg.BatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list expired payments: %w", err)
	}

	expired := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			break
		}
		if lease != nil && time.Since(renewed) >= s.cfg.LockTTL/2 {
			if err := lease.Extend(ctx, s.cfg.LockTTL); err != nil {
				s.logger.Warn().Err(err).Msg("sweep lock lost, stopping batch")
				break
			}
			renewed = time.Now()
		}
		ok, err := s.expire(ctx, p)
		if err != nil {
			s.logger.Error().Err(err).
				Str("payment_id", p.ID.String()).
				Str("order_id", p.OrderID).
				Msg("failed to expire payment")
			continue
		}
		if ok {
			expired++
		}
	}

	s.recorder.RecordSweep(expired, time.Since(start))
	if len(stale) > 0 {
		s.logger.Info().Int("found", len(stale)).Int("expired", expired).Msg("expiry sweep finished")
	}
	return expired, nil
}

// expire commits EXPIRED before any side effect, so a payment confirmed
// concurrently is skipped without touching inventory.
func (s *ExpirySweeper) expire(ctx context.Context, p *payment.Payment) (bool, error) {
	if err := p.MarkExpired(); err != nil {
		return false, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		if errors.Is(err, domainErrors.ErrOptimisticLockFailed) {
			s.logger.Info().Str("payment_id", p.ID.String()).Msg("payment changed concurrently, not expiring")
			return false, nil
		}
		return false, fmt.Errorf("persist expiry: %w", err)
	}
	s.effects.publish(ctx, p)

	s.effects.compensate(ctx, p.OrderID)
	if err := s.orders.UpdateOrderStatus(ctx, p.OrderID, order.StatusExpired); err != nil {
		s.logger.Error().Err(err).Str("order_id", p.OrderID).Msg("failed to mark order expired")
	}
	s.effects.notify(ctx, s.effects.expired(p))
	s.recorder.RecordLifecycle("expire", "expired")
	return true, nil
}

// Wait blocks until notifications still being delivered are done.
func (s *ExpirySweeper) Wait() {
	s.effects.wait()
}
