package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const paymentColumns = `id, order_id, user_id, amount, currency, payment_method,
	gateway_transaction_id, status, expires_at, created_at, updated_at, version`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool, tx: NewTxManager(pool)}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment. A second payment for the same gateway
// transaction fails with ErrDuplicateTransaction.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.OrderID, p.UserID, centsToNumericString(p.Amount.ValueCents), p.Amount.Currency, p.PaymentMethod,
		p.GatewayTransactionID, string(p.Status), p.ExpiresAt, p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByGatewayTransactionID retrieves the payment behind a gateway transaction.
func (r *PaymentRepository) GetByGatewayTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_transaction_id = $1`, transactionID))
}

// ListByUserID lists a user's payments, newest first.
func (r *PaymentRepository) ListByUserID(ctx context.Context, userID string) ([]*payment.Payment, error) {
	return r.list(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListByOrderID lists the payments attempted for an order, newest first.
func (r *PaymentRepository) ListByOrderID(ctx context.Context, orderID string) ([]*payment.Payment, error) {
	return r.list(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
}

// ListExpired returns payments in the given status whose deadline passed,
// oldest deadline first.
func (r *PaymentRepository) ListExpired(ctx context.Context, f payment.ExpiredFilter) ([]*payment.Payment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = $1 AND expires_at < $2
		 ORDER BY expires_at ASC
		 LIMIT $3`,
		string(f.Status), f.Before, limit)
}

// Update persists a transition with optimistic locking: the row is only
// written when its stored version is p.Version-1. A miss is told apart from a
// conflict inside the same transaction.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.db(ctx).Exec(ctx,
			`UPDATE payments SET status = $1, updated_at = $2, version = $3
			 WHERE id = $4 AND version = $5`,
			string(p.Status), p.UpdatedAt, p.Version, p.ID, p.Version-1,
		)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := r.db(ctx).QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, p.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check payment: %w", err)
			}
			if !exists {
				return domainErrors.ErrPaymentNotFound
			}
			return domainErrors.ErrOptimisticLockFailed
		}
		return nil
	})
}

// --- scanning helpers ---

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]*payment.Payment, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []*payment.Payment{}
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		amountStr string
		status    string
	)
	err := s.Scan(
		&p.ID, &p.OrderID, &p.UserID, &amountStr, &p.Amount.Currency, &p.PaymentMethod,
		&p.GatewayTransactionID, &status, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	cents, err := numericStringToCents(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount.ValueCents = cents

	p.Status, err = payment.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
