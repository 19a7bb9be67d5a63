package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

type paymentAttemptRepository struct {
	db *sql.DB
}

// NewPaymentAttemptRepository создаёт PostgreSQL-реализацию PaymentAttemptRepository.
func NewPaymentAttemptRepository(store *Store) domain.PaymentAttemptRepository {
	return &paymentAttemptRepository{db: store.DB()}
}

func (r *paymentAttemptRepository) Create(ctx context.Context, attempt domain.PaymentAttempt) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (
			id, order_id, order_number, amount_minor, currency, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		attempt.ID, attempt.OrderID, attempt.OrderNumber, attempt.AmountMinor,
		string(attempt.Currency), string(attempt.Status), attempt.CreatedAt, attempt.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment attempt %s already exists: %w", attempt.ID, err)
		}
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (r *paymentAttemptRepository) MarkStatus(ctx context.Context, id string, status domain.PaymentAttemptStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_attempts
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark payment attempt as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for payment attempt: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentAttemptNotFound
	}
	return nil
}

func (r *paymentAttemptRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentAttempt, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, order_number, amount_minor, currency, status, created_at, updated_at
		FROM payment_attempts
		WHERE status = 'started' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payment attempts: %w", err)
	}
	defer rows.Close()

	result := make([]domain.PaymentAttempt, 0)
	for rows.Next() {
		var (
			attempt  domain.PaymentAttempt
			currency string
			status   string
		)
		if err := rows.Scan(
			&attempt.ID, &attempt.OrderID, &attempt.OrderNumber, &attempt.AmountMinor,
			&currency, &status, &attempt.CreatedAt, &attempt.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		attempt.Currency = domain.Currency(currency)
		attempt.Status = domain.PaymentAttemptStatus(status)
		attempt.CreatedAt = attempt.CreatedAt.UTC()
		attempt.UpdatedAt = attempt.UpdatedAt.UTC()
		result = append(result, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment attempts: %w", err)
	}
	return result, nil
}

var _ domain.PaymentAttemptRepository = (*paymentAttemptRepository)(nil)
