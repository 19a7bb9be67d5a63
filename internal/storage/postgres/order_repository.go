package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

const (
	uniqueViolationCode = "23505"

	constraintOrderNumber = "orders_order_number_key"
	constraintUserRental  = "orders_user_rental_key"

	orderColumns = `id, order_number, user_id, rental_id, amount_minor, currency, status, created_at, updated_at`
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) FindByOwnerAndRental(ctx context.Context, userID, rentalID int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND rental_id = $2
	`, userID, rentalID)
	return scanOrder(row)
}

func (r *orderRepository) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_number = $1
	`, number)
	return scanOrder(row)
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, order.Number, order.UserID, order.RentalID, order.AmountMinor,
		string(order.Currency), string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if conflict := orderConflict(err); conflict != nil {
			return domain.Order{}, conflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+orderColumns,
		order.ID, string(order.Status), order.UpdatedAt,
	)
	updated, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	return updated, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		query strings.Builder
		args  = []any{filter.UserID}
	)
	query.WriteString(`SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`)
	if status, ok := filter.Status.Get(); ok {
		args = append(args, string(status))
		query.WriteString(` AND status = $2`)
	}
	query.WriteString(` ORDER BY created_at DESC, id DESC`)

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		currency string
		status   string
	)
	err := row.Scan(
		&order.ID, &order.Number, &order.UserID, &order.RentalID, &order.AmountMinor,
		&currency, &status, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Currency = domain.Currency(currency)
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// orderConflict переводит нарушение уникальности в доменную ошибку по имени ограничения.
func orderConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintOrderNumber:
		return domain.ErrOrderNumberConflict
	default:
		// orders_user_rental_key и первичный ключ.
		return domain.ErrDuplicateOrder
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
