package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

type txRepository struct {
	tx pgx.Tx
}

// NextSequence increments and returns the counter in one statement. The
// row stays locked until commit or rollback; a rollback restores it.
func (r *txRepository) NextSequence(ctx context.Context, businessDate string) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO daily_counters (business_date, last_seq) VALUES ($1, 1)
ON CONFLICT (business_date) DO UPDATE SET last_seq = daily_counters.last_seq + 1
RETURNING last_seq`, businessDate).Scan(&seq)
	return seq, err
}

func (r *txRepository) FindIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := r.tx.QueryRow(ctx, `SELECT transaction_id FROM transaction_idempotency WHERE idem_key = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r *txRepository) SaveIdempotencyKey(ctx context.Context, key, transactionID string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transaction_idempotency (idem_key, transaction_id) VALUES ($1, $2)`, key, transactionID)
	if isUniqueViolation(err) {
		return transactions.ErrDuplicateIdempotencyKey
	}
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t transactions.Transaction) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transactions
(id, subtotal, discount, total, date, payment_method, cash_received, change_amount, customer_name, note, status, cashier_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.Subtotal, t.Discount, t.Total, t.Date, string(t.PaymentMethod), t.CashReceived, t.Change,
		t.CustomerName, t.Note, string(t.Status), t.CashierID, t.CreatedAt)
	return err
}

// InsertItems streams all lines with COPY so large baskets cost one round
// trip.
func (r *txRepository) InsertItems(ctx context.Context, transactionID string, items []transactions.LineItem) error {
	_, err := r.tx.CopyFrom(ctx,
		pgx.Identifier{"transaction_items"},
		[]string{"transaction_id", "line_no", "product_id", "name", "price", "quantity", "subtotal"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			item := items[i]
			return []any{transactionID, i + 1, item.ProductID, item.Name, item.Price, item.Quantity, item.Subtotal}, nil
		}))
	return err
}

func (r *txRepository) DecrementStock(ctx context.Context, productID string, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock IS NOT NULL AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var stock *int64
	err = r.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return catalog.ErrNotFound
	case err != nil:
		return err
	case stock == nil:
		return nil
	default:
		return catalog.ErrInsufficientStock
	}
}
