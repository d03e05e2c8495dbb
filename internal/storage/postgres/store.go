// Package postgres is the production storage backend. The daily counter
// upsert takes a row lock that serialises concurrent checkouts for the same
// business date until their transaction ends.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gazel/SecureKasir/internal/platform/db"
	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Store implements the POS repositories on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside one READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// WithCounter runs fn inside one transaction exposing only the counter.
func (s *Store) WithCounter(ctx context.Context, fn func(context.Context, sequence.Counter) error) error {
	return s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		return fn(ctx, tx)
	})
}

// CounterValue reports the last sequence for a business date.
func (s *Store) CounterValue(ctx context.Context, businessDate string) (int, error) {
	var seq int
	err := s.pool.QueryRow(ctx, `SELECT last_seq FROM daily_counters WHERE business_date = $1`, businessDate).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

const selectTransaction = `SELECT id, subtotal, discount, total, date, payment_method, cash_received,
change_amount, customer_name, note, status, cashier_id, created_at FROM transactions`

// readSnapshot runs fn in a read-only REPEATABLE READ transaction so the
// header and item queries see the same committed state.
func (s *Store) readSnapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres store not initialised")
	}
	return db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

// ListTransactions returns headers matching filter with their items.
func (s *Store) ListTransactions(ctx context.Context, filter transactions.ListFilter) ([]transactions.Transaction, error) {
	var txns []transactions.Transaction
	err := s.readSnapshot(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectTransaction+`
WHERE ($1::timestamptz IS NULL OR date >= $1)
  AND ($2::timestamptz IS NULL OR date <= $2)
  AND ($3 = '' OR status = $3)
ORDER BY date DESC, id DESC
LIMIT NULLIF($4, 0)`, nullTime(filter.From), nullTime(filter.To), string(filter.Status), filter.Limit)
		if err != nil {
			return err
		}
		txns, err = pgx.CollectRows(rows, scanTransaction)
		if err != nil || len(txns) == 0 {
			return err
		}

		ids := make([]string, len(txns))
		index := make(map[string]int, len(txns))
		for i, t := range txns {
			ids[i] = t.ID
			index[t.ID] = i
			txns[i].Items = []transactions.LineItem{}
		}
		itemRows, err := tx.Query(ctx, `SELECT transaction_id, product_id, name, price, quantity, subtotal
FROM transaction_items WHERE transaction_id = ANY($1) ORDER BY transaction_id, line_no`, ids)
		if err != nil {
			return err
		}
		defer itemRows.Close()
		for itemRows.Next() {
			var txnID string
			var item transactions.LineItem
			if err := itemRows.Scan(&txnID, &item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Subtotal); err != nil {
				return err
			}
			i := index[txnID]
			txns[i].Items = append(txns[i].Items, item)
		}
		return itemRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// GetTransaction returns one transaction with items.
func (s *Store) GetTransaction(ctx context.Context, id string) (transactions.Transaction, error) {
	var txn transactions.Transaction
	err := s.readSnapshot(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectTransaction+` WHERE id = $1`, id)
		if err != nil {
			return err
		}
		txn, err = pgx.CollectExactlyOneRow(rows, scanTransaction)
		if errors.Is(err, pgx.ErrNoRows) {
			return transactions.ErrNotFound
		}
		if err != nil {
			return err
		}
		itemRows, err := tx.Query(ctx, `SELECT product_id, name, price, quantity, subtotal
FROM transaction_items WHERE transaction_id = $1 ORDER BY line_no`, id)
		if err != nil {
			return err
		}
		txn.Items, err = pgx.CollectRows(itemRows, func(row pgx.CollectableRow) (transactions.LineItem, error) {
			var item transactions.LineItem
			err := row.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Subtotal)
			return item, err
		})
		return err
	})
	if err != nil {
		return transactions.Transaction{}, err
	}
	return txn, nil
}

// UpdateTransactionStatus sets the status of a stored sale.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status transactions.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return transactions.ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a sale; items and idempotency keys cascade.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return transactions.ErrNotFound
	}
	return nil
}

func scanTransaction(row pgx.CollectableRow) (transactions.Transaction, error) {
	var t transactions.Transaction
	var method, status string
	err := row.Scan(&t.ID, &t.Subtotal, &t.Discount, &t.Total, &t.Date, &method, &t.CashReceived,
		&t.Change, &t.CustomerName, &t.Note, &status, &t.CashierID, &t.CreatedAt)
	t.PaymentMethod = transactions.PaymentMethod(method)
	t.Status = transactions.Status(status)
	t.Date = t.Date.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
