// Package sqlstore is the gorm backend for SQLite and MySQL deployments.
// SQLite runs on a single connection so every unit is serialised; MySQL
// relies on the row lock taken by the counter upsert.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

// Store implements the POS repositories on gorm.
type Store struct {
	db *gorm.DB
}

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&counterRow{},
		&transactionRow{},
		&itemRow{},
		&idempotencyRow{},
		&productRow{},
		&userRow{},
	)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn as one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	if s == nil || s.db == nil {
		return errors.New("sql store not initialised")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// WithCounter runs fn as one database transaction exposing the counter.
func (s *Store) WithCounter(ctx context.Context, fn func(context.Context, sequence.Counter) error) error {
	return s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		return fn(ctx, tx)
	})
}

// CounterValue reports the last sequence for a business date.
func (s *Store) CounterValue(ctx context.Context, businessDate string) (int, error) {
	var row counterRow
	err := s.db.WithContext(ctx).Where("business_date = ?", businessDate).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return row.LastSeq, err
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("line_no")
}

// readSnapshot runs the header and preload queries in one transaction.
// MySQL gets a read-only REPEATABLE READ snapshot; the sqlite driver only
// accepts default options and is serialised on one connection anyway.
func (s *Store) readSnapshot(ctx context.Context, fn func(*gorm.DB) error) error {
	var opts []*sql.TxOptions
	if s.db.Dialector.Name() == "mysql" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.db.WithContext(ctx).Transaction(fn, opts...)
}

// ListTransactions returns headers matching filter with their items.
func (s *Store) ListTransactions(ctx context.Context, filter transactions.ListFilter) ([]transactions.Transaction, error) {
	var rows []transactionRow
	err := s.readSnapshot(ctx, func(tx *gorm.DB) error {
		return filterTransactions(tx, filter).Order("date DESC").Order("id DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]transactions.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func filterTransactions(db *gorm.DB, filter transactions.ListFilter) *gorm.DB {
	q := db.Model(&transactionRow{}).Preload("Items", orderedItems)
	if !filter.From.IsZero() {
		q = q.Where("date >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("date <= ?", filter.To.UTC())
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return q
}

// GetTransaction returns one transaction with items.
func (s *Store) GetTransaction(ctx context.Context, id string) (transactions.Transaction, error) {
	var row transactionRow
	err := s.readSnapshot(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Items", orderedItems).Where("id = ?", id).Take(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return transactions.Transaction{}, transactions.ErrNotFound
	}
	if err != nil {
		return transactions.Transaction{}, err
	}
	return row.domain(), nil
}

// UpdateTransactionStatus sets the status of a stored sale.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status transactions.Status) error {
	res := s.db.WithContext(ctx).Model(&transactionRow{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return transactions.ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a sale, its items and bound keys. SQLite does
// not enforce foreign keys by default, so children are deleted explicitly.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transaction_id = ?", id).Delete(&itemRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("transaction_id = ?", id).Delete(&idempotencyRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&transactionRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return transactions.ErrNotFound
		}
		return nil
	})
}
