package sqlstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

// itemBatchSize keeps multi-row inserts under placeholder limits.
const itemBatchSize = 100

type txRepository struct {
	tx *gorm.DB
}

func (r *txRepository) NextSequence(ctx context.Context, businessDate string) (int, error) {
	db := r.tx.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_date"}},
		DoUpdates: clause.Assignments(map[string]any{"last_seq": gorm.Expr("last_seq + 1")}),
	}).Create(&counterRow{BusinessDate: businessDate, LastSeq: 1}).Error
	if err != nil {
		return 0, err
	}
	var row counterRow
	if err := db.Where("business_date = ?", businessDate).Take(&row).Error; err != nil {
		return 0, err
	}
	return row.LastSeq, nil
}

func (r *txRepository) FindIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	var row idempotencyRow
	err := r.tx.WithContext(ctx).Where("idem_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.TransactionID, true, nil
}

func (r *txRepository) SaveIdempotencyKey(ctx context.Context, key, transactionID string) error {
	err := r.tx.WithContext(ctx).Create(&idempotencyRow{IdemKey: key, TransactionID: transactionID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return transactions.ErrDuplicateIdempotencyKey
	}
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t transactions.Transaction) error {
	row := toTransactionRow(t)
	return r.tx.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
}

func (r *txRepository) InsertItems(ctx context.Context, transactionID string, items []transactions.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]itemRow, len(items))
	for i, item := range items {
		rows[i] = itemRow{
			TransactionID: transactionID,
			LineNo:        i + 1,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         item.Price,
			Quantity:      item.Quantity,
			Subtotal:      item.Subtotal,
		}
	}
	return r.tx.WithContext(ctx).CreateInBatches(rows, itemBatchSize).Error
}

func (r *txRepository) DecrementStock(ctx context.Context, productID string, qty int64) error {
	db := r.tx.WithContext(ctx)
	res := db.Model(&productRow{}).
		Where("id = ? AND stock IS NOT NULL AND stock >= ?", productID, qty).
		Updates(map[string]any{"stock": gorm.Expr("stock - ?", qty), "updated_at": db.NowFunc()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var p productRow
	err := db.Where("id = ?", productID).Take(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return catalog.ErrNotFound
	case err != nil:
		return err
	case p.Stock == nil:
		return nil
	default:
		return catalog.ErrInsufficientStock
	}
}
