package sqlstore

import (
	"time"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
)

type counterRow struct {
	BusinessDate string `gorm:"primaryKey;size:8"`
	LastSeq      int    `gorm:"not null"`
}

func (counterRow) TableName() string { return "daily_counters" }

type transactionRow struct {
	ID            string    `gorm:"primaryKey;size:11"`
	Subtotal      int64     `gorm:"not null"`
	Discount      int64     `gorm:"not null;default:0"`
	Total         int64     `gorm:"not null"`
	Date          time.Time `gorm:"not null;index"`
	PaymentMethod string    `gorm:"size:16;not null"`
	CashReceived  int64     `gorm:"not null;default:0"`
	ChangeAmount  int64     `gorm:"not null;default:0"`
	CustomerName  string    `gorm:"size:120"`
	Note          string    `gorm:"size:500"`
	Status        string    `gorm:"size:16;not null;index"`
	CashierID     string    `gorm:"size:36"`
	CreatedAt     time.Time `gorm:"not null"`
	Items         []itemRow `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
}

func (transactionRow) TableName() string { return "transactions" }

type itemRow struct {
	ID            uint    `gorm:"primaryKey"`
	TransactionID string  `gorm:"size:11;not null;index"`
	LineNo        int     `gorm:"not null"`
	ProductID     *string `gorm:"size:36"`
	Name          string  `gorm:"size:200;not null"`
	Price         int64   `gorm:"not null"`
	Quantity      int64   `gorm:"not null"`
	Subtotal      int64   `gorm:"not null"`
}

func (itemRow) TableName() string { return "transaction_items" }

type idempotencyRow struct {
	IdemKey       string    `gorm:"primaryKey;size:128"`
	TransactionID string    `gorm:"size:11;not null;index"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (idempotencyRow) TableName() string { return "transaction_idempotency" }

type productRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:120;not null"`
	Price     int64  `gorm:"not null"`
	Category  string `gorm:"size:60;index"`
	Stock     *int64
	Image     string    `gorm:"size:2048"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (productRow) TableName() string { return "products" }

type userRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"size:64;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:100;not null"`
	FullName     string    `gorm:"size:120"`
	Role         string    `gorm:"size:16;not null"`
	Active       bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

func toTransactionRow(t transactions.Transaction) transactionRow {
	return transactionRow{
		ID:            t.ID,
		Subtotal:      t.Subtotal,
		Discount:      t.Discount,
		Total:         t.Total,
		Date:          t.Date.UTC(),
		PaymentMethod: string(t.PaymentMethod),
		CashReceived:  t.CashReceived,
		ChangeAmount:  t.Change,
		CustomerName:  t.CustomerName,
		Note:          t.Note,
		Status:        string(t.Status),
		CashierID:     t.CashierID,
		CreatedAt:     t.CreatedAt.UTC(),
	}
}

func (r transactionRow) domain() transactions.Transaction {
	items := make([]transactions.LineItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = transactions.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		}
	}
	return transactions.Transaction{
		ID:            r.ID,
		Items:         items,
		Subtotal:      r.Subtotal,
		Discount:      r.Discount,
		Total:         r.Total,
		Date:          r.Date.UTC(),
		PaymentMethod: transactions.PaymentMethod(r.PaymentMethod),
		CashReceived:  r.CashReceived,
		Change:        r.ChangeAmount,
		CustomerName:  r.CustomerName,
		Note:          r.Note,
		Status:        transactions.Status(r.Status),
		CashierID:     r.CashierID,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func toProductRow(p catalog.Product) productRow {
	return productRow{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Stock:     p.Stock,
		Image:     p.Image,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (r productRow) domain() catalog.Product {
	return catalog.Product{
		ID:        r.ID,
		Name:      r.Name,
		Price:     r.Price,
		Category:  r.Category,
		Stock:     r.Stock,
		Image:     r.Image,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toUserRow(u users.User) userRow {
	return userRow{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Role:         u.Role,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (r userRow) domain() users.User {
	return users.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		FullName:     r.FullName,
		Role:         r.Role,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
