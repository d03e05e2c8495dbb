package transactions

import (
	"time"

	"github.com/Gazel/SecureKasir/internal/sequence"
)

// PaymentMethod labels how a sale was settled.
type PaymentMethod string

// Payment methods.
const (
	PaymentCash      PaymentMethod = "cash"
	PaymentQRIS      PaymentMethod = "qris"
	PaymentCancelled PaymentMethod = "cancelled"
)

// Status of a recorded sale.
type Status string

// Transaction statuses.
const (
	StatusSuccess   Status = "SUCCESS"
	StatusCancelled Status = "CANCELLED"
)

// LineItem is one product row of a sale. Name and Price are copied from the
// catalog at sale time so receipts stay accurate after catalog edits.
type LineItem struct {
	ProductID *string `json:"productId"`
	Name      string  `json:"name"`
	Price     int64   `json:"price"`
	Quantity  int64   `json:"quantity"`
	Subtotal  int64   `json:"subtotal"`
}

// Transaction is a sale header with its owned line items. Money fields are
// in the smallest currency unit.
type Transaction struct {
	ID            string        `json:"id"`
	Items         []LineItem    `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	Discount      int64         `json:"discount"`
	Total         int64         `json:"total"`
	Date          time.Time     `json:"date"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	CashReceived  int64         `json:"cashReceived"`
	Change        int64         `json:"change"`
	CustomerName  string        `json:"customerName,omitempty"`
	Note          string        `json:"note,omitempty"`
	Status        Status        `json:"status"`
	CashierID     string        `json:"cashierId,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// BusinessDate returns the YYYYMMDD key embedded in the id.
func (t Transaction) BusinessDate() string {
	date, _, err := sequence.ParseID(t.ID)
	if err != nil {
		return ""
	}
	return date
}

// ListFilter scopes a history query. Zero times leave that side open.
type ListFilter struct {
	From   time.Time
	To     time.Time
	Status Status
	Limit  int
}

// Matches reports whether t falls inside the filter.
func (f ListFilter) Matches(t Transaction) bool {
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// Less orders newest first: by date, then by id for equal dates.
func Less(a, b Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.ID > b.ID
}
