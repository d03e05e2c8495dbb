package transactions

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const receiptWidth = 32

var receiptPrinter = message.NewPrinter(language.Indonesian)

// Receipt renders a plain text receipt for a stored sale.
func (s *Service) Receipt(ctx context.Context, id string) (string, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return RenderReceipt(s.cfg.StoreName, txn, s.cfg.Location), nil
}

// RenderReceipt formats txn for a 58mm thermal printer. Amounts use
// Indonesian digit grouping (1.500.000).
func RenderReceipt(storeName string, txn Transaction, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	rule := strings.Repeat("-", receiptWidth) + "\n"

	b.WriteString(center(storeName))
	b.WriteString(rule)
	b.WriteString("No    : " + txn.ID + "\n")
	b.WriteString("Tgl   : " + txn.Date.In(loc).Format("02/01/2006 15:04") + "\n")
	if txn.CustomerName != "" {
		b.WriteString("Plgn  : " + txn.CustomerName + "\n")
	}
	b.WriteString(rule)
	for _, item := range txn.Items {
		b.WriteString(item.Name + "\n")
		b.WriteString(pair(receiptPrinter.Sprintf("  %d x %d", item.Quantity, item.Price), amount(item.Subtotal)))
	}
	b.WriteString(rule)
	b.WriteString(pair("Subtotal", amount(txn.Subtotal)))
	if txn.Discount > 0 {
		b.WriteString(pair("Diskon", "-"+amount(txn.Discount)))
	}
	b.WriteString(pair("Total", amount(txn.Total)))
	switch txn.PaymentMethod {
	case PaymentCash:
		b.WriteString(pair("Tunai", amount(txn.CashReceived)))
		b.WriteString(pair("Kembali", amount(txn.Change)))
	case PaymentQRIS:
		b.WriteString(pair("QRIS", amount(txn.Total)))
	}
	if txn.Status == StatusCancelled {
		b.WriteString(center("*** DIBATALKAN ***"))
	}
	if txn.Note != "" {
		b.WriteString("Catatan: " + txn.Note + "\n")
	}
	b.WriteString(rule)
	b.WriteString(center("Terima kasih"))
	return b.String()
}

func amount(v int64) string {
	return receiptPrinter.Sprintf("%d", v)
}

// pair right-aligns value after label on one line.
func pair(label, value string) string {
	gap := receiptWidth - utf8.RuneCountInString(label) - utf8.RuneCountInString(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value + "\n"
}

func center(text string) string {
	pad := (receiptWidth - utf8.RuneCountInString(text)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + text + "\n"
}
