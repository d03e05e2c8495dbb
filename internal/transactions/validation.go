package transactions

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/Gazel/SecureKasir/internal/shared"
)

// Mismatch records a client supplied amount that was replaced.
type Mismatch struct {
	Field    string
	Client   int64
	Computed int64
}

// ValidateCreateRequest checks a checkout payload and returns the header the
// server will store, amounts recomputed from price and quantity. now is used
// when the payload has no date.
func ValidateCreateRequest(req CreateRequest, now time.Time) (Transaction, []Mismatch, error) {
	if len(req.Items) == 0 {
		return Transaction{}, nil, ErrEmptyItems
	}
	if req.Total == nil {
		return Transaction{}, nil, ErrMissingTotal
	}
	if err := shared.ValidateStruct(req); err != nil {
		var ve *shared.ValidationError
		if errors.As(err, &ve) {
			return Transaction{}, nil, invalid(ve.Reason)
		}
		return Transaction{}, nil, invalid(err.Error())
	}

	date := now
	if raw := strings.TrimSpace(req.Date); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Transaction{}, nil, ErrInvalidDate.withDetail("%q", raw)
		}
		date = parsed
	}

	var diffs []Mismatch
	items := make([]LineItem, len(req.Items))
	var subtotal int64
	for i, in := range req.Items {
		if in.Price != 0 && in.Quantity > math.MaxInt64/in.Price {
			return Transaction{}, nil, ErrAmountOverflow.withDetail("items[%d].subtotal", i)
		}
		lineTotal := in.Price * in.Quantity
		if subtotal > math.MaxInt64-lineTotal {
			return Transaction{}, nil, ErrAmountOverflow.withDetail("subtotal")
		}
		if in.Subtotal != 0 && in.Subtotal != lineTotal {
			diffs = append(diffs, Mismatch{Field: "items.subtotal", Client: in.Subtotal, Computed: lineTotal})
		}
		items[i] = LineItem{
			ProductID: normalizeProductID(in.ProductID),
			Name:      strings.TrimSpace(in.Name),
			Price:     in.Price,
			Quantity:  in.Quantity,
			Subtotal:  lineTotal,
		}
		subtotal += lineTotal
	}
	if req.Subtotal != subtotal {
		diffs = append(diffs, Mismatch{Field: "subtotal", Client: req.Subtotal, Computed: subtotal})
	}

	total := subtotal - req.Discount
	if total < 0 {
		total = 0
	}
	if *req.Total != total {
		diffs = append(diffs, Mismatch{Field: "total", Client: *req.Total, Computed: total})
	}

	status := req.Status
	if status == "" {
		status = StatusSuccess
		if req.PaymentMethod == PaymentCancelled {
			status = StatusCancelled
		}
	}

	var change int64
	if req.PaymentMethod == PaymentCash {
		if status == StatusSuccess && req.CashReceived < total {
			return Transaction{}, nil, ErrInsufficientCash
		}
		change = max(req.CashReceived-total, 0)
	}
	if req.Change != change {
		diffs = append(diffs, Mismatch{Field: "change", Client: req.Change, Computed: change})
	}

	return Transaction{
		Items:         items,
		Subtotal:      subtotal,
		Discount:      req.Discount,
		Total:         total,
		Date:          date,
		PaymentMethod: req.PaymentMethod,
		CashReceived:  req.CashReceived,
		Change:        change,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Note:          strings.TrimSpace(req.Note),
		Status:        status,
	}, diffs, nil
}

func normalizeProductID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ValidateIdempotencyKey accepts an empty key (no deduplication) or 1-128
// printable characters.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if len(key) > 128 {
		return ErrIdempotencyKeySize
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			return ErrIdempotencyKeySize.withDetail("non printable character")
		}
	}
	return nil
}
