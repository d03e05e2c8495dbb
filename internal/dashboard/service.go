// Package dashboard summarises recorded sales over a date range.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gazel/SecureKasir/internal/shared"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

// Range names accepted by Summary.
const (
	RangeAll    = "all"
	RangeToday  = "today"
	RangeWeek   = "week"
	RangeMonth  = "month"
	RangeCustom = "custom"
)

const (
	dayLayout    = "2006-01-02"
	recentLimit  = 5
	productLimit = 10
)

// TransactionLister reads stored sales.
type TransactionLister interface {
	List(ctx context.Context, filter transactions.ListFilter) ([]transactions.Transaction, error)
}

// Query selects the summary range. Start and End are YYYY-MM-DD in the
// business time zone and only apply to RangeCustom.
type Query struct {
	Range string
	Start string
	End   string
}

// ProductSales aggregates one product across the range.
type ProductSales struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Quantity int64  `json:"quantity"`
}

// Summary is the dashboard payload.
type Summary struct {
	Range                string                     `json:"range"`
	From                 *time.Time                 `json:"from,omitempty"`
	To                   *time.Time                 `json:"to,omitempty"`
	TotalSales           int64                      `json:"totalSales"`
	TotalTransactions    int                        `json:"totalTransactions"`
	TodaySales           int64                      `json:"todaySales"`
	TodayTransactions    int                        `json:"todayTransactions"`
	SalesByProductAmount []ProductSales             `json:"salesByProductAmount"`
	SalesByProductQty    []ProductSales             `json:"salesByProductQty"`
	RecentTransactions   []transactions.Transaction `json:"recentTransactions"`
}

// Service computes summaries, caching them in redis when available.
type Service struct {
	lister TransactionLister
	cache  *Cache
	loc    *time.Location
	clock  func() time.Time
}

// NewService wires the lister with an optional cache.
func NewService(lister TransactionLister, cache *Cache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{lister: lister, cache: cache, loc: loc, clock: time.Now}
}

// WithClock overrides the clock; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Bump invalidates cached summaries.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Summary returns the dashboard for q.
func (s *Service) Summary(ctx context.Context, q Query) (Summary, error) {
	now := s.clock().In(s.loc)
	name, from, to, err := s.resolve(q, now)
	if err != nil {
		return Summary{}, err
	}
	today := startOfDay(now)
	parts := []string{name, dayToken(from), dayToken(to), today.Format(dayLayout)}
	return s.cache.Summary(ctx, parts, func(ctx context.Context) (Summary, error) {
		return s.compute(ctx, name, from, to, today)
	})
}

func (s *Service) compute(ctx context.Context, name string, from, to, today time.Time) (Summary, error) {
	txns, err := s.lister.List(ctx, transactions.ListFilter{From: from, To: to, Status: transactions.StatusSuccess})
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: list transactions: %w", err)
	}
	todays, err := s.lister.List(ctx, transactions.ListFilter{
		From:   today,
		To:     endOfDay(today),
		Status: transactions.StatusSuccess,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: list today: %w", err)
	}

	out := Summary{Range: name, TotalTransactions: len(txns), TodayTransactions: len(todays)}
	if !from.IsZero() {
		f := from
		out.From = &f
	}
	if !to.IsZero() {
		t := to
		out.To = &t
	}
	byProduct := make(map[string]*ProductSales)
	for _, txn := range txns {
		out.TotalSales += txn.Total
		for _, item := range txn.Items {
			p, ok := byProduct[item.Name]
			if !ok {
				p = &ProductSales{Name: item.Name}
				byProduct[item.Name] = p
			}
			p.Amount += item.Subtotal
			p.Quantity += item.Quantity
		}
	}
	for _, txn := range todays {
		out.TodaySales += txn.Total
	}

	products := make([]ProductSales, 0, len(byProduct))
	for _, p := range byProduct {
		products = append(products, *p)
	}
	out.SalesByProductAmount = topBy(products, func(p ProductSales) int64 { return p.Amount })
	out.SalesByProductQty = topBy(products, func(p ProductSales) int64 { return p.Quantity })

	// List returns newest first.
	recent := min(len(txns), recentLimit)
	out.RecentTransactions = append([]transactions.Transaction{}, txns[:recent]...)
	return out, nil
}

func topBy(products []ProductSales, metric func(ProductSales) int64) []ProductSales {
	sorted := append([]ProductSales(nil), products...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := metric(sorted[i]), metric(sorted[j])
		if a != b {
			return a > b
		}
		return sorted[i].Name < sorted[j].Name
	})
	if len(sorted) > productLimit {
		sorted = sorted[:productLimit]
	}
	return sorted
}

func (s *Service) resolve(q Query, now time.Time) (string, time.Time, time.Time, error) {
	name := strings.ToLower(strings.TrimSpace(q.Range))
	today := startOfDay(now)
	switch name {
	case "", RangeAll:
		return RangeAll, time.Time{}, time.Time{}, nil
	case RangeToday:
		return name, today, endOfDay(today), nil
	case RangeWeek:
		// Weeks start on Monday.
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		return name, start, endOfDay(start.AddDate(0, 0, 6)), nil
	case RangeMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
		return name, start, start.AddDate(0, 1, 0).Add(-time.Nanosecond), nil
	case RangeCustom:
		var from, to time.Time
		if raw := strings.TrimSpace(q.Start); raw != "" {
			d, err := time.ParseInLocation(dayLayout, raw, s.loc)
			if err != nil {
				return "", time.Time{}, time.Time{}, shared.Invalid("start must be YYYY-MM-DD")
			}
			from = d
		}
		if raw := strings.TrimSpace(q.End); raw != "" {
			d, err := time.ParseInLocation(dayLayout, raw, s.loc)
			if err != nil {
				return "", time.Time{}, time.Time{}, shared.Invalid("end must be YYYY-MM-DD")
			}
			to = endOfDay(d)
		}
		if !from.IsZero() && !to.IsZero() && to.Before(from) {
			return "", time.Time{}, time.Time{}, shared.Invalid("end must not be before start")
		}
		return name, from, to, nil
	default:
		return "", time.Time{}, time.Time{}, shared.Invalid("range must be one of all, today, week, month, custom")
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func dayToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dayLayout)
}
