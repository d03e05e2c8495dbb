package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Gazel/SecureKasir/internal/dashboard"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

// TransactionLister reads stored sales.
type TransactionLister interface {
	List(ctx context.Context, filter transactions.ListFilter) ([]transactions.Transaction, error)
}

// SummaryWarmer pre-populates dashboard caches.
type SummaryWarmer interface {
	Summary(ctx context.Context, q dashboard.Query) (dashboard.Summary, error)
}

// DaySummary is the close-out of one business day.
type DaySummary struct {
	Date      string
	Sales     int64
	Count     int
	Cancelled int
	ByMethod  map[string]int64
}

// DailySummaryJob logs the previous day's totals and warms the dashboard.
type DailySummaryJob struct {
	Transactions TransactionLister
	Dashboard    SummaryWarmer
	Location     *time.Location
	Logger       *slog.Logger
	Metrics      Observer
	clock        func() time.Time
}

// NewDailySummaryJob wires dependencies for the daily summary handler.
func NewDailySummaryJob(txns TransactionLister, warmer SummaryWarmer, loc *time.Location, logger *slog.Logger, metrics Observer) *DailySummaryJob {
	if loc == nil {
		loc = time.Local
	}
	return &DailySummaryJob{
		Transactions: txns,
		Dashboard:    warmer,
		Location:     loc,
		Logger:       logger,
		Metrics:      metrics,
		clock:        time.Now,
	}
}

// Handle processes TaskDailySummary tasks.
func (j *DailySummaryJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Transactions == nil {
		return errors.New("daily summary: handler not configured")
	}
	var payload DailySummaryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("daily summary: decode payload: %w", asynq.SkipRetry)
		}
	}
	defer func() {
		if j.Metrics != nil {
			j.Metrics.ObserveJob(TaskDailySummary, resultErr)
		}
	}()

	day, err := j.resolveDay(payload.Date)
	if err != nil {
		return fmt.Errorf("daily summary: %w: %w", err, asynq.SkipRetry)
	}
	logger := j.logger().With(slog.String("business_date", day.Format("2006-01-02")))

	summary, err := j.Summarise(ctx, day)
	if err != nil {
		logger.Error("summarise day", slog.Any("error", err))
		return err
	}
	attrs := []any{
		slog.Int64("sales", summary.Sales),
		slog.Int("transactions", summary.Count),
		slog.Int("cancelled", summary.Cancelled),
	}
	for method, total := range summary.ByMethod {
		attrs = append(attrs, slog.Int64("sales_"+method, total))
	}
	logger.Info("daily summary", attrs...)

	if j.Dashboard != nil {
		for _, r := range []string{dashboard.RangeToday, dashboard.RangeWeek, dashboard.RangeMonth} {
			if _, err := j.Dashboard.Summary(ctx, dashboard.Query{Range: r}); err != nil {
				// Warming is best effort; the totals are already logged.
				logger.Warn("warm dashboard", slog.String("range", r), slog.Any("error", err))
			}
		}
	}
	return nil
}

// Summarise totals one business day starting at day (midnight, business
// time zone).
func (j *DailySummaryJob) Summarise(ctx context.Context, day time.Time) (DaySummary, error) {
	txns, err := j.Transactions.List(ctx, transactions.ListFilter{
		From: day,
		To:   day.AddDate(0, 0, 1).Add(-time.Nanosecond),
	})
	if err != nil {
		return DaySummary{}, err
	}
	out := DaySummary{Date: day.Format("2006-01-02"), ByMethod: make(map[string]int64)}
	for _, txn := range txns {
		if txn.Status != transactions.StatusSuccess {
			out.Cancelled++
			continue
		}
		out.Count++
		out.Sales += txn.Total
		out.ByMethod[string(txn.PaymentMethod)] += txn.Total
	}
	return out, nil
}

func (j *DailySummaryJob) resolveDay(raw string) (time.Time, error) {
	if raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, j.Location)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", raw)
		}
		return day, nil
	}
	now := j.clock().In(j.Location)
	y, m, d := now.AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, j.Location), nil
}

func (j *DailySummaryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDailySummary))
	}
	return slog.Default().With(slog.String("job", TaskDailySummary))
}
