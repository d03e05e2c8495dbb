package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Gazel/SecureKasir/internal/transactions"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTransactionRecorded follows every committed checkout.
	TaskTransactionRecorded = "pos:transaction_recorded"
	// TaskDailySummary closes out a business day.
	TaskDailySummary = "pos:daily_summary"

	// DailySummaryCron runs shortly after midnight in the business time zone.
	DailySummaryCron = "5 0 * * *"
)

// TransactionRecordedPayload is published after a checkout commits.
type TransactionRecordedPayload struct {
	ID            string    `json:"id"`
	Total         int64     `json:"total"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	Date          time.Time `json:"date"`
	ProductIDs    []string  `json:"productIds,omitempty"`
}

// NewTransactionRecordedTask constructs an Asynq task for a stored sale.
func NewTransactionRecordedTask(txn transactions.Transaction) (*asynq.Task, error) {
	payload := TransactionRecordedPayload{
		ID:            txn.ID,
		Total:         txn.Total,
		PaymentMethod: string(txn.PaymentMethod),
		Status:        string(txn.Status),
		Date:          txn.Date,
	}
	seen := make(map[string]struct{})
	for _, item := range txn.Items {
		if item.ProductID == nil {
			continue
		}
		if _, ok := seen[*item.ProductID]; ok {
			continue
		}
		seen[*item.ProductID] = struct{}{}
		payload.ProductIDs = append(payload.ProductIDs, *item.ProductID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTransactionRecorded, data, asynq.MaxRetry(5)), nil
}

// DailySummaryPayload selects the business day to summarise. An empty
// date means the day before the job runs.
type DailySummaryPayload struct {
	Date string `json:"date,omitempty"`
}

// NewDailySummaryTask constructs an Asynq task for the day summary.
func NewDailySummaryTask(date string) (*asynq.Task, error) {
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("daily summary date %q: %w", date, err)
		}
	}
	data, err := json.Marshal(DailySummaryPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailySummary, data), nil
}
