package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Gazel/SecureKasir/internal/catalog"
)

// ProductLookup reads catalog entries.
type ProductLookup interface {
	Find(ctx context.Context, id string) (catalog.Product, error)
}

// LowStockJob warns when a sale leaves a product at or below the
// configured threshold.
type LowStockJob struct {
	Products  ProductLookup
	Threshold int64
	Logger    *slog.Logger
	Metrics   Observer
}

// NewLowStockJob wires dependencies for the low stock handler.
func NewLowStockJob(products ProductLookup, threshold int64, logger *slog.Logger, metrics Observer) *LowStockJob {
	return &LowStockJob{Products: products, Threshold: threshold, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTransactionRecorded tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Products == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload TransactionRecordedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock: decode payload: %w", asynq.SkipRetry)
	}
	defer func() {
		if j.Metrics != nil {
			j.Metrics.ObserveJob(TaskTransactionRecorded, resultErr)
		}
	}()

	logger := j.logger().With(slog.String("transaction_id", payload.ID))
	low, err := j.Check(ctx, payload.ProductIDs)
	if err != nil {
		logger.Error("check stock", slog.Any("error", err))
		return err
	}
	for _, p := range low {
		logger.Warn("low stock",
			slog.String("product_id", p.ID),
			slog.String("product", p.Name),
			slog.Int64("stock", *p.Stock),
			slog.Int64("threshold", j.Threshold))
	}
	return nil
}

// Check returns the tracked products at or below the threshold. Products
// that no longer exist or have unlimited stock are skipped.
func (j *LowStockJob) Check(ctx context.Context, productIDs []string) ([]catalog.Product, error) {
	var low []catalog.Product
	for _, id := range productIDs {
		p, err := j.Products.Find(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Unlimited() || *p.Stock > j.Threshold {
			continue
		}
		low = append(low, p)
	}
	return low, nil
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTransactionRecorded))
	}
	return slog.Default().With(slog.String("job", TaskTransactionRecorded))
}
