package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/sequence"
)

// Repository abstracts transaction persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status Status) error
	DeleteTransaction(ctx context.Context, id string) error
}

// TxRepository exposes the operations of one atomic checkout unit.
type TxRepository interface {
	sequence.Counter
	FindIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SaveIdempotencyKey(ctx context.Context, key, transactionID string) error
	InsertTransaction(ctx context.Context, t Transaction) error
	InsertItems(ctx context.Context, transactionID string, items []LineItem) error
	DecrementStock(ctx context.Context, productID string, qty int64) error
}

// ProductFinder resolves catalog products.
type ProductFinder interface {
	Find(ctx context.Context, id string) (catalog.Product, error)
}

// CacheInvalidator drops cached views derived from transactions.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// EventPublisher announces committed sales.
type EventPublisher interface {
	PublishRecorded(ctx context.Context, t Transaction) error
}

// MetricsRecorder counts checkout outcomes.
type MetricsRecorder interface {
	ObserveRecorded(method string, items int)
	ObserveFailure(reason string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// Location decides the business date of a sale.
	Location *time.Location
	// ValidateCatalog rejects items whose productId is not in the catalog.
	ValidateCatalog bool
	// DecrementStock reduces finite product stock in the checkout unit.
	DecrementStock bool
	// StoreName heads printed receipts.
	StoreName string
}

// Service records and reads sales.
type Service struct {
	repo     Repository
	products ProductFinder
	cache    CacheInvalidator
	events   EventPublisher
	metrics  MetricsRecorder
	logger   *slog.Logger
	cfg      ServiceConfig
	clock    func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithProducts enables catalog lookups.
func WithProducts(p ProductFinder) Option { return func(s *Service) { s.products = p } }

// WithCache wires dashboard cache invalidation.
func WithCache(c CacheInvalidator) Option { return func(s *Service) { s.cache = c } }

// WithEvents wires post-commit event publishing.
func WithEvents(e EventPublisher) Option { return func(s *Service) { s.events = e } }

// WithMetrics wires outcome counters.
func WithMetrics(m MetricsRecorder) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

// NewService builds Service.
func NewService(repo Repository, logger *slog.Logger, cfg ServiceConfig, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "SecureKasir"
	}
	s := &Service{repo: repo, logger: logger, cfg: cfg, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOptions carries request metadata that is not part of the payload.
type CreateOptions struct {
	IdempotencyKey string
	CashierID      string
}

// Create validates a checkout payload and stores the header, its items and
// the claimed daily number as one atomic unit. Without an idempotency key
// two identical payloads produce two transactions.
func (s *Service) Create(ctx context.Context, req CreateRequest, opts CreateOptions) (CreateResult, error) {
	if err := ValidateIdempotencyKey(opts.IdempotencyKey); err != nil {
		s.observeFailure(err)
		return CreateResult{}, err
	}
	txn, diffs, err := ValidateCreateRequest(req, s.clock())
	if err != nil {
		s.observeFailure(err)
		return CreateResult{}, err
	}
	for _, d := range diffs {
		s.logger.Warn("client amount replaced",
			slog.String("field", d.Field),
			slog.Int64("client", d.Client),
			slog.Int64("computed", d.Computed))
	}
	if err := s.checkCatalog(ctx, txn.Items); err != nil {
		s.observeFailure(err)
		return CreateResult{}, err
	}
	txn.CashierID = opts.CashierID
	businessDate := sequence.DateKey(txn.Date, s.cfg.Location)
	txn.Date = txn.Date.UTC()

	result, err := s.persist(ctx, &txn, businessDate, opts.IdempotencyKey)
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		// Lost the race to a concurrent request with the same key; the
		// retry finds the winner's binding.
		result, err = s.persist(ctx, &txn, businessDate, opts.IdempotencyKey)
	}
	if err != nil {
		err = classifyWriteError(err)
		s.observeFailure(err)
		if errors.Is(err, ErrStorageFailure) || errors.Is(err, sequence.ErrStorageUnavailable) {
			s.logger.Error("save transaction", slog.String("business_date", businessDate), slog.Any("error", err))
		}
		return CreateResult{}, err
	}
	if result.Replayed {
		s.logger.Info("idempotent replay", slog.String("id", result.ID))
		return result, nil
	}
	s.afterCommit(ctx, txn)
	return result, nil
}

func (s *Service) persist(ctx context.Context, txn *Transaction, businessDate, key string) (CreateResult, error) {
	var result CreateResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if key != "" {
			id, found, err := tx.FindIdempotencyKey(ctx, key)
			if err != nil {
				return err
			}
			if found {
				result = CreateResult{ID: id, Replayed: true}
				return nil
			}
		}
		id, err := sequence.Claim(ctx, tx, businessDate)
		if err != nil {
			return err
		}
		txn.ID = id
		txn.CreatedAt = s.clock().UTC()
		if err := tx.InsertTransaction(ctx, *txn); err != nil {
			return fmt.Errorf("insert header: %w", err)
		}
		if err := tx.InsertItems(ctx, id, txn.Items); err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		if s.cfg.DecrementStock && txn.Status == StatusSuccess {
			if err := decrementStock(ctx, tx, txn.Items); err != nil {
				return err
			}
		}
		if key != "" {
			if err := tx.SaveIdempotencyKey(ctx, key, id); err != nil {
				return err
			}
		}
		result = CreateResult{ID: id}
		return nil
	})
	return result, err
}

func decrementStock(ctx context.Context, tx TxRepository, items []LineItem) error {
	qty := make(map[string]int64)
	names := make(map[string]string)
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		id := *item.ProductID
		if _, ok := qty[id]; !ok {
			order = append(order, id)
			names[id] = item.Name
		}
		qty[id] += item.Quantity
	}
	// Fixed order keeps row locks acquired consistently across checkouts.
	sort.Strings(order)
	for _, id := range order {
		err := tx.DecrementStock(ctx, id, qty[id])
		switch {
		case err == nil, errors.Is(err, catalog.ErrNotFound):
		case errors.Is(err, catalog.ErrInsufficientStock):
			return ErrInsufficientStock.withDetail("%s", names[id])
		default:
			return fmt.Errorf("decrement stock %s: %w", id, err)
		}
	}
	return nil
}

func (s *Service) checkCatalog(ctx context.Context, items []LineItem) error {
	if !s.cfg.ValidateCatalog || s.products == nil {
		return nil
	}
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		if _, err := s.products.Find(ctx, *item.ProductID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return ErrUnknownProduct.withDetail("%s", *item.ProductID)
			}
			return fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, txn Transaction) {
	if s.metrics != nil {
		s.metrics.ObserveRecorded(string(txn.PaymentMethod), len(txn.Items))
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	s.invalidate(ctx)
	if s.events != nil {
		if err := s.events.PublishRecorded(ctx, txn); err != nil {
			s.logger.Warn("publish transaction recorded", slog.String("id", txn.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

func (s *Service) observeFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveFailure(FailureReason(err))
}

// FailureReason maps a Create error to a stable label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, sequence.ErrSequenceExhausted):
		return "sequence_exhausted"
	case errors.Is(err, sequence.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "storage_failure"
	}
}

func classifyWriteError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrStorageFailure),
		errors.Is(err, sequence.ErrSequenceExhausted),
		errors.Is(err, sequence.ErrStorageUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}

// List returns transactions newest first with their items.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	txns, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorageFailure, err)
	}
	sort.SliceStable(txns, func(i, j int) bool { return Less(txns[i], txns[j]) })
	if filter.Limit > 0 && len(txns) > filter.Limit {
		txns = txns[:filter.Limit]
	}
	for i := range txns {
		if txns[i].Items == nil {
			txns[i].Items = []LineItem{}
		}
	}
	return txns, nil
}

// Get returns a single transaction with its items.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	if _, _, err := sequence.ParseID(id); err != nil {
		return Transaction{}, ErrNotFound
	}
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("%w: get %s: %w", ErrStorageFailure, id, err)
	}
	if txn.Items == nil {
		txn.Items = []LineItem{}
	}
	return txn, nil
}

// Cancel marks a sale CANCELLED. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) (Transaction, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if txn.Status == StatusCancelled {
		return txn, nil
	}
	if err := s.repo.UpdateTransactionStatus(ctx, id, StatusCancelled); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("%w: cancel %s: %w", ErrStorageFailure, id, err)
	}
	txn.Status = StatusCancelled
	s.invalidate(ctx)
	s.logger.Info("transaction cancelled", slog.String("id", id))
	return txn, nil
}

// Delete removes a sale and, by cascade, its items. The daily counter is
// not touched, so the number is never handed out again.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, _, err := sequence.ParseID(id); err != nil {
		return ErrNotFound
	}
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: delete %s: %w", ErrStorageFailure, id, err)
	}
	s.invalidate(ctx)
	s.logger.Info("transaction deleted", slog.String("id", id))
	return nil
}

// Location returns the business time zone.
func (s *Service) Location() *time.Location {
	return s.cfg.Location
}
