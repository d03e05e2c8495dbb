package transactions_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/storage/memory"
	"github.com/Gazel/SecureKasir/internal/transactions"
	_ "github.com/Gazel/SecureKasir/testing"
)

var fixedNow = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

type faultyRepo struct {
	*memory.Store
	failItems  bool
	failHeader bool
	seqBump    int
}

type faultyTx struct {
	transactions.TxRepository
	repo *faultyRepo
}

func (r *faultyRepo) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	return r.Store.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		return fn(ctx, &faultyTx{TxRepository: tx, repo: r})
	})
}

func (t *faultyTx) NextSequence(ctx context.Context, date string) (int, error) {
	seq, err := t.TxRepository.NextSequence(ctx, date)
	return seq + t.repo.seqBump, err
}

func (t *faultyTx) InsertTransaction(ctx context.Context, txn transactions.Transaction) error {
	if t.repo.failHeader {
		return errors.New("header insert failed")
	}
	return t.TxRepository.InsertTransaction(ctx, txn)
}

func (t *faultyTx) InsertItems(ctx context.Context, id string, items []transactions.LineItem) error {
	if t.repo.failItems {
		return errors.New("disk full")
	}
	return t.TxRepository.InsertItems(ctx, id, items)
}

type recordingHooks struct {
	mu        sync.Mutex
	bumps     int
	published []string
	recorded  map[string]int
	failures  map[string]int
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{recorded: map[string]int{}, failures: map[string]int{}}
}

func (h *recordingHooks) Bump(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bumps++
	return nil
}

func (h *recordingHooks) PublishRecorded(_ context.Context, t transactions.Transaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, t.ID)
	return nil
}

func (h *recordingHooks) ObserveRecorded(method string, _ int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded[method]++
}

func (h *recordingHooks) ObserveFailure(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[reason]++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(repo transactions.Repository, cfg transactions.ServiceConfig, opts ...transactions.Option) *transactions.Service {
	cfg.Location = time.UTC
	opts = append([]transactions.Option{transactions.WithClock(func() time.Time { return fixedNow })}, opts...)
	return transactions.NewService(repo, quietLogger(), cfg, opts...)
}

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }

func widgetSale() transactions.CreateRequest {
	return transactions.CreateRequest{
		Items: []transactions.ItemInput{{
			ProductID: strp("p1"), Name: "Widget", Price: 1000, Quantity: 2, Subtotal: 2000,
		}},
		Subtotal:      2000,
		Discount:      0,
		Total:         int64p(2000),
		Date:          "2025-01-15T10:00:00Z",
		PaymentMethod: transactions.PaymentCash,
		CashReceived:  2000,
		Change:        0,
	}
}

func TestCreateStoresSaleAndReadsBack(t *testing.T) {
	store := memory.New()
	hooks := newRecordingHooks()
	svc := newService(store, transactions.ServiceConfig{},
		transactions.WithCache(hooks), transactions.WithEvents(hooks), transactions.WithMetrics(hooks))
	ctx := context.Background()

	res, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{CashierID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "20250115001", res.ID)
	assert.False(t, res.Replayed)

	list, err := svc.List(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "20250115001", got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Widget", got.Items[0].Name)
	assert.Equal(t, int64(2000), got.Items[0].Subtotal)
	assert.Equal(t, transactions.StatusSuccess, got.Status)
	assert.Equal(t, "u1", got.CashierID)
	assert.Equal(t, "20250115", got.BusinessDate())

	assert.Equal(t, 1, hooks.bumps)
	assert.Equal(t, []string{"20250115001"}, hooks.published)
	assert.Equal(t, 1, hooks.recorded["cash"])
}

func TestCreateRejectsEmptyItemsWithoutSideEffects(t *testing.T) {
	store := memory.New()
	hooks := newRecordingHooks()
	svc := newService(store, transactions.ServiceConfig{}, transactions.WithMetrics(hooks))
	ctx := context.Background()

	req := widgetSale()
	req.Items = []transactions.ItemInput{}
	_, err := svc.Create(ctx, req, transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrInvalidPayload)
	require.ErrorIs(t, err, transactions.ErrEmptyItems)
	assert.Equal(t, 1, hooks.failures["invalid_payload"])

	list, err := svc.List(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, store.CounterValue("20250115"))

	id, err := sequence.NewAllocator(store, time.UTC).Next(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "20250115001", id)
}

func TestCreateValidation(t *testing.T) {
	cases := map[string]func(*transactions.CreateRequest){
		"missing total":     func(r *transactions.CreateRequest) { r.Total = nil },
		"negative total":    func(r *transactions.CreateRequest) { r.Total = int64p(-1) },
		"zero quantity":     func(r *transactions.CreateRequest) { r.Items[0].Quantity = 0 },
		"negative price":    func(r *transactions.CreateRequest) { r.Items[0].Price = -5 },
		"missing name":      func(r *transactions.CreateRequest) { r.Items[0].Name = "" },
		"bad method":        func(r *transactions.CreateRequest) { r.PaymentMethod = "card" },
		"bad status":        func(r *transactions.CreateRequest) { r.Status = "PENDING" },
		"bad date":          func(r *transactions.CreateRequest) { r.Date = "15/01/2025" },
		"negative discount": func(r *transactions.CreateRequest) { r.Discount = -100 },
		"short cash":        func(r *transactions.CreateRequest) { r.CashReceived = 1500 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.New()
			svc := newService(store, transactions.ServiceConfig{})
			req := widgetSale()
			mutate(&req)
			_, err := svc.Create(context.Background(), req, transactions.CreateOptions{})
			require.ErrorIs(t, err, transactions.ErrInvalidPayload)
			assert.Equal(t, 0, store.CounterValue("20250115"))
		})
	}
}

func TestCreateRejectsAmountOverflow(t *testing.T) {
	huge := int64(1) << 62
	cases := map[string][]transactions.ItemInput{
		"line product": {{Name: "Emas", Price: huge, Quantity: 2}},
		"running sum": {
			{Name: "Emas", Price: huge, Quantity: 1},
			{Name: "Perak", Price: huge, Quantity: 1},
		},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.New()
			svc := newService(store, transactions.ServiceConfig{})
			req := transactions.CreateRequest{
				Items:         items,
				Total:         int64p(0),
				PaymentMethod: transactions.PaymentQRIS,
			}
			_, err := svc.Create(context.Background(), req, transactions.CreateOptions{})
			require.ErrorIs(t, err, transactions.ErrInvalidPayload)
			require.ErrorIs(t, err, transactions.ErrAmountOverflow)
			assert.Equal(t, 0, store.CounterValue("20250115"))

			list, err := svc.List(context.Background(), transactions.ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestCreateRecomputesAmounts(t *testing.T) {
	store := memory.New()
	svc := newService(store, transactions.ServiceConfig{})
	ctx := context.Background()

	req := transactions.CreateRequest{
		Items: []transactions.ItemInput{
			{Name: "Kopi", Price: 15000, Quantity: 2, Subtotal: 1},
			{Name: "Roti", Price: 8000, Quantity: 1, Subtotal: 8000},
		},
		Subtotal:      999,
		Discount:      3000,
		Total:         int64p(5),
		Date:          "2025-01-15T10:00:00Z",
		PaymentMethod: transactions.PaymentCash,
		CashReceived:  50000,
		Change:        7,
	}
	res, err := svc.Create(ctx, req, transactions.CreateOptions{})
	require.NoError(t, err)

	got, err := svc.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), got.Items[0].Subtotal)
	assert.Equal(t, int64(38000), got.Subtotal)
	assert.Equal(t, int64(35000), got.Total)
	assert.Equal(t, got.Subtotal-got.Discount, got.Total)
	assert.Equal(t, got.CashReceived-got.Total, got.Change)
	assert.Equal(t, int64(15000), got.Change)
}

func TestCreateClampsTotalAndZeroesNonCashChange(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	ctx := context.Background()

	req := widgetSale()
	req.Discount = 5000
	req.CashReceived = 0
	req.Total = int64p(0)
	res, err := svc.Create(ctx, req, transactions.CreateOptions{})
	require.NoError(t, err)
	got, err := svc.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Total)
	assert.Equal(t, int64(0), got.Change)

	qris := widgetSale()
	qris.PaymentMethod = transactions.PaymentQRIS
	qris.CashReceived = 0
	qris.Change = 500
	res, err = svc.Create(ctx, qris, transactions.CreateOptions{})
	require.NoError(t, err)
	got, err = svc.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Change)
	assert.Equal(t, "20250115002", got.ID)
}

func TestCreateCancelledMethodDefaultsStatus(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	req := widgetSale()
	req.PaymentMethod = transactions.PaymentCancelled
	req.CashReceived = 0

	res, err := svc.Create(context.Background(), req, transactions.CreateOptions{})
	require.NoError(t, err)
	got, err := svc.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusCancelled, got.Status)
}

func TestCreateDefaultsDateToNow(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	req := widgetSale()
	req.Date = ""

	res, err := svc.Create(context.Background(), req, transactions.CreateOptions{})
	require.NoError(t, err)
	got, err := svc.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(fixedNow))
}

func TestCreateItemFailureRollsBackEverything(t *testing.T) {
	repo := &faultyRepo{Store: memory.New(), failItems: true}
	hooks := newRecordingHooks()
	svc := newService(repo, transactions.ServiceConfig{}, transactions.WithEvents(hooks), transactions.WithMetrics(hooks))
	ctx := context.Background()

	_, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrStorageFailure)
	assert.Equal(t, 1, hooks.failures["storage_failure"])
	assert.Empty(t, hooks.published)

	list, err := svc.List(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "header must not survive a failed item insert")
	assert.Equal(t, 0, repo.CounterValue("20250115"))

	repo.failItems = false
	res, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "20250115001", res.ID)
}

func TestCreateHeaderFailureIsStorageFailure(t *testing.T) {
	repo := &faultyRepo{Store: memory.New(), failHeader: true}
	svc := newService(repo, transactions.ServiceConfig{})

	_, err := svc.Create(context.Background(), widgetSale(), transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrStorageFailure)
	assert.Equal(t, 0, repo.CounterValue("20250115"))
}

func TestCreateSequenceExhausted(t *testing.T) {
	repo := &faultyRepo{Store: memory.New(), seqBump: sequence.MaxPerDay}
	hooks := newRecordingHooks()
	svc := newService(repo, transactions.ServiceConfig{}, transactions.WithMetrics(hooks))

	_, err := svc.Create(context.Background(), widgetSale(), transactions.CreateOptions{})
	require.ErrorIs(t, err, sequence.ErrSequenceExhausted)
	assert.Equal(t, 1, hooks.failures["sequence_exhausted"])

	list, err := svc.List(context.Background(), transactions.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateIsNotIdempotentWithoutKey(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	ctx := context.Background()

	first, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{})
	require.NoError(t, err)
	second, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	list, err := svc.List(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreateReplaysIdempotencyKey(t *testing.T) {
	store := memory.New()
	hooks := newRecordingHooks()
	svc := newService(store, transactions.ServiceConfig{}, transactions.WithEvents(hooks))
	ctx := context.Background()
	opts := transactions.CreateOptions{IdempotencyKey: "till-1-0001"}

	first, err := svc.Create(ctx, widgetSale(), opts)
	require.NoError(t, err)
	second, err := svc.Create(ctx, widgetSale(), opts)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Replayed)
	assert.Len(t, hooks.published, 1)
	assert.Equal(t, 1, store.CounterValue("20250115"))

	_, err = svc.Create(ctx, widgetSale(), transactions.CreateOptions{IdempotencyKey: strings.Repeat("k", 200)})
	require.ErrorIs(t, err, transactions.ErrInvalidPayload)
}

func TestCreateBoundaryItemCounts(t *testing.T) {
	for _, n := range []int{1, 500} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			svc := newService(memory.New(), transactions.ServiceConfig{})
			req := transactions.CreateRequest{Date: "2025-01-15T10:00:00Z", PaymentMethod: transactions.PaymentQRIS}
			var subtotal int64
			for i := 0; i < n; i++ {
				price := int64(100 + i)
				req.Items = append(req.Items, transactions.ItemInput{Name: fmt.Sprintf("Item %d", i), Price: price, Quantity: 1, Subtotal: price})
				subtotal += price
			}
			req.Subtotal = subtotal
			req.Total = int64p(subtotal)

			res, err := svc.Create(context.Background(), req, transactions.CreateOptions{})
			require.NoError(t, err)
			got, err := svc.Get(context.Background(), res.ID)
			require.NoError(t, err)
			require.Len(t, got.Items, n)
			assert.Equal(t, "Item 0", got.Items[0].Name)
			assert.Equal(t, fmt.Sprintf("Item %d", n-1), got.Items[n-1].Name)
		})
	}
}

func TestCreateConcurrentCheckoutsGetDistinctIDs(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	const n = 50

	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := svc.Create(context.Background(), widgetSale(), transactions.CreateOptions{})
			ids[i] = res.ID
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.Contains(t, seen, sequence.FormatID("20250115", i))
	}
}

func TestCreateDecrementsStock(t *testing.T) {
	store := memory.New()
	products := catalog.NewService(store, nil)
	ctx := context.Background()
	p, err := products.Create(ctx, catalog.ProductInput{Name: "Widget", Price: 1000, Stock: int64p(3)})
	require.NoError(t, err)
	unlimited, err := products.Create(ctx, catalog.ProductInput{Name: "Es Teh", Price: 5000})
	require.NoError(t, err)

	svc := newService(store, transactions.ServiceConfig{DecrementStock: true, ValidateCatalog: true}, transactions.WithProducts(products))

	req := widgetSale()
	req.Items[0].ProductID = strp(p.ID)
	req.Items = append(req.Items, transactions.ItemInput{ProductID: strp(unlimited.ID), Name: "Es Teh", Price: 5000, Quantity: 4})
	req.Subtotal, req.Total, req.CashReceived = 22000, int64p(22000), 22000
	_, err = svc.Create(ctx, req, transactions.CreateOptions{})
	require.NoError(t, err)

	after, err := products.Find(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Stock)
	assert.Equal(t, int64(1), *after.Stock)

	_, err = svc.Create(ctx, req, transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrInsufficientStock)
	after, err = products.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *after.Stock)

	list, err := svc.List(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateRejectsUnknownProductWhenValidating(t *testing.T) {
	store := memory.New()
	svc := newService(store, transactions.ServiceConfig{ValidateCatalog: true}, transactions.WithProducts(catalog.NewService(store, nil)))

	_, err := svc.Create(context.Background(), widgetSale(), transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrUnknownProduct)
	assert.Equal(t, 0, store.CounterValue("20250115"))

	lenient := newService(store, transactions.ServiceConfig{})
	_, err = lenient.Create(context.Background(), widgetSale(), transactions.CreateOptions{})
	require.NoError(t, err)
}

func TestListOrdersAndFilters(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	ctx := context.Background()

	dates := []string{"2025-01-14T08:00:00Z", "2025-01-15T12:00:00Z", "2025-01-15T09:00:00Z"}
	for _, d := range dates {
		req := widgetSale()
		req.Date = d
		_, err := svc.Create(ctx, req, transactions.CreateOptions{})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "20250115001", all[0].ID)
	assert.Equal(t, "20250115002", all[1].ID)
	assert.Equal(t, "20250114001", all[2].ID)

	from := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	day, err := svc.List(ctx, transactions.ListFilter{From: from, To: from.Add(24*time.Hour - time.Nanosecond)})
	require.NoError(t, err)
	assert.Len(t, day, 2)

	limited, err := svc.List(ctx, transactions.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCancelAndDelete(t *testing.T) {
	hooks := newRecordingHooks()
	svc := newService(memory.New(), transactions.ServiceConfig{}, transactions.WithCache(hooks))
	ctx := context.Background()

	res, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusCancelled, cancelled.Status)
	_, err = svc.Cancel(ctx, res.ID)
	require.NoError(t, err)

	onlySuccess, err := svc.List(ctx, transactions.ListFilter{Status: transactions.StatusSuccess})
	require.NoError(t, err)
	assert.Empty(t, onlySuccess)

	require.NoError(t, svc.Delete(ctx, res.ID))
	_, err = svc.Get(ctx, res.ID)
	require.ErrorIs(t, err, transactions.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, res.ID), transactions.ErrNotFound)
	assert.Equal(t, 3, hooks.bumps)

	next, err := svc.Create(ctx, widgetSale(), transactions.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "20250115002", next.ID, "deleted numbers are not reissued")
}

func TestGetRejectsMalformedID(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{})
	_, err := svc.Get(context.Background(), "not-an-id")
	require.ErrorIs(t, err, transactions.ErrNotFound)
}

func TestReceipt(t *testing.T) {
	svc := newService(memory.New(), transactions.ServiceConfig{StoreName: "Warung Gazel"})
	ctx := context.Background()
	req := widgetSale()
	req.Items[0].Price = 1500000
	req.Items[0].Quantity = 1
	req.Subtotal, req.Total, req.CashReceived = 1500000, int64p(1500000), 2000000
	req.CustomerName = "Budi"

	res, err := svc.Create(ctx, req, transactions.CreateOptions{})
	require.NoError(t, err)
	body, err := svc.Receipt(ctx, res.ID)
	require.NoError(t, err)

	assert.Contains(t, body, "Warung Gazel")
	assert.Contains(t, body, "No    : 20250115001")
	assert.Contains(t, body, "1.500.000")
	assert.Contains(t, body, "500.000")
	assert.Contains(t, body, "Plgn  : Budi")
	assert.Contains(t, body, "15/01/2025 10:00")
}
