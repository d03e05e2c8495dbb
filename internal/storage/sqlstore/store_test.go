package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/platform/db"
	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenGorm(db.DialectSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	require.NoError(t, err)
	store := New(gdb)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newService(store *Store, opts ...transactions.Option) *transactions.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, transactions.WithClock(func() time.Time { return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC) }))
	return transactions.NewService(store, logger, transactions.ServiceConfig{Location: time.UTC, DecrementStock: true}, opts...)
}

func checkout(productID *string, items int) transactions.CreateRequest {
	req := transactions.CreateRequest{Date: "2025-01-15T10:00:00Z", PaymentMethod: transactions.PaymentCash}
	var total int64
	for i := 0; i < items; i++ {
		req.Items = append(req.Items, transactions.ItemInput{ProductID: productID, Name: fmt.Sprintf("Item %d", i), Price: 1000, Quantity: 1})
		total += 1000
	}
	req.Subtotal = total
	req.Total = &total
	req.CashReceived = total
	return req
}

func TestCounterIncrementsAndRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alloc := sequence.NewAllocator(store, time.UTC)
	at := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	first, err := alloc.Next(ctx, at)
	require.NoError(t, err)
	second, err := alloc.Next(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "20250115001", first)
	assert.Equal(t, "20250115002", second)

	boom := errors.New("boom")
	err = store.WithCounter(ctx, func(ctx context.Context, c sequence.Counter) error {
		_, err := c.NextSequence(ctx, "20250115")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	seq, err := store.CounterValue(ctx, "20250115")
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
}

func TestCreateRoundTripsThroughGorm(t *testing.T) {
	store := newTestStore(t)
	svc := newService(store)
	ctx := context.Background()

	req := checkout(nil, 500)
	req.CustomerName = "Budi"
	res, err := svc.Create(ctx, req, transactions.CreateOptions{IdempotencyKey: "k-1", CashierID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "20250115001", res.ID)

	got, err := svc.Get(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 500)
	assert.Equal(t, "Item 0", got.Items[0].Name)
	assert.Equal(t, "Item 499", got.Items[499].Name)
	assert.Equal(t, int64(500000), got.Total)
	assert.Equal(t, "Budi", got.CustomerName)
	assert.True(t, got.Date.Equal(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)))

	replay, err := svc.Create(ctx, req, transactions.CreateOptions{IdempotencyKey: "k-1"})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, res.ID, replay.ID)
}

type failingItems struct {
	*Store
}

func (f failingItems) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	transactions.TxRepository
}

func (failingTx) InsertItems(context.Context, string, []transactions.LineItem) error {
	return errors.New("disk I/O error")
}

func TestItemFailureRollsBackHeaderAndCounter(t *testing.T) {
	store := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := transactions.NewService(failingItems{store}, logger, transactions.ServiceConfig{Location: time.UTC})
	ctx := context.Background()

	_, err := svc.Create(ctx, checkout(nil, 2), transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrStorageFailure)

	list, err := store.ListTransactions(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	seq, err := store.CounterValue(ctx, "20250115")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestConcurrentCheckoutsAreDistinct(t *testing.T) {
	store := newTestStore(t)
	svc := newService(store)
	const n = 30

	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := svc.Create(context.Background(), checkout(nil, 2), transactions.CreateOptions{})
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
}

func TestStockDecrementAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	stock := int64(3)
	now := time.Now().UTC()
	require.NoError(t, store.CreateProduct(ctx, catalog.Product{ID: "p1", Name: "Widget", Price: 1000, Stock: &stock, CreatedAt: now, UpdatedAt: now}))
	svc := newService(store)
	pid := "p1"

	res, err := svc.Create(ctx, checkout(&pid, 2), transactions.CreateOptions{IdempotencyKey: "k-stock"})
	require.NoError(t, err)
	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), *p.Stock)

	_, err = svc.Create(ctx, checkout(&pid, 2), transactions.CreateOptions{})
	require.ErrorIs(t, err, transactions.ErrInsufficientStock)

	require.NoError(t, svc.Delete(ctx, res.ID))
	_, err = svc.Get(ctx, res.ID)
	require.ErrorIs(t, err, transactions.ErrNotFound)
	require.ErrorIs(t, store.DeleteTransaction(ctx, res.ID), transactions.ErrNotFound)
}

func TestListFiltersAndOrder(t *testing.T) {
	store := newTestStore(t)
	svc := newService(store)
	ctx := context.Background()
	for _, d := range []string{"2025-01-14T08:00:00Z", "2025-01-15T12:00:00Z", "2025-01-15T09:00:00Z"} {
		req := checkout(nil, 1)
		req.Date = d
		_, err := svc.Create(ctx, req, transactions.CreateOptions{})
		require.NoError(t, err)
	}
	_, err := svc.Cancel(ctx, "20250114001")
	require.NoError(t, err)

	all, err := store.ListTransactions(ctx, transactions.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"20250115001", "20250115002", "20250114001"}, []string{all[0].ID, all[1].ID, all[2].ID})

	success, err := store.ListTransactions(ctx, transactions.ListFilter{Status: transactions.StatusSuccess})
	require.NoError(t, err)
	assert.Len(t, success, 2)

	from := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	later, err := store.ListTransactions(ctx, transactions.ListFilter{From: from})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "20250115001", later[0].ID)
}

func TestProductsAndUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateProduct(ctx, catalog.Product{ID: "1", Name: "Kopi Susu", Category: "Minuman", Price: 15000, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.CreateProduct(ctx, catalog.Product{ID: "2", Name: "Roti Bakar", Category: "Makanan", Price: 12000, CreatedAt: now, UpdatedAt: now}))
	found, err := store.ListProducts(ctx, catalog.ListFilter{Search: "kopi"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	stock := int64(7)
	require.NoError(t, store.UpdateProduct(ctx, catalog.Product{ID: "1", Name: "Kopi Susu", Category: "Minuman", Price: 0, Stock: &stock, UpdatedAt: now}))
	p, err := store.GetProduct(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Price)
	assert.Equal(t, int64(7), *p.Stock)
	require.ErrorIs(t, store.UpdateProduct(ctx, catalog.Product{ID: "missing", Name: "x", UpdatedAt: now}), catalog.ErrNotFound)
	require.ErrorIs(t, store.DeleteProduct(ctx, "missing"), catalog.ErrNotFound)

	require.NoError(t, store.CreateUser(ctx, users.User{ID: "u1", Username: "admin", PasswordHash: "x", Role: "admin", Active: true, CreatedAt: now, UpdatedAt: now}))
	require.ErrorIs(t, store.CreateUser(ctx, users.User{ID: "u2", Username: "admin", PasswordHash: "x", Role: "cashier", CreatedAt: now, UpdatedAt: now}), users.ErrUsernameTaken)

	u, err := store.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, u.Active)
	u.Active = false
	require.NoError(t, store.UpdateUser(ctx, u))
	u, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.Active)

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
