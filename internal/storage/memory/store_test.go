package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
)

func sampleTxn(id string) transactions.Transaction {
	return transactions.Transaction{
		ID:            id,
		Subtotal:      2000,
		Total:         2000,
		Date:          time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		PaymentMethod: transactions.PaymentCash,
		CashReceived:  2000,
		Status:        transactions.StatusSuccess,
	}
}

func TestUnitCommitsStagedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		seq, err := tx.NextSequence(ctx, "20250115")
		require.NoError(t, err)
		id := sequence.FormatID("20250115", seq)
		require.NoError(t, tx.InsertTransaction(ctx, sampleTxn(id)))
		require.NoError(t, tx.InsertItems(ctx, id, []transactions.LineItem{{Name: "Widget", Price: 1000, Quantity: 2, Subtotal: 2000}}))
		return tx.SaveIdempotencyKey(ctx, "k1", id)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.CounterValue("20250115"))
	got, err := s.GetTransaction(ctx, "20250115001")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)

	err = s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		id, found, err := tx.FindIdempotencyKey(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "20250115001", id)
		return tx.SaveIdempotencyKey(ctx, "k1", "20250115002")
	})
	require.ErrorIs(t, err, transactions.ErrDuplicateIdempotencyKey)
}

func TestUnitFailureLeavesNoTrace(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		_, err := tx.NextSequence(ctx, "20250115")
		require.NoError(t, err)
		require.NoError(t, tx.InsertTransaction(ctx, sampleTxn("20250115001")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, s.CounterValue("20250115"))
	_, err = s.GetTransaction(ctx, "20250115001")
	require.ErrorIs(t, err, transactions.ErrNotFound)
}

func TestUnitExpiredContextRollsBack(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithCounter(ctx, func(ctx context.Context, c sequence.Counter) error {
		_, err := c.NextSequence(ctx, "20250115")
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.CounterValue("20250115"))
}

func TestInsertItemsRequiresHeader(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx transactions.TxRepository) error {
		return tx.InsertItems(ctx, "20250115001", []transactions.LineItem{{Name: "x", Quantity: 1}})
	})
	require.Error(t, err)
}

func TestConcurrentAllocatorsAreDistinct(t *testing.T) {
	s := New()
	alloc := sequence.NewAllocator(s, time.UTC)
	at := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	const n = 100

	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			id, err := alloc.Next(context.Background(), at)
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, s.CounterValue("20250115"))
}

func TestDecrementStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	stock := int64(5)
	require.NoError(t, s.CreateProduct(ctx, catalog.Product{ID: "p1", Name: "Widget", Price: 1000, Stock: &stock}))
	require.NoError(t, s.CreateProduct(ctx, catalog.Product{ID: "p2", Name: "Es Teh", Price: 5000}))

	err := s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		require.NoError(t, tx.DecrementStock(ctx, "p1", 2))
		require.NoError(t, tx.DecrementStock(ctx, "p1", 3))
		require.NoError(t, tx.DecrementStock(ctx, "p2", 100))
		require.ErrorIs(t, tx.DecrementStock(ctx, "p1", 1), catalog.ErrInsufficientStock)
		require.ErrorIs(t, tx.DecrementStock(ctx, "missing", 1), catalog.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), *p.Stock)
	assert.Equal(t, int64(5), stock, "caller's value is not aliased")

	unlimited, err := s.GetProduct(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, unlimited.Unlimited())
}

func TestDeleteTransactionReleasesKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		require.NoError(t, tx.InsertTransaction(ctx, sampleTxn("20250115001")))
		return tx.SaveIdempotencyKey(ctx, "k1", "20250115001")
	}))

	require.NoError(t, s.DeleteTransaction(ctx, "20250115001"))
	require.ErrorIs(t, s.DeleteTransaction(ctx, "20250115001"), transactions.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		_, found, err := tx.FindIdempotencyKey(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestProductFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, catalog.Product{ID: "1", Name: "Kopi Susu", Category: "Minuman"}))
	require.NoError(t, s.CreateProduct(ctx, catalog.Product{ID: "2", Name: "Roti Bakar", Category: "Makanan"}))
	require.NoError(t, s.CreateProduct(ctx, catalog.Product{ID: "3", Name: "Kopi Hitam", Category: "Minuman"}))

	drinks, err := s.ListProducts(ctx, catalog.ListFilter{Category: "minuman"})
	require.NoError(t, err)
	require.Len(t, drinks, 2)
	assert.Equal(t, "Kopi Hitam", drinks[0].Name)

	found, err := s.ListProducts(ctx, catalog.ListFilter{Search: "roti"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "2", found[0].ID)
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, users.User{ID: "u1", Username: "admin", Role: "admin", Active: true}))
	require.ErrorIs(t, s.CreateUser(ctx, users.User{ID: "u2", Username: "admin"}), users.ErrUsernameTaken)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u, err := s.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = s.GetUser(ctx, "nope")
	require.ErrorIs(t, err, users.ErrNotFound)
}
