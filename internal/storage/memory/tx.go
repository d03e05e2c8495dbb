package memory

import (
	"context"
	"fmt"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/transactions"
)

// txRepository stages writes of one unit; commit applies them under the
// store lock already held by unit.
type txRepository struct {
	store    *Store
	counters map[string]int
	txns     map[string]transactions.Transaction
	items    map[string][]transactions.LineItem
	keys     map[string]string
	stock    map[string]int64
}

func (tx *txRepository) NextSequence(ctx context.Context, businessDate string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	current, ok := tx.counters[businessDate]
	if !ok {
		current = tx.store.counters[businessDate]
	}
	current++
	tx.counters[businessDate] = current
	return current, nil
}

func (tx *txRepository) FindIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	if id, ok := tx.keys[key]; ok {
		return id, true, nil
	}
	id, ok := tx.store.keys[key]
	return id, ok, nil
}

func (tx *txRepository) SaveIdempotencyKey(_ context.Context, key, transactionID string) error {
	if _, ok := tx.keys[key]; ok {
		return transactions.ErrDuplicateIdempotencyKey
	}
	if _, ok := tx.store.keys[key]; ok {
		return transactions.ErrDuplicateIdempotencyKey
	}
	tx.keys[key] = transactionID
	return nil
}

func (tx *txRepository) InsertTransaction(_ context.Context, t transactions.Transaction) error {
	if _, ok := tx.store.txns[t.ID]; ok {
		return fmt.Errorf("memory: duplicate transaction id %s", t.ID)
	}
	if _, ok := tx.txns[t.ID]; ok {
		return fmt.Errorf("memory: duplicate transaction id %s", t.ID)
	}
	t.Items = nil
	tx.txns[t.ID] = t
	return nil
}

func (tx *txRepository) InsertItems(_ context.Context, transactionID string, items []transactions.LineItem) error {
	if _, ok := tx.txns[transactionID]; !ok {
		return fmt.Errorf("memory: items reference unknown transaction %s", transactionID)
	}
	tx.items[transactionID] = append(tx.items[transactionID], cloneItems(items)...)
	return nil
}

func (tx *txRepository) DecrementStock(_ context.Context, productID string, qty int64) error {
	p, ok := tx.store.products[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.Stock == nil {
		return nil
	}
	current, ok := tx.stock[productID]
	if !ok {
		current = *p.Stock
	}
	if current < qty {
		return catalog.ErrInsufficientStock
	}
	tx.stock[productID] = current - qty
	return nil
}

func (tx *txRepository) commit() {
	s := tx.store
	for date, seq := range tx.counters {
		s.counters[date] = seq
	}
	for id, t := range tx.txns {
		s.txns[id] = t
		s.items[id] = tx.items[id]
	}
	for key, id := range tx.keys {
		s.keys[key] = id
	}
	for id, remaining := range tx.stock {
		p := s.products[id]
		stock := remaining
		p.Stock = &stock
		s.products[id] = p
	}
}
