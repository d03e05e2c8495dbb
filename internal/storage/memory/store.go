// Package memory is an in-process storage backend for development and
// tests. Every atomic unit holds the store-wide write lock until it commits,
// and writes are staged so a failed unit leaves no trace. Data does not
// survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
)

// Store keeps all POS state in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	counters map[string]int
	txns     map[string]transactions.Transaction
	items    map[string][]transactions.LineItem
	keys     map[string]string
	products map[string]catalog.Product
	users    map[string]users.User
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		counters: make(map[string]int),
		txns:     make(map[string]transactions.Transaction),
		items:    make(map[string][]transactions.LineItem),
		keys:     make(map[string]string),
		products: make(map[string]catalog.Product),
		users:    make(map[string]users.User),
	}
}

// WithTx runs fn as one atomic unit.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	return s.unit(ctx, func(ctx context.Context, tx *txRepository) error { return fn(ctx, tx) })
}

// WithCounter runs fn as one atomic unit exposing only the counter.
func (s *Store) WithCounter(ctx context.Context, fn func(context.Context, sequence.Counter) error) error {
	return s.unit(ctx, func(ctx context.Context, tx *txRepository) error { return fn(ctx, tx) })
}

func (s *Store) unit(ctx context.Context, fn func(context.Context, *txRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txRepository{
		store:    s,
		counters: make(map[string]int),
		txns:     make(map[string]transactions.Transaction),
		items:    make(map[string][]transactions.LineItem),
		keys:     make(map[string]string),
		stock:    make(map[string]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// A unit whose deadline passed before commit rolls back.
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// CounterValue reports the last sequence for a business date.
func (s *Store) CounterValue(businessDate string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[businessDate]
}

// ListTransactions returns headers matching filter with their items.
func (s *Store) ListTransactions(_ context.Context, filter transactions.ListFilter) ([]transactions.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transactions.Transaction, 0, len(s.txns))
	for id, t := range s.txns {
		if !filter.Matches(t) {
			continue
		}
		t.Items = cloneItems(s.items[id])
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return transactions.Less(out[i], out[j]) })
	return out, nil
}

// GetTransaction returns one transaction with items.
func (s *Store) GetTransaction(_ context.Context, id string) (transactions.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok {
		return transactions.Transaction{}, transactions.ErrNotFound
	}
	t.Items = cloneItems(s.items[id])
	return t, nil
}

// UpdateTransactionStatus sets the status of a stored sale.
func (s *Store) UpdateTransactionStatus(_ context.Context, id string, status transactions.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return transactions.ErrNotFound
	}
	t.Status = status
	s.txns[id] = t
	return nil
}

// DeleteTransaction removes a sale, its items and any key bound to it.
func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[id]; !ok {
		return transactions.ErrNotFound
	}
	delete(s.txns, id)
	delete(s.items, id)
	for key, bound := range s.keys {
		if bound == id {
			delete(s.keys, key)
		}
	}
	return nil
}

// ListProducts returns products matching filter.
func (s *Store) ListProducts(_ context.Context, filter catalog.ListFilter) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetProduct returns one product.
func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return cloneProduct(p), nil
}

// CreateProduct stores a new product.
func (s *Store) CreateProduct(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return fmt.Errorf("memory: product %s already exists", p.ID)
	}
	s.products[p.ID] = cloneProduct(p)
	return nil
}

// UpdateProduct replaces a stored product.
func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return catalog.ErrNotFound
	}
	s.products[p.ID] = cloneProduct(p)
	return nil
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// ListUsers returns accounts ordered by username.
func (s *Store) ListUsers(_ context.Context) ([]users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]users.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// GetUser returns one account.
func (s *Store) GetUser(_ context.Context, id string) (users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

// FindByUsername returns the account with username.
func (s *Store) FindByUsername(_ context.Context, username string) (users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

// CreateUser stores a new account.
func (s *Store) CreateUser(_ context.Context, u users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return users.ErrUsernameTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

// UpdateUser replaces a stored account.
func (s *Store) UpdateUser(_ context.Context, u users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return users.ErrNotFound
	}
	s.users[u.ID] = u
	return nil
}

func cloneItems(items []transactions.LineItem) []transactions.LineItem {
	out := make([]transactions.LineItem, len(items))
	for i, item := range items {
		if item.ProductID != nil {
			id := *item.ProductID
			item.ProductID = &id
		}
		out[i] = item
	}
	return out
}

func cloneProduct(p catalog.Product) catalog.Product {
	if p.Stock != nil {
		stock := *p.Stock
		p.Stock = &stock
	}
	return p
}
