package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gazel/SecureKasir/internal/shared"
)

// Repository persists products.
type Repository interface {
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// ChangeNotifier is told when the catalog changes so cached views can be
// refreshed.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}

// Service coordinates catalog operations.
type Service struct {
	repo    Repository
	changes ChangeNotifier
	clock   func() time.Time
}

// NewService builds Service. changes may be nil.
func NewService(repo Repository, changes ChangeNotifier) *Service {
	return &Service{repo: repo, changes: changes, clock: func() time.Time { return time.Now().UTC() }}
}

// Find returns a single product or ErrNotFound.
func (s *Service) Find(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, ErrNotFound
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

// List returns products ordered by category then name.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

// Categories returns distinct non-blank categories in alphabetical order.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	products, err := s.repo.ListProducts(ctx, ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, p := range products {
		c := strings.TrimSpace(p.Category)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

// Create adds a product with a generated id.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	in = in.normalize()
	if err := shared.ValidateStruct(in); err != nil {
		return Product{}, err
	}
	now := s.clock()
	p := Product{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Price:     in.Price,
		Category:  in.Category,
		Stock:     in.Stock,
		Image:     in.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return Product{}, fmt.Errorf("catalog: create product: %w", err)
	}
	s.notify(ctx)
	return p, nil
}

// Update replaces the editable fields of an existing product.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (Product, error) {
	in = in.normalize()
	if err := shared.ValidateStruct(in); err != nil {
		return Product{}, err
	}
	existing, err := s.Find(ctx, id)
	if err != nil {
		return Product{}, err
	}
	existing.Name = in.Name
	existing.Price = in.Price
	existing.Category = in.Category
	existing.Stock = in.Stock
	existing.Image = in.Image
	existing.UpdatedAt = s.clock()
	if err := s.repo.UpdateProduct(ctx, existing); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: update product: %w", err)
	}
	s.notify(ctx)
	return existing, nil
}

// Delete removes a product. Historical line items keep their copied name
// and price.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	s.notify(ctx)
	return nil
}

func (s *Service) notify(ctx context.Context) {
	if s.changes == nil {
		return
	}
	_ = s.changes.Bump(ctx)
}
