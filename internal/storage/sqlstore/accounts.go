package sqlstore

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/users"
)

// ListProducts returns products matching filter.
func (s *Store) ListProducts(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, error) {
	q := s.db.WithContext(ctx).Model(&productRow{})
	if filter.Category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(filter.Category))
	}
	if filter.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	var rows []productRow
	if err := q.Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Product, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

// GetProduct returns one product.
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	var row productRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return row.domain(), err
}

// CreateProduct stores a new product.
func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	row := toProductRow(p)
	return s.db.WithContext(ctx).Create(&row).Error
}

// UpdateProduct replaces a stored product. Naming the columns makes gorm
// write zero values and NULL stock.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	row := toProductRow(p)
	res := s.db.WithContext(ctx).Model(&productRow{ID: p.ID}).Select("name", "price", "category", "stock", "image", "updated_at").Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&productRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error
	return int(n), err
}

// ListUsers returns accounts ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]users.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]users.User, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

// GetUser returns one account.
func (s *Store) GetUser(ctx context.Context, id string) (users.User, error) {
	return s.oneUser(ctx, "id = ?", id)
}

// FindByUsername returns the account with username.
func (s *Store) FindByUsername(ctx context.Context, username string) (users.User, error) {
	return s.oneUser(ctx, "username = ?", username)
}

func (s *Store) oneUser(ctx context.Context, where string, arg string) (users.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where(where, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, users.ErrNotFound
	}
	return row.domain(), err
}

// CreateUser stores a new account.
func (s *Store) CreateUser(ctx context.Context, u users.User) error {
	row := toUserRow(u)
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return users.ErrUsernameTaken
	}
	return err
}

// UpdateUser replaces a stored account.
func (s *Store) UpdateUser(ctx context.Context, u users.User) error {
	row := toUserRow(u)
	res := s.db.WithContext(ctx).Model(&userRow{ID: u.ID}).
		Select("password_hash", "full_name", "role", "active", "updated_at").Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return users.ErrNotFound
	}
	return nil
}
