package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/users"
)

const selectProduct = `SELECT id, name, price, category, stock, image, created_at, updated_at FROM products`

// ListProducts returns products matching filter.
func (s *Store) ListProducts(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, error) {
	search := ""
	if filter.Search != "" {
		search = "%" + strings.ToLower(filter.Search) + "%"
	}
	rows, err := s.pool.Query(ctx, selectProduct+`
WHERE ($1 = '' OR lower(category) = lower($1))
  AND ($2 = '' OR lower(name) LIKE $2)
ORDER BY name`, filter.Category, search)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetProduct returns one product.
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	rows, err := s.pool.Query(ctx, selectProduct+` WHERE id = $1`, id)
	if err != nil {
		return catalog.Product{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, err
}

// CreateProduct stores a new product.
func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO products (id, name, price, category, stock, image, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, p.ID, p.Name, p.Price, p.Category, p.Stock, p.Image, p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdateProduct replaces a stored product.
func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	tag, err := s.pool.Exec(ctx, `UPDATE products SET name = $2, price = $3, category = $4, stock = $5, image = $6, updated_at = $7
WHERE id = $1`, p.ID, p.Name, p.Price, p.Category, p.Stock, p.Image, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteProduct removes a product. Past sales keep their copied name and
// price.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const selectUser = `SELECT id, username, password_hash, full_name, role, active, created_at, updated_at FROM users`

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

// ListUsers returns accounts ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]users.User, error) {
	rows, err := s.pool.Query(ctx, selectUser+` ORDER BY username`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUser)
}

// GetUser returns one account.
func (s *Store) GetUser(ctx context.Context, id string) (users.User, error) {
	return s.oneUser(ctx, selectUser+` WHERE id = $1`, id)
}

// FindByUsername returns the account with username.
func (s *Store) FindByUsername(ctx context.Context, username string) (users.User, error) {
	return s.oneUser(ctx, selectUser+` WHERE username = $1`, username)
}

func (s *Store) oneUser(ctx context.Context, query string, arg string) (users.User, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return users.User{}, err
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.User{}, users.ErrNotFound
	}
	return u, err
}

// CreateUser stores a new account.
func (s *Store) CreateUser(ctx context.Context, u users.User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, username, password_hash, full_name, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, u.ID, u.Username, u.PasswordHash, u.FullName, u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return users.ErrUsernameTaken
	}
	return err
}

// UpdateUser replaces a stored account.
func (s *Store) UpdateUser(ctx context.Context, u users.User) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2, full_name = $3, role = $4, active = $5, updated_at = $6
WHERE id = $1`, u.ID, u.PasswordHash, u.FullName, u.Role, u.Active, u.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
