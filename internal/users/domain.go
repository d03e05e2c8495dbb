package users

import (
	"fmt"
	"time"

	"github.com/Gazel/SecureKasir/internal/shared"
)

// User represents a POS operator account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = fmt.Errorf("user %w", shared.ErrNotFound)
	// ErrUsernameTaken is returned when a username is already registered.
	ErrUsernameTaken = fmt.Errorf("%w: username already taken", shared.ErrConflict)
	// ErrLastAdmin prevents disabling or demoting the only active admin.
	ErrLastAdmin = shared.Invalid("at least one active admin is required")
)
