package catalog

import (
	"errors"
	"fmt"

	"github.com/Gazel/SecureKasir/internal/shared"
)

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
	// ErrInsufficientStock is returned when a sale exceeds finite stock.
	ErrInsufficientStock = errors.New("insufficient stock")
)
