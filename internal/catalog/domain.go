package catalog

import "time"

// Product is a sellable catalog entry. A nil Stock means unlimited.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Category  string    `json:"category"`
	Stock     *int64    `json:"stock"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Unlimited reports whether stock is not tracked for the product.
func (p Product) Unlimited() bool {
	return p.Stock == nil
}

// ListFilter narrows product listings.
type ListFilter struct {
	Category string
	Search   string
}
