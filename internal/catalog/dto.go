package catalog

import "strings"

// ProductInput is the admin payload for create and update.
type ProductInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Price    int64  `json:"price" validate:"gte=0"`
	Category string `json:"category" validate:"max=60"`
	Stock    *int64 `json:"stock" validate:"omitempty,gte=0"`
	Image    string `json:"image" validate:"max=2048"`
}

func (in ProductInput) normalize() ProductInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Image = strings.TrimSpace(in.Image)
	return in
}
