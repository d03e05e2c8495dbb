package users

// CreateRequest is the admin payload for a new account.
type CreateRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"fullName" validate:"required,max=100"`
	Role     string `json:"role" validate:"required,oneof=admin cashier"`
}

// UpdateRequest patches an account; nil fields are left unchanged.
type UpdateRequest struct {
	FullName *string `json:"fullName" validate:"omitempty,min=1,max=100"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin cashier"`
	Active   *bool   `json:"active"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
}

// SeedConfig lists the accounts created on first boot.
type SeedConfig struct {
	AdminUsername   string
	AdminPassword   string
	CashierUsername string
	CashierPassword string
}
