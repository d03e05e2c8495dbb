package transactions

// ItemInput is one line of a checkout payload.
type ItemInput struct {
	ProductID *string `json:"productId"`
	Name      string  `json:"name" validate:"required,max=200"`
	Price     int64   `json:"price" validate:"gte=0"`
	Quantity  int64   `json:"quantity" validate:"gt=0"`
	Subtotal  int64   `json:"subtotal"`
}

// CreateRequest is the checkout payload accepted by POST /transactions.
// Subtotals, total and change are recomputed server side.
type CreateRequest struct {
	Items         []ItemInput   `json:"items" validate:"required,min=1,max=1000,dive"`
	Subtotal      int64         `json:"subtotal"`
	Discount      int64         `json:"discount" validate:"gte=0"`
	Total         *int64        `json:"total" validate:"required,gte=0"`
	Date          string        `json:"date"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required,oneof=cash qris cancelled"`
	CashReceived  int64         `json:"cashReceived" validate:"gte=0"`
	Change        int64         `json:"change"`
	CustomerName  string        `json:"customerName" validate:"max=120"`
	Note          string        `json:"note" validate:"max=500"`
	Status        Status        `json:"status" validate:"omitempty,oneof=SUCCESS CANCELLED"`
}

// CreateResult is returned after a successful checkout.
type CreateResult struct {
	ID       string `json:"id"`
	Replayed bool   `json:"-"`
}

// CreateResponse is the wire shape of a successful checkout.
type CreateResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}
