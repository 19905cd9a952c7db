package checkout

import (
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// Form is the checkout form submitted by the shopper.
type Form struct {
	FullName string        `json:"full_name" validate:"required,max=120"`
	Email    string        `json:"email" validate:"required,email"`
	Phone    string        `json:"phone" validate:"required,min=7,max=20"`
	Address  types.Address `json:"address"`
	Notes    string        `json:"notes,omitempty" validate:"omitempty,max=500"`
}

func (f Form) normalize() Form {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Phone = strings.TrimSpace(f.Phone)
	f.Notes = strings.TrimSpace(f.Notes)
	f.Address = f.Address.Normalize()
	return f
}

// Order is the order accepted by the commerce backend.
type Order struct {
	ID        string          `json:"id"`
	Number    string          `json:"number,omitempty"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

type orderContact struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type orderLine struct {
	ItemID      string          `json:"item_id"`
	ProductID   string          `json:"product_id"`
	ContainerID string          `json:"container_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderRequest is the payload posted to the commerce backend.
type OrderRequest struct {
	CartID          string          `json:"cart_id"`
	SessionID       string          `json:"session_id"`
	UserID          string          `json:"user_id,omitempty"`
	Contact         orderContact    `json:"contact"`
	ShippingAddress types.Address   `json:"shipping_address"`
	Notes           string          `json:"notes,omitempty"`
	Lines           []orderLine     `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
}
