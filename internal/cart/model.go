package cart

import (
	"github.com/shopspring/decimal"
)

// Product is the product snapshot embedded in a cart line.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// LineItem is one product entry in the remote cart. Quantity is stored in hundredths.
type LineItem struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ContainerID string  `json:"container_id,omitempty"`
	Quantity    int     `json:"quantity"`
	Product     Product `json:"product"`
}

// Cart is the remote cart bound to a session. An empty ID means no cart exists yet.
type Cart struct {
	ID    string     `json:"id"`
	Items []LineItem `json:"items"`
}

// IsEmpty reports whether the cart should render the empty view.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Item returns the line item with the given id.
func (c *Cart) Item(itemID string) (LineItem, bool) {
	if c == nil {
		return LineItem{}, false
	}
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return LineItem{}, false
}

// ItemCount returns the number of distinct line items.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// AddItemInput describes a product being placed into the session cart.
type AddItemInput struct {
	ProductID   string
	ContainerID string
	Quantity    int
}
