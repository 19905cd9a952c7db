package cart

import (
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/shopspring/decimal"
)

// ShippingPolicy decides the shipping charge for a subtotal.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

// DefaultShippingPolicy ships free above 500 and charges 200 otherwise.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeThreshold: decimal.NewFromInt(500),
		FlatFee:       decimal.NewFromInt(200),
	}
}

// ShippingFor returns zero when subtotal is strictly greater than the threshold.
func (p ShippingPolicy) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// Summary holds the order totals shown next to the cart.
type Summary struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Shipping     decimal.Decimal `json:"shipping"`
	Total        decimal.Decimal `json:"total"`
	FreeShipping bool            `json:"free_shipping"`
	ItemCount    int             `json:"item_count"`
}

// LineView is a line item with its computed total.
type LineView struct {
	LineItem
	Units     decimal.Decimal `json:"units"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// View is the rendered cart. When Empty is set, Lines and Summary are absent.
type View struct {
	Empty   bool       `json:"empty"`
	CartID  string     `json:"cart_id,omitempty"`
	Lines   []LineView `json:"lines,omitempty"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Summarize renders a cart into a View using policy for shipping.
func Summarize(c *Cart, policy ShippingPolicy) View {
	if c.IsEmpty() {
		view := View{Empty: true}
		if c != nil {
			view.CartID = c.ID
		}
		return view
	}

	lines := make([]LineView, 0, len(c.Items))
	subtotal := decimal.Zero
	for _, item := range c.Items {
		units := money.Units(item.Quantity)
		// the subtotal sums unrounded lines and is rounded once below
		subtotal = subtotal.Add(item.Product.Price.Mul(units))
		lines = append(lines, LineView{
			LineItem:  item,
			Units:     units,
			LineTotal: money.LineTotal(item.Product.Price, item.Quantity),
		})
	}

	subtotal = money.Round(subtotal)
	shipping := money.Round(policy.ShippingFor(subtotal))
	return View{
		CartID: c.ID,
		Lines:  lines,
		Summary: &Summary{
			Subtotal:     subtotal,
			Shipping:     shipping,
			Total:        subtotal.Add(shipping),
			FreeShipping: shipping.IsZero(),
			ItemCount:    len(lines),
		},
	}
}
