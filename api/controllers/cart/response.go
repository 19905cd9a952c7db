package cart

import (
	cartdto "github.com/angelmondragon/storefront/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/money"
)

func newCartResponse(view *cart.View) cartdto.Cart {
	if view == nil || view.Empty {
		out := cartdto.Cart{Empty: true, Lines: []cartdto.CartLine{}}
		if view != nil {
			out.CartID = view.CartID
		}
		return out
	}

	lines := make([]cartdto.CartLine, 0, len(view.Lines))
	for _, line := range view.Lines {
		lines = append(lines, cartdto.CartLine{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ContainerID: line.ContainerID,
			Name:        line.Product.Name,
			Image:       line.Product.Image,
			UnitPrice:   money.Format(line.Product.Price),
			Quantity:    line.Quantity,
			Units:       line.Units.String(),
			LineTotal:   money.Format(line.LineTotal),
		})
	}

	out := cartdto.Cart{CartID: view.CartID, Lines: lines}
	if s := view.Summary; s != nil {
		out.Summary = &cartdto.Summary{
			Subtotal:     money.Format(s.Subtotal),
			Shipping:     money.Format(s.Shipping),
			Total:        money.Format(s.Total),
			FreeShipping: s.FreeShipping,
			ItemCount:    s.ItemCount,
		}
	}
	return out
}
