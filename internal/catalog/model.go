package catalog

import "github.com/shopspring/decimal"

// Category groups products on the browse screens.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image,omitempty"`
}

// Product is a purchasable catalog entry.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
}

// ProductPage is one page of a category listing.
type ProductPage struct {
	Category   *Category `json:"category,omitempty"`
	Products   []Product `json:"products"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
