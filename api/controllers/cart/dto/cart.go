package cartdto

// Cart is the rendered cart page.
type Cart struct {
	Empty   bool       `json:"empty"`
	CartID  string     `json:"cart_id,omitempty"`
	Lines   []CartLine `json:"lines"`
	Summary *Summary   `json:"summary,omitempty"`
}

type CartLine struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ContainerID string `json:"container_id,omitempty"`
	Name        string `json:"name"`
	Image       string `json:"image,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Units       string `json:"units"`
	LineTotal   string `json:"line_total"`
}

// Summary holds the order summary panel. Amounts are formatted to two decimals.
type Summary struct {
	Subtotal     string `json:"subtotal"`
	Shipping     string `json:"shipping"`
	Total        string `json:"total"`
	FreeShipping bool   `json:"free_shipping"`
	ItemCount    int    `json:"item_count"`
}

type Count struct {
	Count int `json:"count"`
}

// Pending answers a mutation that went through when the refreshed cart could not be
// rendered. Clients fetch the cart again.
type Pending struct {
	Stale bool `json:"stale"`
}
