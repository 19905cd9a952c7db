package cartdto

// AddItemRequest adds a product to the session cart. Quantity is in hundredths of a unit;
// when omitted a single unit is added.
type AddItemRequest struct {
	ProductID   string `json:"product_id" validate:"required,max=64"`
	ContainerID string `json:"container_id,omitempty" validate:"omitempty,max=64"`
	Quantity    int    `json:"quantity,omitempty" validate:"omitempty,min=0"`
}

// ChangeQuantityRequest sets a line's quantity. Values below one unit are clamped.
type ChangeQuantityRequest struct {
	Quantity int `json:"quantity"`
}
