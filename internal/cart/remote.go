package cart

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/remote"
)

// Remote is the authoritative cart store.
type Remote interface {
	FetchCart(ctx context.Context, sessionID string) (*Cart, error)
	AddItem(ctx context.Context, sessionID string, input AddItemInput) error
	UpdateItem(ctx context.Context, input UpdateItemInput) error
	DeleteItem(ctx context.Context, cartID, itemID string) error
}

// UpdateItemInput is the payload sent when a line quantity changes.
type UpdateItemInput struct {
	ItemID      string
	Quantity    int
	ContainerID string
	ProductID   string
}

type doer interface {
	Do(ctx context.Context, req remote.Request, out any) error
}

type httpRemote struct {
	client doer
}

// NewRemote builds a Remote backed by the commerce backend HTTP API.
func NewRemote(client *remote.Client) (Remote, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "remote client required")
	}
	return &httpRemote{client: client}, nil
}

type addItemPayload struct {
	ProductID   string `json:"product_id"`
	ContainerID string `json:"container_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

type updateItemPayload struct {
	Quantity    int    `json:"quantity"`
	ContainerID string `json:"container_id,omitempty"`
	ProductID   string `json:"product_id"`
}

func (r *httpRemote) FetchCart(ctx context.Context, sessionID string) (*Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	var out Cart
	err := r.client.Do(ctx, remote.Request{
		Method:    http.MethodGet,
		Path:      "/carts/session/" + url.PathEscape(sessionID),
		Operation: "fetch_cart",
	}, &out)
	if err != nil {
		if remote.StatusCode(err) == http.StatusNotFound {
			return &Cart{}, nil
		}
		return nil, err
	}
	if out.Items == nil {
		out.Items = []LineItem{}
	}
	return &out, nil
}

func (r *httpRemote) AddItem(ctx context.Context, sessionID string, input AddItemInput) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(input.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id and product id required")
	}
	return r.client.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/carts/session/" + url.PathEscape(sessionID) + "/items",
		Body: addItemPayload{
			ProductID:   input.ProductID,
			ContainerID: input.ContainerID,
			Quantity:    input.Quantity,
		},
		Operation: "add_item",
	}, nil)
}

func (r *httpRemote) UpdateItem(ctx context.Context, input UpdateItemInput) error {
	if strings.TrimSpace(input.ItemID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	return r.client.Do(ctx, remote.Request{
		Method: http.MethodPut,
		Path:   "/cart-items/" + url.PathEscape(input.ItemID),
		Body: updateItemPayload{
			Quantity:    input.Quantity,
			ContainerID: input.ContainerID,
			ProductID:   input.ProductID,
		},
		Operation: "update_item",
	}, nil)
}

func (r *httpRemote) DeleteItem(ctx context.Context, cartID, itemID string) error {
	if strings.TrimSpace(cartID) == "" || strings.TrimSpace(itemID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id and item id required")
	}
	return r.client.Do(ctx, remote.Request{
		Method:    http.MethodDelete,
		Path:      "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(itemID),
		Operation: "delete_item",
	}, nil)
}
