package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/angelmondragon/storefront/pkg/remote"
)

// Remote reads the catalog from the commerce backend.
type Remote interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListCategoryProducts(ctx context.Context, slug string, page pagination.Page) (*Category, []Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
}

type doer interface {
	Do(ctx context.Context, req remote.Request, out any) error
}

type httpRemote struct {
	client doer
}

// NewRemote builds a catalog Remote over the commerce backend client.
func NewRemote(client *remote.Client) (Remote, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "remote client required")
	}
	return &httpRemote{client: client}, nil
}

func (r *httpRemote) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := r.client.Do(ctx, remote.Request{
		Method:    http.MethodGet,
		Path:      "/categories",
		Operation: "list_categories",
	}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Category{}
	}
	return out, nil
}

type categoryProductsResponse struct {
	Category *Category `json:"category"`
	Products []Product `json:"products"`
}

func (r *httpRemote) ListCategoryProducts(ctx context.Context, slug string, page pagination.Page) (*Category, []Product, error) {
	var out categoryProductsResponse
	err := r.client.Do(ctx, remote.Request{
		Method: http.MethodGet,
		Path:   "/categories/" + url.PathEscape(slug) + "/products",
		Query: url.Values{
			"limit":  {strconv.Itoa(page.Limit)},
			"offset": {strconv.Itoa(page.Offset)},
		},
		Operation: "list_category_products",
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	if out.Products == nil {
		out.Products = []Product{}
	}
	return out.Category, out.Products, nil
}

func (r *httpRemote) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out Product
	if err := r.client.Do(ctx, remote.Request{
		Method:    http.MethodGet,
		Path:      "/products/" + url.PathEscape(id),
		Operation: "get_product",
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
