package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service exposes catalog browsing.
type Service interface {
	Categories(ctx context.Context) ([]Category, error)
	CategoryProducts(ctx context.Context, slug string, params pagination.Params) (*ProductPage, error)
	Product(ctx context.Context, id string) (*Product, error)
}

type service struct {
	remote Remote
}

// NewService builds the catalog service.
func NewService(remote Remote) (Service, error) {
	if remote == nil {
		return nil, fmt.Errorf("catalog remote required")
	}
	return &service{remote: remote}, nil
}

func (s *service) Categories(ctx context.Context) ([]Category, error) {
	return s.remote.ListCategories(ctx)
}

func (s *service) CategoryProducts(ctx context.Context, slug string, params pagination.Params) (*ProductPage, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category slug")
	}
	page, err := params.Resolve()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	category, products, err := s.remote.ListCategoryProducts(ctx, slug, page)
	if err != nil {
		return nil, err
	}
	return &ProductPage{
		Category:   category,
		Products:   products,
		NextCursor: page.NextCursor(len(products)),
	}, nil
}

func (s *service) Product(ctx context.Context, id string) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.remote.GetProduct(ctx, id)
}
