package checkout

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/remote"
)

// OrderPlacer submits orders to the commerce backend.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

type cartSource interface {
	View(ctx context.Context, sessionID string) (*cart.View, error)
	Refresh(ctx context.Context, sessionID string) (*cart.View, error)
	MarkChanged(ctx context.Context, sessionID string) error
}

// Service runs the checkout screen.
type Service interface {
	Summary(ctx context.Context, sessionID string) (*cart.View, error)
	PlaceOrder(ctx context.Context, sessionID, userID string, form Form) (*Order, error)
}

type service struct {
	carts  cartSource
	orders OrderPlacer
	logg   *logger.Logger
}

// NewService builds the checkout service.
func NewService(carts cartSource, orders OrderPlacer, logg *logger.Logger) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order placer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{carts: carts, orders: orders, logg: logg}, nil
}

func (s *service) Summary(ctx context.Context, sessionID string) (*cart.View, error) {
	view, err := s.carts.View(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if view.Empty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	return view, nil
}

// PlaceOrder prices the authoritative cart and submits it. The count signal is bumped
// afterwards so the next cart view picks up the backend's post-order cart.
func (s *service) PlaceOrder(ctx context.Context, sessionID, userID string, form Form) (*Order, error) {
	view, err := s.carts.Refresh(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if view.Empty || view.Summary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	form = form.normalize()
	req := OrderRequest{
		CartID:    view.CartID,
		SessionID: sessionID,
		UserID:    strings.TrimSpace(userID),
		Contact: orderContact{
			FullName: form.FullName,
			Email:    form.Email,
			Phone:    form.Phone,
		},
		ShippingAddress: form.Address,
		Notes:           form.Notes,
		Lines:           make([]orderLine, 0, len(view.Lines)),
		Subtotal:        view.Summary.Subtotal,
		Shipping:        view.Summary.Shipping,
		Total:           view.Summary.Total,
	}
	for _, line := range view.Lines {
		req.Lines = append(req.Lines, orderLine{
			ItemID:      line.ID,
			ProductID:   line.ProductID,
			ContainerID: line.ContainerID,
			Quantity:    line.Quantity,
			UnitPrice:   line.Product.Price,
			LineTotal:   line.LineTotal,
		})
	}

	ctx = s.logg.WithCartID(ctx, view.CartID)
	order, err := s.orders.CreateOrder(ctx, req)
	if err != nil {
		s.logg.Error(ctx, "checkout.place_order.failed", err)
		return nil, err
	}

	if err := s.carts.MarkChanged(ctx, sessionID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout.cart_signal_failed")
	}
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID), "checkout.order_placed")
	return order, nil
}

type doer interface {
	Do(ctx context.Context, req remote.Request, out any) error
}

type httpOrders struct {
	client doer
}

// NewOrderPlacer builds an OrderPlacer over the commerce backend client.
func NewOrderPlacer(client *remote.Client) (OrderPlacer, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "remote client required")
	}
	return &httpOrders{client: client}, nil
}

func (o *httpOrders) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var out Order
	if err := o.client.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/orders",
		Body:      req,
		Operation: "create_order",
	}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order service returned no order id")
	}
	return &out, nil
}
