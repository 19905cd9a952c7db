package cart

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	cartdto "github.com/angelmondragon/storefront/api/controllers/cart/dto"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	cartsvc "github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// CartView renders the session cart, refreshing it when the count signal moved.
func CartView(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		view, err := svc.View(r.Context(), sessionID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartRefresh forces a fetch of the remote cart.
func CartRefresh(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		view, err := svc.Refresh(r.Context(), sessionID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartCount exposes the item-count signal used by the header badge.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		count, err := svc.ItemCount(r.Context(), sessionID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.Count{Count: count})
	}
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		var body cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sid := sessionID(r)
		err := svc.AddItem(r.Context(), sid, cartsvc.AddItemInput{
			ProductID:   body.ProductID,
			ContainerID: body.ContainerID,
			Quantity:    body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeView(r.Context(), svc, logg, w, sid, http.StatusCreated)
	}
}

func CartChangeQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartdto.ChangeQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sid := sessionID(r)
		if err := svc.ChangeQuantity(r.Context(), sid, itemID, body.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeView(r.Context(), svc, logg, w, sid, http.StatusOK)
	}
}

func CartIncrement(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stepHandler(svc, logg, func(ctx context.Context, sid, itemID string) error {
		return svc.Increment(ctx, sid, itemID)
	})
}

func CartDecrement(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stepHandler(svc, logg, func(ctx context.Context, sid, itemID string) error {
		return svc.Decrement(ctx, sid, itemID)
	})
}

// CartRemoveItem deletes a line and returns the explicitly refreshed cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.RemoveItem(r.Context(), sessionID(r), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

func stepHandler(svc cartsvc.Service, logg *logger.Logger, step func(ctx context.Context, sid, itemID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sid := sessionID(r)
		if err := step(r.Context(), sid, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeView(r.Context(), svc, logg, w, sid, http.StatusOK)
	}
}

// writeView renders the cart after a mutation. The mutation bumped the count signal, so
// View refreshes from the remote instead of serving the stale snapshot. The mutation has
// already been applied remotely, so a failed render still answers status.
func writeView(ctx context.Context, svc cartsvc.Service, logg *logger.Logger, w http.ResponseWriter, sid string, status int) {
	view, err := svc.View(ctx, sid)
	if err != nil {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "cart.render_after_mutation_failed")
		}
		responses.WriteSuccessStatus(w, status, cartdto.Pending{Stale: true})
		return
	}
	responses.WriteSuccessStatus(w, status, newCartResponse(view))
}

func sessionID(r *http.Request) string {
	return middleware.CartSessionIDFromContext(r.Context())
}

func itemIDParam(r *http.Request) (string, error) {
	return validators.PathIdentifier("itemId", chi.URLParam(r, "itemId"))
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable")
}
