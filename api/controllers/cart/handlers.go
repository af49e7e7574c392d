package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/api/validators"
	cartsvc "github.com/angelmondragon/shopflow-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// Store is the cart surface the handlers drive.
type Store interface {
	Load(ctx context.Context, owner cartsvc.Owner) (cartsvc.Cart, error)
	Add(ctx context.Context, owner cartsvc.Owner, productID uuid.UUID, qty int) (cartsvc.Cart, error)
	SetQuantity(ctx context.Context, owner cartsvc.Owner, itemID uuid.UUID, qty int) (cartsvc.Cart, error)
	Remove(ctx context.Context, owner cartsvc.Owner, itemID uuid.UUID) (cartsvc.Cart, error)
	Clear(ctx context.Context, owner cartsvc.Owner) error
	Totals(c cartsvc.Cart, distanceKm *float64) cartsvc.Totals
	MergeAnonymous(ctx context.Context, owner cartsvc.Owner) (cartsvc.Cart, cartsvc.MergeResult, error)
}

// CartFetch returns the owner's cart with totals. An optional distance_km
// query parameter prices shipping.
func CartFetch(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		distance, err := parseDistance(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := store.Load(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(current, store.Totals(current, distance)))
	}
}

// CartAddItem adds a product line or bumps an existing one.
func CartAddItem(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := store.Add(r.Context(), owner, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(updated, store.Totals(updated, nil)))
	}
}

// CartSetQuantity replaces a line's quantity. Zero removes the line.
func CartSetQuantity(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := store.SetQuantity(r.Context(), owner, itemID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(updated, store.Totals(updated, nil)))
	}
}

// CartRemoveItem drops a line.
func CartRemoveItem(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := store.Remove(r.Context(), owner, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(updated, store.Totals(updated, nil)))
	}
}

func CartClear(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Clear(r.Context(), owner); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CartMerge folds the session's anonymous cart into the signed-in user's cart.
func CartMerge(store Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !owner.Authenticated() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to merge a cart"))
			return
		}

		merged, result, err := store.MergeAnonymous(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mergeView{
			cartView: newCartView(merged, store.Totals(merged, nil)),
			Merge:    result,
		})
	}
}
