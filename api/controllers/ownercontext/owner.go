package ownercontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/api/middleware"
	"github.com/angelmondragon/shopflow-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

// ResolveOwner builds the cart owner from the signed-in user and the cart
// session header. At least one of the two must be present.
func ResolveOwner(r *http.Request) (cart.Owner, error) {
	var owner cart.Owner
	if r == nil {
		return owner, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	ctx := r.Context()
	if raw := middleware.UserIDFromContext(ctx); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return owner, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		owner.UserID = &id
	}
	owner.SessionID = middleware.CartSessionFromContext(ctx)
	if !owner.Authenticated() && owner.SessionID == "" {
		return owner, pkgerrors.New(pkgerrors.CodeValidation, "sign in or send a cart session").WithDetails(map[string]any{
			"header": middleware.CartSessionHeader,
		})
	}
	return owner, nil
}

// ResolveUserID returns the signed-in user's id.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	if r == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
