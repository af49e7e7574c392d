package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/api/controllers/orders"
	"github.com/angelmondragon/shopflow-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/api/validators"
	internalorders "github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/pagination"
)

type adminConsole interface {
	List(ctx context.Context, filter internalorders.AdminFilter, params pagination.Params) (*internalorders.ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*internalorders.Order, error)
	SetFulfillmentStatus(ctx context.Context, adminID uuid.UUID, id uuid.UUID, next enums.FulfillmentStatus, reason string) (*internalorders.Order, bool, error)
	SetPaymentStatus(ctx context.Context, adminID uuid.UUID, id uuid.UUID, next enums.PaymentStatus, reason string) (*internalorders.Order, bool, error)
	Delete(ctx context.Context, adminID uuid.UUID, id uuid.UUID, confirmed bool) error
}

type statusChangeRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type statusChangeResponse struct {
	Order   *internalorders.Order `json:"order"`
	Changed bool                  `json:"changed"`
}

// AdminOrders lists every order, optionally filtered by status or owner.
func AdminOrders(console adminConsole, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if console == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin console unavailable"))
			return
		}

		params, err := orders.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := adminFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := console.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminOrderDetail(console adminConsole, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if console == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin console unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := console.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminSetFulfillmentStatus moves an order along its fulfillment lifecycle.
// Repeating the current status succeeds with changed=false.
func AdminSetFulfillmentStatus(console adminConsole, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if console == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin console unavailable"))
			return
		}
		adminID, orderID, payload, err := parseStatusChange(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next, err := enums.ParseFulfillmentStatus(strings.ToUpper(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment status"))
			return
		}

		order, changed, err := console.SetFulfillmentStatus(r.Context(), adminID, orderID, next, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusChangeResponse{Order: order, Changed: changed})
	}
}

// AdminSetPaymentStatus is the manual payment override.
func AdminSetPaymentStatus(console adminConsole, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if console == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin console unavailable"))
			return
		}
		adminID, orderID, payload, err := parseStatusChange(w, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next, err := enums.ParsePaymentStatus(strings.ToUpper(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		order, changed, err := console.SetPaymentStatus(r.Context(), adminID, orderID, next, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusChangeResponse{Order: order, Changed: changed})
	}
}

// AdminDeleteOrder hard-deletes an order. The request must carry confirm=true.
func AdminDeleteOrder(console adminConsole, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if console == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin console unavailable"))
			return
		}
		adminID, err := ownercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		confirmed, err := validators.ParseQueryBool(r, "confirm")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := console.Delete(r.Context(), adminID, orderID, confirmed); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseStatusChange(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, statusChangeRequest, error) {
	var payload statusChangeRequest
	adminID, err := ownercontext.ResolveUserID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, payload, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, payload, err
	}
	if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
		return uuid.Nil, uuid.Nil, payload, err
	}
	payload.Reason = validators.SanitizeString(payload.Reason, 500)
	return adminID, orderID, payload, nil
}

func adminFilterFromQuery(r *http.Request) (internalorders.AdminFilter, error) {
	var filter internalorders.AdminFilter
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("fulfillment_status")); raw != "" {
		status, err := enums.ParseFulfillmentStatus(strings.ToUpper(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment_status filter")
		}
		filter.FulfillmentStatus = &status
	}
	if raw := strings.TrimSpace(q.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(strings.ToUpper(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status filter")
		}
		filter.PaymentStatus = &status
	}
	if raw := strings.TrimSpace(q.Get("owner_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner_id filter")
		}
		filter.OwnerID = &id
	}
	return filter, nil
}
