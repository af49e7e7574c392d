package controllers

import (
	"net/http"

	"github.com/angelmondragon/shopflow-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/shopflow-backend/internal/checkout"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

type checkoutRequest struct {
	RecipientName string   `json:"recipient_name" validate:"required,notblank,max=120"`
	Phone         string   `json:"phone" validate:"required,phone"`
	Address       string   `json:"address" validate:"required,notblank,max=500"`
	Note          *string  `json:"note" validate:"omitempty,max=500"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,longitude"`
	PlaceID       string   `json:"place_id" validate:"max=512"`
	DistanceKm    *float64 `json:"distance_km" validate:"omitempty,gte=0"`
	PaymentMethod string   `json:"payment_method" validate:"required,oneof=COD QR"`
}

func (p checkoutRequest) input() checkoutsvc.CheckoutInput {
	var note *string
	if p.Note != nil {
		trimmed := validators.SanitizeString(*p.Note, 500)
		note = &trimmed
	}
	return checkoutsvc.CheckoutInput{
		Shipping: orders.ShippingInfo{
			RecipientName: validators.SanitizeString(p.RecipientName, 120),
			Phone:         validators.SanitizeString(p.Phone, 20),
			Address:       validators.SanitizeString(p.Address, 500),
			Note:          note,
			Latitude:      p.Latitude,
			Longitude:     p.Longitude,
			DistanceKm:    p.DistanceKm,
		},
		PlaceID:       validators.SanitizeString(p.PlaceID, 512),
		PaymentMethod: enums.PaymentMethod(p.PaymentMethod),
	}
}

// Checkout places an order from the signed-in shopper's cart. A QR order
// answers with the provider pay url and pending_confirmation set.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), owner, payload.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// RetryOrderPayment starts a new QR attempt for an order still awaiting payment.
func RetryOrderPayment(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RetryPayment(r.Context(), owner, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
