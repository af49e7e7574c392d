package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/shopflow-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/api/validators"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/shipping"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

type shippingService interface {
	Quote(ctx context.Context, dest shipping.Destination) (shipping.Quote, error)
	LastInfo(ctx context.Context, session string) (*orders.ShippingInfo, error)
}

type shippingQuoteRequest struct {
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
	PlaceID    string   `json:"place_id" validate:"max=512"`
	DistanceKm *float64 `json:"distance_km" validate:"omitempty,gte=0"`
}

// ShippingQuote prices delivery to a destination. Provider failures fall back
// to the default fee and are not errors.
func ShippingQuote(svc shippingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload shippingQuoteRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), shipping.Destination{
			Latitude:   payload.Latitude,
			Longitude:  payload.Longitude,
			PlaceID:    validators.SanitizeString(payload.PlaceID, 512),
			DistanceKm: payload.DistanceKm,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// ShippingInfo returns the shipping info used on the owner's last order so the
// checkout form can be prefilled. Data is null when nothing was saved.
func ShippingInfo(svc shippingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		info, err := svc.LastInfo(r.Context(), owner.StateSession())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}
