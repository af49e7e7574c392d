// Package shipping turns a delivery destination into a route distance and a
// shipping fee, and remembers the shopper's last-used shipping info.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/shopflow-backend/internal/cart"
	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/maps"
)

const breakerName = "google-routes"

// maxClientDistanceKm bounds a client-supplied distance to half the Earth's
// circumference.
const maxClientDistanceKm = 20040

// Router computes a driving route between two points.
type Router interface {
	ComputeRoute(ctx context.Context, origin, destination maps.LatLng) (*maps.Route, error)
}

// PlaceResolver turns a place id into coordinates.
type PlaceResolver interface {
	ResolvePlace(ctx context.Context, placeID string) (*maps.Place, error)
}

// Destination is where the order ships. Coordinates win over a place id; a
// client-measured distance is used only when neither is given.
type Destination struct {
	Latitude   *float64
	Longitude  *float64
	PlaceID    string
	DistanceKm *float64
}

// Quote is the fee for one destination.
type Quote struct {
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Fee             int64    `json:"fee"`
	Source          string   `json:"source"`
}

// Params wires a Service. Router and Places may be nil when no maps key is
// configured; every quote then bills the default fee.
type Params struct {
	Origin maps.LatLng
	Router Router
	Places PlaceResolver
	Fees   cart.FeeSchedule
	Local  localstate.Store
	Maps   config.GoogleMapsConfig
	Logger *logger.Logger
}

// Service quotes shipping fees. A failing distance lookup never blocks checkout.
type Service struct {
	origin  maps.LatLng
	router  Router
	places  PlaceResolver
	fees    cart.FeeSchedule
	local   localstate.Store
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*maps.Route]
	logg    *logger.Logger
}

func NewService(p Params) (*Service, error) {
	if p.Fees == nil {
		return nil, fmt.Errorf("fee schedule required")
	}
	if p.Local == nil {
		return nil, fmt.Errorf("local state store required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	timeout := p.Maps.RouteTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	failures := p.Maps.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	logg := p.Logger
	breaker := gobreaker.NewCircuitBreaker[*maps.Route](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     p.Maps.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a bad destination says nothing about the provider's health
			return err == nil || pkgerrors.IsCode(err, pkgerrors.CodeValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logg.Warn(context.Background(), fmt.Sprintf("shipping.breaker_state_changed: %s %s -> %s", name, from, to))
		},
	})
	return &Service{
		origin:  p.Origin,
		router:  p.Router,
		places:  p.Places,
		fees:    p.Fees,
		local:   p.Local,
		timeout: timeout,
		breaker: breaker,
		logg:    p.Logger,
	}, nil
}

// Quote prices the destination. Only malformed input is an error; every
// provider failure degrades to the default fee.
func (s *Service) Quote(ctx context.Context, dest Destination) (Quote, error) {
	if err := dest.validate(); err != nil {
		return Quote{}, err
	}

	point, ok := s.resolve(ctx, dest)
	if ok {
		route, err := s.route(ctx, point)
		if err == nil {
			return s.priced(route.DistanceKm, &route.DurationMinutes), nil
		}
		s.logg.Warn(s.logg.WithField(ctx, "destination", fmt.Sprintf("%.6f,%.6f", point.Latitude, point.Longitude)),
			"shipping.route_lookup_failed: "+err.Error())
	}

	if dest.DistanceKm != nil {
		return s.priced(*dest.DistanceKm, nil), nil
	}
	return Quote{Fee: s.fees.DefaultFee(), Source: cart.ShippingSourceDefault}, nil
}

func (s *Service) priced(distanceKm float64, minutes *float64) Quote {
	km := math.Round(distanceKm*100) / 100
	return Quote{
		DistanceKm:      &km,
		DurationMinutes: minutes,
		Fee:             s.fees.Fee(distanceKm),
		Source:          cart.ShippingSourceDistance,
	}
}

func (s *Service) resolve(ctx context.Context, dest Destination) (maps.LatLng, bool) {
	if dest.Latitude != nil && dest.Longitude != nil {
		return maps.LatLng{Latitude: *dest.Latitude, Longitude: *dest.Longitude}, true
	}
	placeID := strings.TrimSpace(dest.PlaceID)
	if placeID == "" || s.places == nil {
		return maps.LatLng{}, false
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	place, err := s.places.ResolvePlace(lookupCtx, placeID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "place_id", placeID), "shipping.place_lookup_failed: "+err.Error())
		return maps.LatLng{}, false
	}
	return place.Location, true
}

func (s *Service) route(ctx context.Context, destination maps.LatLng) (*maps.Route, error) {
	if s.router == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "route provider not configured")
	}
	route, err := s.breaker.Execute(func() (*maps.Route, error) {
		routeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.router.ComputeRoute(routeCtx, s.origin, destination)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "route provider unavailable")
	}
	if err != nil {
		return nil, err
	}
	if route == nil || math.IsNaN(route.DistanceKm) || route.DistanceKm < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "route provider returned no distance")
	}
	return route, nil
}

// SaveInfo remembers the shipping info used for an order so the next checkout
// can be prefilled.
func (s *Service) SaveInfo(ctx context.Context, session string, info orders.ShippingInfo) error {
	if strings.TrimSpace(session) == "" {
		return nil
	}
	if err := s.local.Save(ctx, session, localstate.KeyShippingInfo, info); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save shipping info")
	}
	return nil
}

// LastInfo returns the saved shipping info, or nil when none is stored.
func (s *Service) LastInfo(ctx context.Context, session string) (*orders.ShippingInfo, error) {
	if strings.TrimSpace(session) == "" {
		return nil, nil
	}
	var info orders.ShippingInfo
	found, err := s.local.Load(ctx, session, localstate.KeyShippingInfo, &info)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping info")
	}
	if !found {
		return nil, nil
	}
	return &info, nil
}

func (d Destination) validate() error {
	if (d.Latitude == nil) != (d.Longitude == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude and longitude must be provided together")
	}
	if d.Latitude != nil {
		if !finite(*d.Latitude) || *d.Latitude < -90 || *d.Latitude > 90 {
			return pkgerrors.New(pkgerrors.CodeValidation, "latitude out of range")
		}
		if !finite(*d.Longitude) || *d.Longitude < -180 || *d.Longitude > 180 {
			return pkgerrors.New(pkgerrors.CodeValidation, "longitude out of range")
		}
	}
	if d.DistanceKm != nil {
		km := *d.DistanceKm
		if !finite(km) || km < 0 || km > maxClientDistanceKm {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("distance_km must be between 0 and %d", maxClientDistanceKm))
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
