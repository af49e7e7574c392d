package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

const (
	defaultPlacesBaseURL        = "https://places.googleapis.com/v1"
	defaultRoutesBaseURL        = "https://routes.googleapis.com"
	placeResolveFieldMask       = "id,formattedAddress,location"
	computeRoutesFieldMask      = "routes.distanceMeters,routes.duration"
	errorBodyReadLimit    int64 = 1024
)

var errAPIKeyRequired = errors.New("google maps api key is required")

// Client talks to the Google Places and Routes APIs. Only the pieces needed
// to turn a delivery destination into a route distance are wrapped.
type Client struct {
	httpClient    *http.Client
	placesBaseURL string
	routesBaseURL string
	apiKey        string
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPlacesBaseURL overrides the Places API root.
func WithPlacesBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.placesBaseURL = trimmed
		}
	}
}

// WithRoutesBaseURL overrides the Routes API root.
func WithRoutesBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.routesBaseURL = trimmed
		}
	}
}

// NewClient builds the Google Maps client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}
	client := &Client{
		apiKey:        trimmedKey,
		placesBaseURL: defaultPlacesBaseURL,
		routesBaseURL: defaultRoutesBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is the resolved location of a Places id.
type Place struct {
	PlaceID          string
	FormattedAddress string
	Location         LatLng
}

// Route is the driving route summary between two points.
type Route struct {
	DistanceKm      float64
	DurationMinutes float64
}

// ResolvePlace fetches the coordinates and formatted address of placeID.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*Place, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	trimmed := strings.TrimSpace(placeID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place ID is required")
	}

	endpoint := fmt.Sprintf("%s/places/%s", strings.TrimRight(c.placesBaseURL, "/"), url.PathEscape(trimmed))
	var apiResp struct {
		ID               string `json:"id"`
		FormattedAddress string `json:"formattedAddress"`
		Location         LatLng `json:"location"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, placeResolveFieldMask, nil, &apiResp, "place resolve"); err != nil {
		return nil, err
	}
	return &Place{
		PlaceID:          apiResp.ID,
		FormattedAddress: apiResp.FormattedAddress,
		Location:         apiResp.Location,
	}, nil
}

type routeWaypoint struct {
	Location struct {
		LatLng LatLng `json:"latLng"`
	} `json:"location"`
}

func waypoint(p LatLng) routeWaypoint {
	var w routeWaypoint
	w.Location.LatLng = p
	return w
}

// ComputeRoute returns the driving distance from origin to destination.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination LatLng) (*Route, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	if !validCoordinate(origin) || !validCoordinate(destination) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}

	body := map[string]any{
		"origin":            waypoint(origin),
		"destination":       waypoint(destination),
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_UNAWARE",
		"units":             "METRIC",
	}
	endpoint := strings.TrimRight(c.routesBaseURL, "/") + "/directions/v2:computeRoutes"

	var apiResp struct {
		Routes []struct {
			DistanceMeters int64  `json:"distanceMeters"`
			Duration       string `json:"duration"`
		} `json:"routes"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, computeRoutesFieldMask, body, &apiResp, "compute routes"); err != nil {
		return nil, err
	}
	if len(apiResp.Routes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no route between origin and destination")
	}

	first := apiResp.Routes[0]
	route := &Route{DistanceKm: float64(first.DistanceMeters) / 1000}
	if secs, err := strconv.ParseFloat(strings.TrimSuffix(first.Duration, "s"), 64); err == nil {
		route.DurationMinutes = secs / 60
	}
	return route, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, fieldMask string, payload, out any, op string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+op+" request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+op+" request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), op+" request failed")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

func validCoordinate(p LatLng) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}
