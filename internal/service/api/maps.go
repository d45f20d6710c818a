package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
)

// TravelMode selects the routing profile of directions and distance requests.
type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeWalking   TravelMode = "walking"
	ModeBicycling TravelMode = "bicycling"
	ModeTransit   TravelMode = "transit"
)

// MapsAPI covers /api/maps. Provider payloads the client only forwards are
// returned as raw JSON.
type MapsAPI struct {
	c *Client
}

// Place is either a free-form address or a coordinate pair.
type Place struct {
	Address string
	Point   *geomodel.Point
}

// AddressPlace returns a Place for a free-form address.
func AddressPlace(address string) Place { return Place{Address: address} }

// PointPlace returns a Place for coordinates.
func PointPlace(lat, lng float64) Place { return Place{Point: &geomodel.Point{Lat: lat, Lng: lng}} }

func (p Place) MarshalJSON() ([]byte, error) {
	if p.Point != nil {
		return json.Marshal(p.Point)
	}
	return json.Marshal(p.Address)
}

// RouteOptions are forwarded to the directions provider.
type RouteOptions struct {
	Mode          TravelMode `json:"mode,omitempty"`
	Alternatives  bool       `json:"alternatives,omitempty"`
	AvoidTolls    bool       `json:"avoidTolls,omitempty"`
	AvoidHighways bool       `json:"avoidHighways,omitempty"`
	Language      string     `json:"language,omitempty"`
}

// NearbyOptions are forwarded to the places provider.
type NearbyOptions struct {
	Radius  int    `json:"radius,omitempty"`
	Type    string `json:"type,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// GeocodeResult is one match of a geocoding lookup.
type GeocodeResult struct {
	FormattedAddress string         `json:"formattedAddress"`
	Location         geomodel.Point `json:"location"`
	PlaceID          string         `json:"placeId,omitempty"`
}

type geocodeEnvelope struct {
	Results []GeocodeResult `json:"results"`
}

// Status reports the maps provider health payload verbatim.
func (m *MapsAPI) Status(ctx context.Context) (json.RawMessage, error) {
	return m.raw(ctx, http.MethodGet, "/api/maps/status", nil, nil)
}

func (m *MapsAPI) Geocode(ctx context.Context, address string) ([]GeocodeResult, error) {
	var resp geocodeEnvelope
	body := map[string]string{"address": address}
	if err := m.c.do(ctx, http.MethodPost, "/api/maps/geocode", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (m *MapsAPI) ReverseGeocode(ctx context.Context, lat, lng float64) ([]GeocodeResult, error) {
	var resp geocodeEnvelope
	body := map[string]float64{"latitude": lat, "longitude": lng}
	if err := m.c.do(ctx, http.MethodPost, "/api/maps/reverse-geocode", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (m *MapsAPI) Directions(ctx context.Context, origin, destination Place, opts RouteOptions) (json.RawMessage, error) {
	body := map[string]any{"origin": origin, "destination": destination, "options": opts}
	return m.raw(ctx, http.MethodPost, "/api/maps/directions", nil, body)
}

func (m *MapsAPI) DistanceMatrix(ctx context.Context, origins, destinations []Place, opts RouteOptions) (json.RawMessage, error) {
	body := map[string]any{"origins": origins, "destinations": destinations, "options": opts}
	return m.raw(ctx, http.MethodPost, "/api/maps/distance-matrix", nil, body)
}

func (m *MapsAPI) NearbyPlaces(ctx context.Context, location geomodel.Point, opts NearbyOptions) (json.RawMessage, error) {
	body := map[string]any{"location": location, "options": opts}
	return m.raw(ctx, http.MethodPost, "/api/maps/nearby-places", nil, body)
}

// PlaceDetails fetches one place; fields limits the provider response when set.
func (m *MapsAPI) PlaceDetails(ctx context.Context, placeID string, fields ...string) (json.RawMessage, error) {
	q := url.Values{}
	for _, f := range fields {
		q.Add("fields", f)
	}
	return m.raw(ctx, http.MethodGet, "/api/maps/place/"+url.PathEscape(placeID), q, nil)
}

func (m *MapsAPI) OptimizeRoute(ctx context.Context, origin, destination Place, waypoints []Place, opts RouteOptions) (json.RawMessage, error) {
	if waypoints == nil {
		waypoints = []Place{}
	}
	body := map[string]any{"origin": origin, "destination": destination, "waypoints": waypoints, "options": opts}
	return m.raw(ctx, http.MethodPost, "/api/maps/optimize-route", nil, body)
}

// CalculateDistance asks the backend for the distance in meters between two points.
func (m *MapsAPI) CalculateDistance(ctx context.Context, a, b geomodel.Point) (float64, error) {
	var resp struct {
		Distance float64 `json:"distance"`
	}
	body := map[string]geomodel.Point{"point1": a, "point2": b}
	if err := m.c.do(ctx, http.MethodPost, "/api/maps/calculate-distance", nil, body, &resp); err != nil {
		return 0, err
	}
	return resp.Distance, nil
}

// CheckRadius asks the backend whether point lies within radius meters of center.
func (m *MapsAPI) CheckRadius(ctx context.Context, center, point geomodel.Point, radius float64) (within bool, distance float64, err error) {
	var resp struct {
		WithinRadius bool    `json:"withinRadius"`
		Distance     float64 `json:"distance"`
	}
	body := map[string]any{"center": center, "point": point, "radius": radius}
	if err := m.c.do(ctx, http.MethodPost, "/api/maps/check-radius", nil, body, &resp); err != nil {
		return false, 0, err
	}
	return resp.WithinRadius, resp.Distance, nil
}

func (m *MapsAPI) raw(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := m.c.do(ctx, method, path, query, body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
