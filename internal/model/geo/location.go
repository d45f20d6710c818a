package geo

import "time"

// Location is a single position fix.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the coordinates of the fix without accuracy or time.
func (l Location) Point() Point {
	return Point{Lat: l.Latitude, Lng: l.Longitude}
}

// Point is a bare coordinate pair as used by the maps endpoints.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultCenter is the map center used when no fix is available (Buenos Aires).
var DefaultCenter = Point{Lat: -34.6037, Lng: -58.3816}
