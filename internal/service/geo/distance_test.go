package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
)

func TestHaversineDistanceSamePoint(t *testing.T) {
	assert.Equal(t, 0.0, HaversineDistance(-34.6037, -58.3816, -34.6037, -58.3816))
}

func TestHaversineDistanceKnownPairs(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, delta            float64
	}{
		{name: "one degree of latitude", lat1: 0, lon1: 0, lat2: 1, lon2: 0, want: 111195, delta: 1},
		{name: "buenos aires to montevideo", lat1: -34.6037, lon1: -58.3816, lat2: -34.9011, lon2: -56.1645, want: 205232, delta: 1},
		{name: "antipodal", lat1: 0, lon1: 0, lat2: 0, lon2: 180, want: 20015087, delta: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HaversineDistance(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			assert.InDelta(t, tc.want, got, tc.delta)
		})
	}
}

func TestIsWithinRadiusBoundaryIsInclusive(t *testing.T) {
	center := geomodel.DefaultCenter
	point := geomodel.Point{Lat: -34.6137, Lng: -58.3716}
	d := Distance(center, point)

	assert.True(t, IsWithinRadius(center, point, d))
	assert.True(t, IsWithinRadius(center, point, d+0.001))
	assert.False(t, IsWithinRadius(center, point, d-0.001))
	assert.True(t, IsWithinRadius(center, center, 0))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "850 m", FormatDistance(849.6))
	assert.Equal(t, "1.2 km", FormatDistance(1234))
	assert.Equal(t, "12m", FormatDuration(12*60+30))
	assert.Equal(t, "1h 5m", FormatDuration(3900))
}
