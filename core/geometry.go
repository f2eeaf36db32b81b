package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/route-playback/model"
)

// WGS84 ellipsoid parameters used for geodetic to ECEF conversion.
const (
	WGS84SemiMajorAxis = 6378137.0
	WGS84Flattening    = 1 / 298.257223563
)

var wgs84EccentricitySq = WGS84Flattening * (2 - WGS84Flattening)

// CartesianFromGeodetic converts a geographic coordinate to an Earth-centred,
// Earth-fixed position in metres.
func CartesianFromGeodetic(c model.Coordinate) r3.Vec {
	lon := c.Lon * math.Pi / 180
	lat := c.Lat * math.Pi / 180

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Prime vertical radius of curvature.
	n := WGS84SemiMajorAxis / math.Sqrt(1-wgs84EccentricitySq*sinLat*sinLat)

	return r3.Vec{
		X: (n + c.Alt) * cosLat * cosLon,
		Y: (n + c.Alt) * cosLat * sinLon,
		Z: (n*(1-wgs84EccentricitySq) + c.Alt) * sinLat,
	}
}

// Distance returns the straight-line distance between two ECEF positions.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(b, a))
}

// ParseCoordinate validates a GeoJSON position. Both [lon, lat] and
// [lon, lat, alt] are accepted; a missing altitude is 0.
func ParseCoordinate(values []float64) (model.Coordinate, error) {
	if len(values) != 2 && len(values) != 3 {
		return model.Coordinate{}, fmt.Errorf("%w: coordinate has %d values, want 2 or 3", ErrParse, len(values))
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Coordinate{}, fmt.Errorf("%w: coordinate %v is not finite", ErrParse, values)
		}
	}

	c := model.Coordinate{Lon: values[0], Lat: values[1]}
	if len(values) == 3 {
		c.Alt = values[2]
	}
	if c.Lat < -90 || c.Lat > 90 {
		return model.Coordinate{}, fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrParse, c.Lat)
	}
	return c, nil
}
