package model

// Coordinate is a geographic position: longitude and latitude in degrees and
// altitude in metres above the WGS84 ellipsoid.
type Coordinate struct {
	Lon float64
	Lat float64
	Alt float64
}

// Geometry is the GeoJSON geometry of a route feature. Each coordinate is a
// [lon, lat] or [lon, lat, alt] position.
type Geometry struct {
	Type        string      `json:"type,omitempty"`
	Coordinates [][]float64 `json:"coordinates"`
}

// FeatureProperties carries the per-coordinate ISO-8601 timestamps produced
// by the converter alongside any descriptive properties it preserves.
type FeatureProperties struct {
	Name  string   `json:"name,omitempty"`
	Times []string `json:"times"`
}

// Feature is a single route feature. Geometry.Coordinates and
// Properties.Times are parallel arrays.
type Feature struct {
	Type       string            `json:"type,omitempty"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// Len returns the number of coordinates in the feature.
func (f Feature) Len() int { return len(f.Geometry.Coordinates) }

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type,omitempty"`
	Features []Feature `json:"features"`
}

// First returns the first feature of the collection. Only the first feature
// of an uploaded route is played back.
func (fc FeatureCollection) First() (Feature, bool) {
	if len(fc.Features) == 0 {
		return Feature{}, false
	}
	return fc.Features[0], true
}

// ConversionResult is the converter's response body for an uploaded route file.
type ConversionResult struct {
	FileSize int64             `json:"file_size"`
	GeoJSON  FeatureCollection `json:"geoJSON"`
}

// RawSample is one unparsed (coordinate, timestamp) pair of a feature.
type RawSample struct {
	// Index is the position of the sample within the original feature.
	Index      int
	Coordinate []float64
	Timestamp  string
}
