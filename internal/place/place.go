package place

import (
	"fmt"
	"math"
	"strconv"
)

// Place represents a named geographic point, the unit of search, selection
// and favoriting. Places are immutable once created.
type Place struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Admin1    string  `json:"admin1,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// RoundCoord rounds a coordinate to 4 decimal places (roughly 11 m on the
// ground). Identity between places is defined over rounded coordinates, not
// over the provider-assigned ID.
func RoundCoord(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Key returns the rounded-coordinate identity of the place
func (p Place) Key() string {
	return fmt.Sprintf("%.4f,%.4f", RoundCoord(p.Latitude), RoundCoord(p.Longitude))
}

// Equal reports whether two places refer to the same point: both latitudes
// and both longitudes round to the same 4-decimal value
func Equal(a, b Place) bool {
	return RoundCoord(a.Latitude) == RoundCoord(b.Latitude) &&
		RoundCoord(a.Longitude) == RoundCoord(b.Longitude)
}

// Validate checks the place invariants
func (p Place) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", p.Longitude)
	}
	if p.Name == "" {
		return fmt.Errorf("place name cannot be empty")
	}
	if p.Timezone == "" {
		return fmt.Errorf("place timezone cannot be empty")
	}
	return nil
}

// SynthesizeID builds a place ID from raw coordinates, used when the
// provider response carries no ID of its own
func SynthesizeID(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// Synthesized builds a coordinate-only place with a generic name. It is the
// fallback when reverse geocoding fails entirely: the dashboard can still
// show a forecast for the raw coordinates.
func Synthesized(lat, lon float64) Place {
	return Place{
		ID:        SynthesizeID(lat, lon),
		Name:      "My location",
		Latitude:  lat,
		Longitude: lon,
		Timezone:  "auto",
	}
}
