package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidCoordinates is returned when a latitude or longitude cannot be parsed
// or falls outside its valid range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is an immutable latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// New returns a Point for the given latitude and longitude.
func New(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// FromOrb converts an orb point ([lon, lat]) into a Point.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

// Orb returns the point in orb's [lon, lat] order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Distance is the planar Euclidean distance between two points measured in raw
// degrees. It is not a geodesic distance.
func Distance(a, b Point) float64 {
	return planar.Distance(a.Orb(), b.Orb())
}

// Within reports whether p lies strictly closer than threshold degrees to ref.
func Within(p, ref Point, threshold float64) bool {
	return Distance(p, ref) < threshold
}

// Valid reports whether the point is a finite coordinate on the globe.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Key returns a stable key for the point rounded to the given number of decimals.
func (p Point) Key(decimals int) string {
	return strconv.FormatFloat(p.Lat, 'f', decimals, 64) + "," + strconv.FormatFloat(p.Lon, 'f', decimals, 64)
}

func (p Point) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lon)
}

// Parse builds a Point from query parameter strings. Empty values default to 0.
func Parse(lat, lon string) (Point, error) {
	la, err := parseDegrees(lat)
	if err != nil {
		return Point{}, fmt.Errorf("%w: lat %q", ErrInvalidCoordinates, lat)
	}
	lo, err := parseDegrees(lon)
	if err != nil {
		return Point{}, fmt.Errorf("%w: lon %q", ErrInvalidCoordinates, lon)
	}
	p := New(la, lo)
	if !p.Valid() {
		return Point{}, fmt.Errorf("%w: %s", ErrInvalidCoordinates, p)
	}
	return p, nil
}

func parseDegrees(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
