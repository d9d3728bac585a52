package location

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// ErrGeolocationUnavailable means the device position could not be read:
// permission denied, no geolocation support, or a timeout.
var ErrGeolocationUnavailable = errors.New("geolocation unavailable")

const (
	DefaultThreshold = 0.2
	DefaultName      = "Calgary"
)

// DefaultReference is the fallback location.
var DefaultReference = geo.New(51.0447, -114.0719)

// Positioner reads the device position once.
type Positioner interface {
	CurrentPosition(ctx context.Context) (geo.Point, error)
}

// PositionFunc adapts a function to Positioner.
type PositionFunc func(ctx context.Context) (geo.Point, error)

func (f PositionFunc) CurrentPosition(ctx context.Context) (geo.Point, error) {
	return f(ctx)
}

// Resolution is the outcome of resolving a session's location.
type Resolution struct {
	// Position is nil when the device position was unavailable.
	Position    *geo.Point `json:"position,omitempty"`
	AtReference bool       `json:"atReference"`
	// Fallback is true when AtReference was assumed because no position was read.
	Fallback bool   `json:"fallback"`
	Route    string `json:"route"`
}

// Resolver decides whether a position counts as the reference location.
type Resolver struct {
	reference geo.Point
	name      string
	threshold float64
}

// NewResolver creates a Resolver. A zero threshold or empty name selects the defaults.
func NewResolver(reference geo.Point, name string, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if name == "" {
		name = DefaultName
	}
	return &Resolver{reference: reference, name: name, threshold: threshold}
}

// Reference returns the reference point.
func (r *Resolver) Reference() geo.Point {
	return r.reference
}

// ReferenceName returns the reference city name.
func (r *Resolver) ReferenceName() string {
	return r.name
}

// IsReference applies the planar distance rule to p.
func (r *Resolver) IsReference(p geo.Point) bool {
	return geo.Within(p, r.reference, r.threshold)
}

// IsReferenceCity reports whether a city route names the reference city.
func (r *Resolver) IsReferenceCity(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), r.name)
}

// Resolve reads the device position and classifies it. A missing position is
// not an error: the session falls back to the reference location.
func (r *Resolver) Resolve(ctx context.Context, p Positioner) Resolution {
	pos, err := p.CurrentPosition(ctx)
	if err != nil {
		log.Info().Err(err).Msg("location: device position unavailable, using reference location")
		res := Resolution{AtReference: true, Fallback: true}
		res.Route = r.InitialRoute(res)
		return res
	}

	res := Resolution{Position: &pos, AtReference: r.IsReference(pos)}
	res.Route = r.InitialRoute(res)
	log.Debug().Stringer("position", pos).Bool("at_reference", res.AtReference).Msg("location: resolved")
	return res
}

// InitialRoute is where "/" sends the session: the reference city page, or the
// dashboard for the inferred location.
func (r *Resolver) InitialRoute(res Resolution) string {
	if !res.AtReference {
		return "/"
	}
	return CityRoute(r.name, r.reference)
}

// CityRoute builds /city/{name}?lat=..&lon=...
func CityRoute(name string, p geo.Point) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	return fmt.Sprintf("/city/%s?%s", url.PathEscape(name), q.Encode())
}
