// Package geocode turns coordinates into human-readable place names.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/cache"
	"github.com/i474232898/weather-dashboard/internal/geo"
)

var (
	ErrNoAPIKey = errors.New("geocoder api key is not configured")
	ErrNoResult = errors.New("no address found for coordinates")
)

// Place is a resolved location name.
type Place struct {
	City             string    `json:"city,omitempty"`
	State            string    `json:"state,omitempty"`
	Country          string    `json:"country,omitempty"`
	FormattedAddress string    `json:"formattedAddress,omitempty"`
	Title            string    `json:"title"`
	Coordinates      geo.Point `json:"coordinates"`
}

// Fallback names a point by its coordinates.
func Fallback(p geo.Point) Place {
	return Place{Title: p.String(), Coordinates: p}
}

// ReverseFunc performs one reverse lookup.
type ReverseFunc func(geocoder.Location) ([]geocoder.Address, error)

// geocoder keeps its key in a package variable.
var keyMu sync.Mutex

func googleReverse(apiKey string) ReverseFunc {
	return func(loc geocoder.Location) ([]geocoder.Address, error) {
		keyMu.Lock()
		defer keyMu.Unlock()
		geocoder.ApiKey = apiKey
		return geocoder.GeocodingReverse(loc)
	}
}

// Locator reverse-geocodes points, caching results per rounded coordinate.
type Locator struct {
	apiKey  string
	reverse ReverseFunc
	cache   *cache.Cache
}

// Option configures a Locator.
type Option func(*Locator)

// WithReverse swaps the lookup backend.
func WithReverse(fn ReverseFunc) Option {
	return func(l *Locator) { l.reverse = fn }
}

// NewLocator creates a Locator. A nil cache disables caching.
func NewLocator(apiKey string, c *cache.Cache, opts ...Option) *Locator {
	l := &Locator{apiKey: apiKey, cache: c}
	l.reverse = googleReverse(apiKey)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func placeKey(p geo.Point) string { return "geocode:" + p.Key(3) }

// Locate returns the place at p.
func (l *Locator) Locate(ctx context.Context, p geo.Point) (Place, error) {
	if l.apiKey == "" {
		return Place{}, ErrNoAPIKey
	}

	var place Place
	if l.cache != nil {
		if _, ok, err := l.cache.Load(ctx, placeKey(p), &place); err == nil && ok {
			return place, nil
		}
	}

	type result struct {
		addrs []geocoder.Address
		err   error
	}
	// The geocoder client takes no context; abandon it when ctx ends.
	done := make(chan result, 1)
	go func() {
		addrs, err := l.reverse(geocoder.Location{Latitude: p.Lat, Longitude: p.Lon})
		done <- result{addrs, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return Place{}, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return Place{}, fmt.Errorf("reverse geocode %s: %w", p, res.err)
	}
	if len(res.addrs) == 0 {
		return Place{}, ErrNoResult
	}

	place = toPlace(p, res.addrs)
	if l.cache != nil {
		if _, err := l.cache.Save(ctx, placeKey(p), place); err != nil {
			log.Warn().Err(err).Str("at", p.String()).Msg("geocode: failed to update cache")
		}
	}
	return place, nil
}

// toPlace picks the first address that names a city.
func toPlace(p geo.Point, addrs []geocoder.Address) Place {
	a := addrs[0]
	for _, cand := range addrs {
		if cand.City != "" {
			a = cand
			break
		}
	}

	place := Place{
		City:             a.City,
		State:            a.State,
		Country:          a.Country,
		FormattedAddress: a.FormattedAddress,
		Coordinates:      p,
	}

	var parts []string
	for _, s := range []string{a.City, a.State, a.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	switch {
	case len(parts) > 0:
		place.Title = strings.Join(parts, ", ")
	case a.FormattedAddress != "":
		place.Title = a.FormattedAddress
	default:
		place.Title = p.String()
	}
	return place
}
