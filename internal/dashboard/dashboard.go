// Package dashboard composes the city page and the inferred-location dashboard
// from the weather, geocoding and location services.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/geocode"
	"github.com/i474232898/weather-dashboard/internal/location"
	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// MapCardZoom is the zoom of the small map shown on weather pages.
const MapCardZoom = 10

// WeatherErrorMessage is what the page shows when weather cannot be loaded.
const WeatherErrorMessage = "Failed to fetch weather data. Please try again."

// ErrWeatherUnavailable wraps any failure to load current conditions or the forecast.
var ErrWeatherUnavailable = errors.New("weather unavailable")

// WeatherSource is the weather collaborator.
type WeatherSource interface {
	Current(ctx context.Context, at geo.Point) (weather.WeatherSnapshot, error)
	Forecast(ctx context.Context, at geo.Point) (weather.Forecast, error)
}

// PlaceLocator names coordinates.
type PlaceLocator interface {
	Locate(ctx context.Context, at geo.Point) (geocode.Place, error)
}

// CityView is the /city/{name} page.
type CityView struct {
	Name        string    `json:"name"`
	Coordinates geo.Point `json:"coordinates"`
	AtReference bool      `json:"atReference"`

	// TrafficOverlay is set when the page should mount the camera overlay.
	TrafficOverlay bool                    `json:"trafficOverlay"`
	Current        weather.WeatherSnapshot `json:"current"`
	Forecast       weather.Forecast        `json:"forecast"`
	Map            mapsdk.Frame            `json:"map"`
}

// DashboardView is the inferred-location dashboard.
type DashboardView struct {
	Place       geocode.Place           `json:"place"`
	Coordinates geo.Point               `json:"coordinates"`
	AtReference bool                    `json:"atReference"`
	Current     weather.WeatherSnapshot `json:"current"`
	Forecast    weather.Forecast        `json:"forecast"`
	Map         mapsdk.Frame            `json:"map"`
}

// Builder assembles views.
type Builder struct {
	weather  WeatherSource
	places   PlaceLocator
	resolver *location.Resolver
}

// NewBuilder creates a Builder. places may be nil, in which case dashboards are
// titled with their coordinates.
func NewBuilder(w WeatherSource, places PlaceLocator, resolver *location.Resolver) *Builder {
	return &Builder{weather: w, places: places, resolver: resolver}
}

// City builds the page for a named city. The overlay is enabled only when the
// route names the reference city; AtReference is derived from the coordinates.
func (b *Builder) City(ctx context.Context, name string, at geo.Point) (CityView, error) {
	current, forecast, err := b.loadWeather(ctx, at)
	if err != nil {
		return CityView{}, err
	}

	return CityView{
		Name:           name,
		Coordinates:    at,
		AtReference:    b.resolver.IsReference(at),
		TrafficOverlay: b.resolver.IsReferenceCity(name),
		Current:        current,
		Forecast:       forecast,
		Map:            MapCard(at, name),
	}, nil
}

// Dashboard builds the page for the user's inferred location.
func (b *Builder) Dashboard(ctx context.Context, at geo.Point) (DashboardView, error) {
	var (
		wg    sync.WaitGroup
		place = geocode.Fallback(at)
	)
	if b.places != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := b.places.Locate(ctx, at)
			if err != nil {
				if !errors.Is(err, geocode.ErrNoAPIKey) {
					log.Warn().Err(err).Stringer("at", at).Msg("dashboard: reverse geocode failed")
				}
				return
			}
			place = p
		}()
	}

	current, forecast, err := b.loadWeather(ctx, at)
	wg.Wait()
	if err != nil {
		return DashboardView{}, err
	}

	return DashboardView{
		Place:       place,
		Coordinates: at,
		AtReference: b.resolver.IsReference(at),
		Current:     current,
		Forecast:    forecast,
		Map:         MapCard(at, place.Title),
	}, nil
}

// loadWeather fetches current conditions and the forecast concurrently. The
// view needs both, so either failure fails it.
func (b *Builder) loadWeather(ctx context.Context, at geo.Point) (weather.WeatherSnapshot, weather.Forecast, error) {
	var (
		wg          sync.WaitGroup
		forecast    weather.Forecast
		forecastErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		forecast, forecastErr = b.weather.Forecast(ctx, at)
	}()

	current, err := b.weather.Current(ctx, at)
	wg.Wait()
	if forecastErr != nil {
		forecastErr = fmt.Errorf("forecast: %w", forecastErr)
	}
	if err != nil {
		err = fmt.Errorf("current: %w", err)
	}
	if joined := errors.Join(err, forecastErr); joined != nil {
		log.Warn().Err(joined).Stringer("at", at).Msg("dashboard: weather unavailable")
		return weather.WeatherSnapshot{}, weather.Forecast{}, fmt.Errorf("%w: %w", ErrWeatherUnavailable, joined)
	}
	return current, forecast, nil
}

// MapCard renders a map centered on at with one marker titled title.
func MapCard(at geo.Point, title string) mapsdk.Frame {
	scene := mapsdk.NewScene(mapsdk.Options{Center: at, Zoom: MapCardZoom})
	scene.NewMarker(mapsdk.MarkerOptions{Position: at, Title: title})
	return scene.Render()
}
