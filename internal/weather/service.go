package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/cache"
	"github.com/i474232898/weather-dashboard/internal/geo"
)

const (
	// DefaultForecastDays bounds the daily summary list.
	DefaultForecastDays = 5
	// HourlyWindow is how far ahead the hourly strip reaches.
	HourlyWindow = 24 * time.Hour
)

var (
	ErrNoProviders = errors.New("no weather providers configured")
	ErrNoData      = errors.New("no weather data available")
)

// Service orchestrates fetching from multiple providers and caching the
// aggregated results per coordinate.
type Service struct {
	providers []Provider
	cache     *cache.Cache
	days      int
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the clock that anchors the hourly forecast window.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service. A nil cache disables caching.
func NewService(providers []Provider, c *cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		providers: providers,
		cache:     c,
		days:      DefaultForecastDays,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func currentKey(at geo.Point) string  { return "weather:current:" + at.Key(4) }
func forecastKey(at geo.Point) string { return "weather:forecast:" + at.Key(4) }

// Current returns the aggregated conditions at a coordinate, served from the
// cache while the cached entry is fresh.
func (s *Service) Current(ctx context.Context, at geo.Point) (WeatherSnapshot, error) {
	var snap WeatherSnapshot
	if s.load(ctx, currentKey(at), &snap) {
		return snap, nil
	}

	snap, err := s.fetchCurrent(ctx, at)
	if err != nil {
		return WeatherSnapshot{}, err
	}
	s.save(ctx, currentKey(at), snap)
	return snap, nil
}

// Forecast returns the hourly strip and daily summaries for a coordinate.
func (s *Service) Forecast(ctx context.Context, at geo.Point) (Forecast, error) {
	var fc Forecast
	if s.load(ctx, forecastKey(at), &fc) {
		return fc, nil
	}

	fc, err := s.fetchForecast(ctx, at)
	if err != nil {
		return Forecast{}, err
	}
	s.save(ctx, forecastKey(at), fc)
	return fc, nil
}

// fetchCurrent queries all providers concurrently and aggregates the
// successful readings. Partial failure is tolerated.
func (s *Service) fetchCurrent(ctx context.Context, at geo.Point) (WeatherSnapshot, error) {
	if len(s.providers) == 0 {
		return WeatherSnapshot{}, ErrNoProviders
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []ProviderReading
		errs     []error
	)

	for _, p := range s.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			r, err := p.Current(ctx, at)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("provider", p.Name()).Str("at", at.String()).Msg("weather: current fetch failed")
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				return
			}
			readings = append(readings, r)
		}(p)
	}
	wg.Wait()

	if len(readings) == 0 {
		return WeatherSnapshot{}, noData(errs)
	}

	snap := AggregateReadings(at, readings)
	sort.Slice(snap.Providers, func(i, j int) bool {
		return snap.Providers[i].ProviderName < snap.Providers[j].ProviderName
	})
	return snap, nil
}

// fetchForecast merges hourly readings from every ForecastProvider, bucketed
// by hour. Daily summaries cover the whole merged strip; the hourly strip is
// cut to HourlyWindow starting at the current hour.
func (s *Service) fetchForecast(ctx context.Context, at geo.Point) (Forecast, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		byHour   = make(map[int64][]ProviderReading)
		errs     []error
		eligible int
	)

	for _, p := range s.providers {
		fp, ok := p.(ForecastProvider)
		if !ok {
			continue
		}
		eligible++

		wg.Add(1)
		go func(name string, fp ForecastProvider) {
			defer wg.Done()

			readings, err := fp.Forecast(ctx, at)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("provider", name).Str("at", at.String()).Msg("weather: forecast fetch failed")
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			for _, r := range readings {
				h := r.Timestamp.UTC().Truncate(time.Hour).Unix()
				byHour[h] = append(byHour[h], r)
			}
		}(p.Name(), fp)
	}
	wg.Wait()

	if eligible == 0 {
		return Forecast{}, ErrNoProviders
	}
	if len(byHour) == 0 {
		return Forecast{}, noData(errs)
	}

	hours := make([]int64, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	merged := make([]WeatherSnapshot, 0, len(hours))
	for _, h := range hours {
		snap := AggregateReadings(at, byHour[h])
		snap.Timestamp = time.Unix(h, 0).UTC()
		merged = append(merged, snap)
	}

	from := s.now().UTC().Truncate(time.Hour)
	until := from.Add(HourlyWindow)
	hourly := make([]WeatherSnapshot, 0, 24)
	for _, snap := range merged {
		if !snap.Timestamp.Before(from) && snap.Timestamp.Before(until) {
			hourly = append(hourly, snap)
		}
	}

	return Forecast{
		Coordinates: at,
		Hourly:      hourly,
		Daily:       SummarizeDays(merged, s.days),
	}, nil
}

func noData(errs []error) error {
	if len(errs) == 0 {
		return ErrNoData
	}
	return fmt.Errorf("%w: %w", ErrNoData, errors.Join(errs...))
}

func (s *Service) load(ctx context.Context, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	_, ok, err := s.cache.Load(ctx, key, v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("weather: cache unavailable")
		return false
	}
	return ok
}

func (s *Service) save(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Save(ctx, key, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("weather: failed to update cache")
	}
}
