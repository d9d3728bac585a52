package weather

import (
	"context"
	"time"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// ProviderReading represents a single provider's normalized reading
// that can be aggregated into a WeatherSnapshot.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureC float64
	HumidityPct  float64
	WindSpeedMS  float64
	PressureHpa  float64
	PrecipMm     float64
	Condition    Condition
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, Open-Meteo).
type Provider interface {
	Name() string
	Current(ctx context.Context, at geo.Point) (ProviderReading, error)
}

// ForecastProvider is implemented by providers that can return future readings.
type ForecastProvider interface {
	Forecast(ctx context.Context, at geo.Point) ([]ProviderReading, error)
}
