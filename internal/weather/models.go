package weather

import (
	"time"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// WeatherSnapshot is the normalized, aggregated weather view at a point in time.
type WeatherSnapshot struct {
	Coordinates geo.Point `json:"coordinates"`
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeed"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	Condition   Condition `json:"condition"`

	// Providers contributing to this snapshot.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// DailySummary condenses one UTC day of forecast readings.
type DailySummary struct {
	Date      time.Time `json:"date"`
	TempMin   float64   `json:"tempMinC"`
	TempMax   float64   `json:"tempMaxC"`
	Humidity  float64   `json:"humidityPercent"`
	WindSpeed float64   `json:"windSpeed"`
	PrecipMM  float64   `json:"precipMm"`
	Condition Condition `json:"condition"`
}

// Forecast holds the hourly strip and the per-day summaries.
// Both are ordered by time ascending.
type Forecast struct {
	Coordinates geo.Point         `json:"coordinates"`
	Hourly      []WeatherSnapshot `json:"hourly"`
	Daily       []DailySummary    `json:"daily"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}
