package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

const openMeteoFields = "temperature_2m,relative_humidity_2m,wind_speed_10m,surface_pressure,precipitation,weather_code"

// Open-Meteo returns local ISO8601 without a zone; timezone=GMT makes it UTC.
const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoProvider implements weather.Provider for Open-Meteo. It needs no key.
type OpenMeteoProvider struct {
	base
	forecastDays int
}

func NewOpenMeteoProvider(client *http.Client, opts ...Option) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		base:         newBase("openmeteo", "https://api.open-meteo.com/v1/forecast", client, opts),
		forecastDays: weather.DefaultForecastDays,
	}
}

func (p *OpenMeteoProvider) endpoint(at geo.Point, extra url.Values) string {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	values.Set("wind_speed_unit", "ms")
	values.Set("timezone", "GMT")
	for k, v := range extra {
		values[k] = v
	}
	return fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
}

func (p *OpenMeteoProvider) Current(ctx context.Context, at geo.Point) (weather.ProviderReading, error) {
	var payload struct {
		Current struct {
			Time          string  `json:"time"`
			Temperature   float64 `json:"temperature_2m"`
			Humidity      float64 `json:"relative_humidity_2m"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			Pressure      float64 `json:"surface_pressure"`
			Precipitation float64 `json:"precipitation"`
			WeatherCode   int     `json:"weather_code"`
		} `json:"current"`
	}

	u := p.endpoint(at, url.Values{"current": {openMeteoFields}})
	if err := p.getJSON(ctx, u, &payload); err != nil {
		return weather.ProviderReading{}, err
	}

	c := payload.Current
	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    parseOpenMeteoTime(c.Time),
		TemperatureC: c.Temperature,
		HumidityPct:  c.Humidity,
		WindSpeedMS:  c.WindSpeed,
		PressureHpa:  c.Pressure,
		PrecipMm:     c.Precipitation,
		Condition:    mapOpenMeteoCondition(c.WeatherCode),
	}, nil
}

// Forecast returns hourly readings for the configured number of days.
func (p *OpenMeteoProvider) Forecast(ctx context.Context, at geo.Point) ([]weather.ProviderReading, error) {
	var payload struct {
		Hourly struct {
			Time          []string  `json:"time"`
			Temperature   []float64 `json:"temperature_2m"`
			Humidity      []float64 `json:"relative_humidity_2m"`
			WindSpeed     []float64 `json:"wind_speed_10m"`
			Pressure      []float64 `json:"surface_pressure"`
			Precipitation []float64 `json:"precipitation"`
			WeatherCode   []int     `json:"weather_code"`
		} `json:"hourly"`
	}

	u := p.endpoint(at, url.Values{
		"hourly":        {openMeteoFields},
		"forecast_days": {strconv.Itoa(p.forecastDays)},
	})
	if err := p.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	h := payload.Hourly
	out := make([]weather.ProviderReading, 0, len(h.Time))
	for i, t := range h.Time {
		out = append(out, weather.ProviderReading{
			ProviderName: p.name,
			Timestamp:    parseOpenMeteoTime(t),
			TemperatureC: at64(h.Temperature, i),
			HumidityPct:  at64(h.Humidity, i),
			WindSpeedMS:  at64(h.WindSpeed, i),
			PressureHpa:  at64(h.Pressure, i),
			PrecipMm:     at64(h.Precipitation, i),
			Condition:    mapOpenMeteoCondition(atInt(h.WeatherCode, i)),
		})
	}
	return out, nil
}

func parseOpenMeteoTime(s string) time.Time {
	ts, err := time.ParseInLocation(openMeteoTimeLayout, s, time.UTC)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}

func at64(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

func atInt(xs []int, i int) int {
	if i < len(xs) {
		return xs[i]
	}
	return -1
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// WMO weather interpretation codes.
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
