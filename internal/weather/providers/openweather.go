package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-dashboard/internal/common"
	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// OpenWeatherProvider implements weather.Provider for OpenWeatherMap.
type OpenWeatherProvider struct {
	base
	apiKey string
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		base:   newBase("openweathermap", "https://api.openweathermap.org/data/2.5", client, opts),
		apiKey: apiKey,
	}
}

type owmSample struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Snow struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"snow"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

func (p *OpenWeatherProvider) endpoint(path string, at geo.Point) string {
	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	return fmt.Sprintf("%s/%s?%s", p.baseURL, path, values.Encode())
}

func (p *OpenWeatherProvider) Current(ctx context.Context, at geo.Point) (weather.ProviderReading, error) {
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("openweather: %w", errNoAPIKey)
	}

	var payload owmSample
	if err := p.getJSON(ctx, p.endpoint("weather", at), &payload); err != nil {
		return weather.ProviderReading{}, err
	}
	return p.reading(payload), nil
}

// Forecast returns the 3-hourly five day forecast.
func (p *OpenWeatherProvider) Forecast(ctx context.Context, at geo.Point) ([]weather.ProviderReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w", errNoAPIKey)
	}

	var payload struct {
		List []owmSample `json:"list"`
	}
	if err := p.getJSON(ctx, p.endpoint("forecast", at), &payload); err != nil {
		return nil, err
	}

	out := make([]weather.ProviderReading, 0, len(payload.List))
	for _, s := range payload.List {
		out = append(out, p.reading(s))
	}
	return out, nil
}

func (p *OpenWeatherProvider) reading(s owmSample) weather.ProviderReading {
	ts := time.Now().UTC()
	if s.Dt > 0 {
		ts = time.Unix(s.Dt, 0).UTC()
	}

	precip := s.Rain.OneH
	if precip == 0 {
		precip = s.Rain.ThreeH
	}
	if precip == 0 {
		precip = s.Snow.OneH + s.Snow.ThreeH
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    ts,
		TemperatureC: s.Main.Temp,
		HumidityPct:  s.Main.Humidity,
		WindSpeedMS:  s.Wind.Speed,
		PressureHpa:  s.Main.Pressure,
		PrecipMm:     precip,
		Condition:    mapOpenWeatherCondition(s),
	}
}

func mapOpenWeatherCondition(s owmSample) weather.Condition {
	if len(s.Weather) == 0 {
		return weather.ConditionUnknown
	}
	w := s.Weather[0]
	switch w.Main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke":
		return weather.ConditionMist
	}

	// Fall back to the free-text description for the rarer groups.
	desc := strings.ToLower(w.Description)
	switch {
	case common.HasAny(desc, "thunder", "squall", "tornado"):
		return weather.ConditionStorm
	case common.HasAny(desc, "sleet", "snow"):
		return weather.ConditionSnow
	case common.HasAny(desc, "rain", "drizzle", "shower"):
		return weather.ConditionRain
	case common.HasAny(desc, "mist", "fog", "haze", "dust", "sand"):
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
