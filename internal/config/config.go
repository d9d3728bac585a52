package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration

	LogLevel  string
	LogFormat string

	OpenWeatherAPIKey string
	GoogleMapsAPIKey  string
	GeocoderAPIKey    string

	// Traffic camera feed.
	TrafficBaseURL    string
	TrafficResourceID string
	TrafficCacheKey   string
	TrafficCacheTTL   time.Duration

	WeatherCacheTTL time.Duration

	CacheBackend    string
	CacheSQLitePath string
	// CacheMaxEntries caps the in-memory store (0 = unlimited); CacheMaxAge is
	// how long any entry may sit in either store before the sweep drops it.
	CacheMaxEntries int
	CacheMaxAge     time.Duration

	// Reference location that enables the traffic overlay.
	Reference          geo.Point
	ReferenceName      string
	ReferenceThreshold float64

	// WarmInterval controls how often the camera cache is refreshed in the background.
	WarmInterval   time.Duration
	OverlayMaxIdle time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OPENWEATHER_API_KEY", "")
	v.SetDefault("GOOGLE_MAPS_API_KEY", "")
	v.SetDefault("GEOCODER_API_KEY", "")

	v.SetDefault("TRAFFIC_BASE_URL", "https://data.calgary.ca/resource")
	v.SetDefault("TRAFFIC_RESOURCE_ID", "k7p9-kppz")
	v.SetDefault("TRAFFIC_CACHE_KEY", "calgary-traffic-cameras")
	v.SetDefault("TRAFFIC_CACHE_TTL", "30m")
	v.SetDefault("WEATHER_CACHE_TTL", "5m")

	v.SetDefault("CACHE_BACKEND", CacheMemory)
	v.SetDefault("CACHE_SQLITE_PATH", "cache.db")
	v.SetDefault("CACHE_MAX_ENTRIES", 10000)
	v.SetDefault("CACHE_MAX_AGE", "24h")

	v.SetDefault("REFERENCE_LAT", 51.0447)
	v.SetDefault("REFERENCE_LON", -114.0719)
	v.SetDefault("REFERENCE_NAME", "Calgary")
	v.SetDefault("REFERENCE_THRESHOLD", 0.2)

	v.SetDefault("WARM_INTERVAL", "15m")
	v.SetDefault("OVERLAY_MAX_IDLE", "1h")
}

// Load reads configuration from the environment (and an optional .env file)
// with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("config: no .env file loaded")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &AppConfig{
		Port:              v.GetString("PORT"),
		LogLevel:          strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:         strings.ToLower(v.GetString("LOG_FORMAT")),
		OpenWeatherAPIKey: v.GetString("OPENWEATHER_API_KEY"),
		GoogleMapsAPIKey:  v.GetString("GOOGLE_MAPS_API_KEY"),
		GeocoderAPIKey:    v.GetString("GEOCODER_API_KEY"),
		TrafficBaseURL:    strings.TrimRight(v.GetString("TRAFFIC_BASE_URL"), "/"),
		TrafficResourceID: v.GetString("TRAFFIC_RESOURCE_ID"),
		TrafficCacheKey:   v.GetString("TRAFFIC_CACHE_KEY"),
		CacheBackend:      strings.ToLower(v.GetString("CACHE_BACKEND")),
		CacheSQLitePath:   v.GetString("CACHE_SQLITE_PATH"),
		ReferenceName:     v.GetString("REFERENCE_NAME"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"TRAFFIC_CACHE_TTL", &cfg.TrafficCacheTTL},
		{"WEATHER_CACHE_TTL", &cfg.WeatherCacheTTL},
		{"WARM_INTERVAL", &cfg.WarmInterval},
		{"OVERLAY_MAX_IDLE", &cfg.OverlayMaxIdle},
		{"CACHE_MAX_AGE", &cfg.CacheMaxAge},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = parsed
	}

	ref, err := geo.Parse(v.GetString("REFERENCE_LAT"), v.GetString("REFERENCE_LON"))
	if err != nil {
		return nil, fmt.Errorf("invalid reference location: %w", err)
	}
	cfg.Reference = ref

	threshold, err := strconv.ParseFloat(v.GetString("REFERENCE_THRESHOLD"), 64)
	if err != nil || threshold <= 0 {
		return nil, fmt.Errorf("invalid REFERENCE_THRESHOLD %q", v.GetString("REFERENCE_THRESHOLD"))
	}
	cfg.ReferenceThreshold = threshold

	maxEntries, err := strconv.Atoi(v.GetString("CACHE_MAX_ENTRIES"))
	if err != nil || maxEntries < 0 {
		return nil, fmt.Errorf("invalid CACHE_MAX_ENTRIES %q", v.GetString("CACHE_MAX_ENTRIES"))
	}
	cfg.CacheMaxEntries = maxEntries

	switch cfg.CacheBackend {
	case CacheMemory, CacheSQLite:
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q: want %s or %s", cfg.CacheBackend, CacheMemory, CacheSQLite)
	}

	return cfg, nil
}
