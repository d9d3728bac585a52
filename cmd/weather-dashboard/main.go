package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/weather-dashboard/internal/api/http"
	"github.com/i474232898/weather-dashboard/internal/cache"
	"github.com/i474232898/weather-dashboard/internal/config"
	"github.com/i474232898/weather-dashboard/internal/dashboard"
	"github.com/i474232898/weather-dashboard/internal/geocode"
	"github.com/i474232898/weather-dashboard/internal/location"
	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/overlay"
	"github.com/i474232898/weather-dashboard/internal/scheduler"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/traffic"
	"github.com/i474232898/weather-dashboard/internal/weather"
	"github.com/i474232898/weather-dashboard/internal/weather/providers"
)

// Map defaults for the overlay: the reference city at street-grid zoom.
const overlayZoom = 12

// Reverse geocoding results barely change; keep them for a day.
const geocodeTTL = 24 * time.Hour

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	if format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// cacheStore is what the response caches persist through and the sweep prunes.
type cacheStore interface {
	store.Store
	store.Pruner
}

func openStore(ctx context.Context, cfg *config.AppConfig) (cacheStore, func(), error) {
	if cfg.CacheBackend == config.CacheSQLite {
		s, err := store.OpenSQLite(ctx, cfg.CacheSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close cache database")
			}
		}, nil
	}
	return store.NewMemoryStore(cfg.CacheMaxEntries), func() {}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("weather-dashboard stopped")
	}
}

// run owns every resource, so its deferred cleanups finish before main exits.
func run(cfg *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	backend, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s cache store: %w", cfg.CacheBackend, err)
	}
	defer closeStore()

	cameras := traffic.NewClient(httpClient, cache.New(backend, cfg.TrafficCacheTTL), traffic.Config{
		BaseURL:       cfg.TrafficBaseURL,
		ResourceID:    cfg.TrafficResourceID,
		DefaultParams: traffic.DefaultParams(),
	})

	// Providers with resilience (backoff + circuit breaker).
	provs := []weather.Provider{providers.NewOpenMeteoProvider(httpClient)}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	weatherSvc := weather.NewService(provs, cache.New(backend, cfg.WeatherCacheTTL))

	resolver := location.NewResolver(cfg.Reference, cfg.ReferenceName, cfg.ReferenceThreshold)
	places := geocode.NewLocator(cfg.GeocoderAPIKey, cache.New(backend, geocodeTTL))
	views := dashboard.NewBuilder(weatherSvc, places, resolver)

	overlays := overlay.NewRegistry(ctx, cameras, mapsdk.SceneLoader{APIKey: cfg.GoogleMapsAPIKey}, overlay.Config{
		ResourceKey: cfg.TrafficCacheKey,
		Map:         mapsdk.Options{Center: cfg.Reference, Zoom: overlayZoom},
	})
	defer overlays.Close()

	sessions := location.NewSessions()

	sched := scheduler.New(scheduler.Config{
		ResourceKey:  cfg.TrafficCacheKey,
		WarmInterval: cfg.WarmInterval,
		MaxIdle:      cfg.OverlayMaxIdle,
	}, cameras, overlays, sessions, scheduler.WithCachePruner(backend, cfg.CacheMaxAge))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * cfg.HTTPTimeout,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Sessions:    sessions,
		Resolver:    resolver,
		Views:       views,
		Cameras:     cameras,
		Overlays:    overlays,
		ResourceKey: cfg.TrafficCacheKey,
	})

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	return nil
}
