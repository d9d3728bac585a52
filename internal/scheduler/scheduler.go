package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/traffic"
)

const defaultWarmInterval = 15 * time.Minute

// CameraFetcher loads the camera list through the cache.
type CameraFetcher interface {
	Fetch(ctx context.Context, resourceKey string) ([]traffic.CameraRecord, error)
}

// OverlaySweeper unmounts widgets nobody has looked at for a while.
type OverlaySweeper interface {
	SweepIdle(now time.Time, maxIdle time.Duration) int
}

// SessionExpirer drops old location sessions.
type SessionExpirer interface {
	Expire(maxAge time.Duration) int
}

// Config controls job cadence.
type Config struct {
	ResourceKey  string
	WarmInterval time.Duration
	MaxIdle      time.Duration
}

// Scheduler runs the background housekeeping jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cameras   CameraFetcher
	overlays  OverlaySweeper
	sessions  SessionExpirer

	cache       store.Pruner
	cacheMaxAge time.Duration

	cfg Config
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCachePruner makes the sweep drop cache entries older than maxAge.
func WithCachePruner(p store.Pruner, maxAge time.Duration) Option {
	return func(s *Scheduler) {
		s.cache = p
		s.cacheMaxAge = maxAge
	}
}

// New creates a new Scheduler. Nil collaborators skip their job.
func New(cfg Config, cameras CameraFetcher, overlays OverlaySweeper, sessions SessionExpirer, opts ...Option) *Scheduler {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cameras:   cameras,
		overlays:  overlays,
		sessions:  sessions,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.cfg.WarmInterval
	if interval <= 0 {
		interval = defaultWarmInterval
	}

	if s.cameras != nil {
		// Warm immediately so the first overlay mount hits the cache.
		if _, err := s.scheduler.Every(interval).Do(s.WarmCameras); err != nil {
			return err
		}
	}

	if s.overlays != nil || s.sessions != nil || s.cache != nil {
		if _, err := s.scheduler.Every(1).Minute().WaitForSchedule().Do(s.Sweep); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// WarmCameras refreshes the shared camera cache. Fetch serves from the cache
// while it is fresh, so a warm run only hits the network after expiry.
func (s *Scheduler) WarmCameras() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := s.cameras.Fetch(ctx, s.cfg.ResourceKey)
	if err != nil {
		log.Warn().Err(err).Str("key", s.cfg.ResourceKey).Msg("scheduler: camera warm-up failed")
		return
	}
	log.Debug().Int("cameras", len(records)).Msg("scheduler: camera cache warm")
}

// Sweep unmounts idle overlays, expires sessions older than MaxIdle and prunes
// stale cache entries.
func (s *Scheduler) Sweep() {
	s.pruneCache()
	if s.cfg.MaxIdle <= 0 {
		return
	}
	if s.overlays != nil {
		if n := s.overlays.SweepIdle(time.Now(), s.cfg.MaxIdle); n > 0 {
			log.Info().Int("overlays", n).Msg("scheduler: unmounted idle overlays")
		}
	}
	if s.sessions != nil {
		if n := s.sessions.Expire(s.cfg.MaxIdle); n > 0 {
			log.Info().Int("sessions", n).Msg("scheduler: expired sessions")
		}
	}
}

func (s *Scheduler) pruneCache() {
	if s.cache == nil || s.cacheMaxAge <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.cache.Prune(ctx, time.Now().Add(-s.cacheMaxAge))
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: cache prune failed")
		return
	}
	if n > 0 {
		log.Info().Int("entries", n).Msg("scheduler: pruned cache entries")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
