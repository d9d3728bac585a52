package overlay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/mapsdk"
)

// ErrNotFound is returned for an unknown or already unmounted widget id.
var ErrNotFound = errors.New("overlay not found")

// Registry owns the mounted widgets of all browser sessions.
type Registry struct {
	ctx     context.Context
	fetcher Fetcher
	loader  mapsdk.Loader
	cfg     Config
	opts    []Option

	mu      sync.RWMutex
	widgets map[string]*Widget
}

// NewRegistry creates a Registry. Widgets run under ctx, so cancelling it stops
// all in-flight work.
func NewRegistry(ctx context.Context, fetcher Fetcher, loader mapsdk.Loader, cfg Config, opts ...Option) *Registry {
	return &Registry{
		ctx:     ctx,
		fetcher: fetcher,
		loader:  loader,
		cfg:     cfg,
		opts:    opts,
		widgets: make(map[string]*Widget),
	}
}

// Mount creates and mounts a new widget.
func (r *Registry) Mount() *Widget {
	w := New(uuid.NewString(), r.fetcher, r.loader, r.cfg, r.opts...)

	r.mu.Lock()
	r.widgets[w.ID()] = w
	r.mu.Unlock()

	w.Mount(r.ctx)
	log.Info().Str("overlay", w.ID()).Msg("overlay: mounted")
	return w
}

// Get returns a mounted widget.
func (r *Registry) Get(id string) (*Widget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.widgets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// Unmount tears a widget down and forgets it.
func (r *Registry) Unmount(id string) error {
	r.mu.Lock()
	w, ok := r.widgets[id]
	delete(r.widgets, id)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	w.Unmount()
	log.Info().Str("overlay", id).Msg("overlay: unmounted")
	return nil
}

// SweepIdle unmounts widgets without user interaction for longer than maxIdle
// and returns how many were removed.
func (r *Registry) SweepIdle(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	var idle []*Widget
	for id, w := range r.widgets {
		if now.Sub(w.IdleSince()) > maxIdle {
			idle = append(idle, w)
			delete(r.widgets, id)
		}
	}
	r.mu.Unlock()

	for _, w := range idle {
		w.Unmount()
	}
	if len(idle) > 0 {
		log.Info().Int("count", len(idle)).Msg("overlay: swept idle widgets")
	}
	return len(idle)
}

// Len returns the number of mounted widgets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.widgets)
}

// Close unmounts every widget.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.widgets
	r.widgets = make(map[string]*Widget)
	r.mu.Unlock()

	for _, w := range all {
		w.Unmount()
	}
}
