package overlay

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/markers"
	"github.com/i474232898/weather-dashboard/internal/traffic"
)

// Status is the state of the camera list or of the map.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

const (
	// PlaceholderImage replaces a camera image that fails to load.
	PlaceholderImage = "/camera-error-placeholder.jpg"

	defaultErrorMessage = "Failed to load cameras"
)

var (
	ErrUnmounted   = errors.New("overlay is unmounted")
	ErrNoSelection = errors.New("no camera selected")
	ErrMapNotReady = errors.New("map is not ready")
	ErrLoading     = errors.New("camera list is loading")
)

// Fetcher supplies the camera list.
type Fetcher interface {
	Fetch(ctx context.Context, resourceKey string) ([]traffic.CameraRecord, error)
}

// Config is the static configuration shared by every widget.
type Config struct {
	ResourceKey string
	Map         mapsdk.Options
}

// Detail is the selected-camera panel.
type Detail struct {
	Camera      traffic.CameraRecord `json:"camera"`
	ImageURL    string               `json:"imageUrl"`
	ImageFailed bool                 `json:"imageFailed"`
	// Fit and Height size the image: the live image keeps its aspect ratio, the
	// placeholder is cropped to a fixed height.
	Fit        string    `json:"fit"`
	Height     string    `json:"height"`
	SelectedAt time.Time `json:"selectedAt"`
}

// Widget is the traffic-camera overlay. Every event (fetch completion, map
// load, user action) is applied under one mutex, so marker sync always sees the
// latest data and the current map state regardless of arrival order.
type Widget struct {
	id      string
	cfg     Config
	fetcher Fetcher
	loader  mapsdk.Loader
	now     func() time.Time

	mu         sync.Mutex
	status     Status
	errMsg     string
	records    []traffic.CameraRecord
	detail     *Detail
	mapStatus  Status
	mapErr     string
	scene      mapsdk.Map
	markers    *markers.Manager
	gen        uint64
	mounted    bool
	unmounted  bool
	lastActive time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Widget.
type Option func(*Widget)

// WithClock overrides the wall clock used for cache busting and idle tracking.
func WithClock(now func() time.Time) Option {
	return func(w *Widget) {
		w.now = now
	}
}

// New creates an unmounted widget.
func New(id string, fetcher Fetcher, loader mapsdk.Loader, cfg Config, opts ...Option) *Widget {
	w := &Widget{
		id:        id,
		cfg:       cfg,
		fetcher:   fetcher,
		loader:    loader,
		now:       time.Now,
		status:    StatusLoading,
		mapStatus: StatusLoading,
		markers:   markers.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastActive = w.now()
	return w
}

// ID returns the widget identifier.
func (w *Widget) ID() string {
	return w.id
}

// Mount starts loading the map and the camera list concurrently.
func (w *Widget) Mount(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mounted || w.unmounted {
		return
	}
	w.mounted = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.status = StatusLoading
	w.gen++
	gen := w.gen

	w.wg.Add(2)
	go w.loadMap()
	go w.fetch(gen)
}

// Refresh re-enters loading and fetches the camera list again. The fetcher's
// cache still applies. A newer refresh supersedes an older one still in flight.
func (w *Widget) Refresh() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unmounted || !w.mounted {
		return ErrUnmounted
	}
	w.touch()
	w.status = StatusLoading
	w.gen++
	gen := w.gen

	w.wg.Add(1)
	go w.fetch(gen)
	return nil
}

func (w *Widget) fetch(gen uint64) {
	defer w.wg.Done()

	records, err := w.fetcher.Fetch(w.ctx, w.cfg.ResourceKey)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unmounted || gen != w.gen {
		log.Debug().Str("overlay", w.id).Uint64("gen", gen).Msg("overlay: dropping stale fetch result")
		return
	}

	if err != nil {
		log.Warn().Err(err).Str("overlay", w.id).Msg("overlay: camera fetch failed")
		w.status = StatusError
		w.errMsg = err.Error()
		if w.errMsg == "" {
			w.errMsg = defaultErrorMessage
		}
		w.records = nil
	} else {
		w.status = StatusReady
		w.errMsg = ""
		w.records = records
	}

	if w.detail != nil && !containsCamera(w.records, w.detail.Camera.ID) {
		w.detail = nil
	}
	w.reconcile()
}

func (w *Widget) loadMap() {
	defer w.wg.Done()

	m, err := w.loader.Load(w.ctx, w.cfg.Map)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unmounted {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("overlay", w.id).Msg("overlay: map failed to load")
		w.mapStatus = StatusError
		w.mapErr = err.Error()
		return
	}

	w.mapStatus = StatusReady
	w.scene = m
	w.markers.Attach(m)
	w.reconcile()
}

// reconcile syncs markers when the map is ready and there is something to show
// or something stale to clear. Callers hold w.mu.
func (w *Widget) reconcile() {
	if w.mapStatus != StatusReady {
		return
	}
	if len(w.records) == 0 && w.markers.Len() == 0 {
		return
	}
	if err := w.markers.Sync(w.records, w.onMarkerClick); err != nil {
		log.Error().Err(err).Str("overlay", w.id).Msg("overlay: marker sync failed")
		return
	}
	log.Debug().Str("overlay", w.id).Int("markers", w.markers.Len()).Msg("overlay: markers synced")
}

// onMarkerClick runs from the map's click dispatch, outside w.mu.
func (w *Widget) onMarkerClick(r traffic.CameraRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unmounted {
		return
	}
	w.touch()
	w.detail = w.newDetail(r)
}

func (w *Widget) newDetail(r traffic.CameraRecord) *Detail {
	now := w.now()
	return &Detail{
		Camera:     r,
		ImageURL:   cacheBusted(r.ImageURL, now),
		Fit:        "contain",
		Height:     "auto",
		SelectedAt: now,
	}
}

type clickDispatcher interface {
	Click(markerID string) error
}

// Click delivers a marker click to the map, which invokes the marker's handler.
// Markers from before a refresh are not clickable until the new list arrives.
func (w *Widget) Click(markerID string) error {
	w.mu.Lock()
	if w.unmounted {
		w.mu.Unlock()
		return ErrUnmounted
	}
	if w.status != StatusReady {
		w.mu.Unlock()
		return ErrLoading
	}
	scene := w.scene
	w.mu.Unlock()

	d, ok := scene.(clickDispatcher)
	if scene == nil || !ok {
		return ErrMapNotReady
	}
	return d.Click(markerID)
}

// Dismiss closes the detail panel. Markers are untouched.
func (w *Widget) Dismiss() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.detail = nil
}

// ImageFailed swaps the selected camera image for the placeholder.
func (w *Widget) ImageFailed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detail == nil {
		return ErrNoSelection
	}
	w.detail.ImageFailed = true
	w.detail.ImageURL = PlaceholderImage
	w.detail.Fit = "cover"
	w.detail.Height = "16rem"
	return nil
}

// Unmount cancels in-flight work and releases every map resource. Only the
// first call has an effect.
func (w *Widget) Unmount() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unmounted {
		return
	}
	w.unmounted = true
	if w.cancel != nil {
		w.cancel()
	}
	w.markers.Detach()
	w.scene = nil
	w.detail = nil
	log.Debug().Str("overlay", w.id).Msg("overlay: unmounted")
}

// Wait blocks until the map load and every fetch started so far have finished.
func (w *Widget) Wait() {
	w.wg.Wait()
}

// IdleSince returns the time of the last user interaction.
func (w *Widget) IdleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// Touch records activity without changing state, e.g. when a client polls the view.
func (w *Widget) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
}

func (w *Widget) touch() {
	w.lastActive = w.now()
}

// MapView is the map portion of a View.
type MapView struct {
	Status Status        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Frame  *mapsdk.Frame `json:"frame,omitempty"`
}

// View is a point-in-time snapshot of the widget.
type View struct {
	ID         string         `json:"id"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Cameras    int            `json:"cameras"`
	CanRefresh bool           `json:"canRefresh"`
	Map        MapView        `json:"map"`
	Markers    []markers.View `json:"markers"`
	Selected   *Detail        `json:"selected,omitempty"`
	Unmounted  bool           `json:"unmounted,omitempty"`
}

type frameRenderer interface {
	Render() mapsdk.Frame
}

// View returns the current snapshot. Markers and the map frame are only included
// once the camera list is ready, so a refresh never shows the previous marker set.
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		ID:         w.id,
		Status:     w.status,
		Error:      w.errMsg,
		Cameras:    len(w.records),
		CanRefresh: w.status != StatusLoading && !w.unmounted,
		Map:        MapView{Status: w.mapStatus, Error: w.mapErr},
		Unmounted:  w.unmounted,
	}
	if w.status == StatusReady {
		v.Markers = w.markers.Views()
	}
	if w.detail != nil {
		d := *w.detail
		v.Selected = &d
	}
	if r, ok := w.scene.(frameRenderer); ok && w.status == StatusReady {
		f := r.Render()
		v.Map.Frame = &f
	}
	return v
}

func containsCamera(records []traffic.CameraRecord, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// cacheBusted appends t=<unix ms> so a previously cached image is never reused.
func cacheBusted(raw string, at time.Time) string {
	t := strconv.FormatInt(at.UnixMilli(), 10)
	u, err := url.Parse(raw)
	if err != nil {
		return raw + "?t=" + t
	}
	q := u.Query()
	q.Set("t", t)
	u.RawQuery = q.Encode()
	return u.String()
}
