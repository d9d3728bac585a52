package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/traffic"
)

type fetchResult struct {
	records []traffic.CameraRecord
	err     error
}

// gatedFetcher blocks each Fetch until a result is pushed.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   int
	results chan fetchResult
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{results: make(chan fetchResult)}
}

func (f *gatedFetcher) Fetch(ctx context.Context, _ string) ([]traffic.CameraRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	select {
	case r := <-f.results:
		return r.records, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *gatedFetcher) push(records []traffic.CameraRecord, err error) {
	f.results <- fetchResult{records: records, err: err}
}

// gatedLoader blocks Load until release is called.
type gatedLoader struct {
	scene   *mapsdk.Scene
	err     error
	release chan struct{}
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{
		scene:   mapsdk.NewScene(mapsdk.Options{Center: geo.New(51.0447, -114.0719), Zoom: 12}),
		release: make(chan struct{}),
	}
}

func (l *gatedLoader) Load(ctx context.Context, _ mapsdk.Options) (mapsdk.Map, error) {
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.scene, nil
}

func (l *gatedLoader) open() { close(l.release) }

func cameras(n, offset int) []traffic.CameraRecord {
	out := make([]traffic.CameraRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, traffic.CameraRecord{
			ID:       fmt.Sprintf("cam-%d", offset+i),
			Location: geo.New(50.9+float64(offset+i)*0.03, -114.1),
			ImageURL: fmt.Sprintf("https://trafficcam.calgary.ca/loc%d.jpg", offset+i),
			Place:    fmt.Sprintf("Place %d", offset+i),
			Quadrant: "NW",
		})
	}
	return out
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newWidget(f Fetcher, l mapsdk.Loader) *Widget {
	return New("w1", f, l, Config{ResourceKey: traffic.DefaultCacheKey}, WithClock(func() time.Time { return fixedNow }))
}

func waitStatus(t *testing.T, w *Widget, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return w.View().Status == want }, time.Second, time.Millisecond)
}

func waitMap(t *testing.T, w *Widget, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return w.View().Map.Status == want }, time.Second, time.Millisecond)
}

func TestMount_DataBeforeMap(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	v := w.View()
	assert.Equal(t, StatusLoading, v.Status)
	assert.False(t, v.CanRefresh)

	f.push(cameras(4, 0), nil)
	waitStatus(t, w, StatusReady)
	assert.Equal(t, 0, l.scene.LiveMarkers(), "no map yet")

	l.open()
	w.Wait()
	assert.Equal(t, 4, l.scene.LiveMarkers())
	assert.Len(t, w.View().Markers, 4)
}

func TestMount_MapBeforeData(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	waitMap(t, w, StatusReady)
	assert.Equal(t, 0, l.scene.LiveMarkers())

	f.push(cameras(3, 0), nil)
	w.Wait()
	assert.Equal(t, 3, l.scene.LiveMarkers())

	v := w.View()
	assert.Equal(t, StatusReady, v.Status)
	require.NotNil(t, v.Map.Frame)
	assert.True(t, v.CanRefresh)
}

func TestFetchError_ThenRetry(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(nil, &traffic.RemoteFetchError{StatusCode: 503, StatusText: "Service Unavailable"})
	w.Wait()

	v := w.View()
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, "Traffic API Error: Service Unavailable", v.Error)
	assert.Nil(t, v.Map.Frame)

	require.NoError(t, w.Refresh())
	assert.Equal(t, StatusLoading, w.View().Status)
	f.push(cameras(2, 0), nil)
	w.Wait()

	v = w.View()
	assert.Equal(t, StatusReady, v.Status)
	assert.Empty(t, v.Error)
	assert.Equal(t, 2, l.scene.LiveMarkers())
}

func TestFetchError_EmptyMessage(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(nil, errors.New(""))
	w.Wait()
	assert.Equal(t, defaultErrorMessage, w.View().Error)
}

func TestRefresh_ReplacesMarkers(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(cameras(5, 0), nil)
	w.Wait()
	require.Equal(t, 5, l.scene.LiveMarkers())

	stale := w.View().Markers
	require.Len(t, stale, 5)

	require.NoError(t, w.Refresh())
	v := w.View()
	assert.Equal(t, StatusLoading, v.Status)
	assert.Nil(t, v.Map.Frame, "previous markers are not drawn while loading")
	assert.Empty(t, v.Markers)
	assert.ErrorIs(t, w.Click(stale[0].MarkerID), ErrLoading)
	assert.Nil(t, w.View().Selected)

	f.push(cameras(2, 50), nil)
	w.Wait()
	assert.Equal(t, 2, l.scene.LiveMarkers())
	assert.Equal(t, StatusReady, w.View().Status)
}

func TestRefresh_ToEmptyClearsMarkers(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(cameras(3, 0), nil)
	w.Wait()

	require.NoError(t, w.Refresh())
	f.push(nil, nil)
	w.Wait()
	assert.Equal(t, 0, l.scene.LiveMarkers())
}

func TestRefresh_ErrorClearsMarkers(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(cameras(3, 0), nil)
	w.Wait()

	require.NoError(t, w.Refresh())
	f.push(nil, errors.New("boom"))
	w.Wait()
	assert.Equal(t, StatusError, w.View().Status)
	assert.Equal(t, 0, l.scene.LiveMarkers())
}

func TestRefresh_SupersedesInFlightFetch(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()
	l.open()

	require.NoError(t, w.Refresh())
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.calls == 2
	}, time.Second, time.Millisecond)

	// Both fetches are parked; whichever receives the first result, only the
	// newest generation is applied.
	f.push(cameras(7, 0), nil)
	f.push(cameras(1, 0), nil)
	w.Wait()

	v := w.View()
	assert.Equal(t, StatusReady, v.Status)
	assert.Contains(t, []int{1, 7}, v.Cameras)
	assert.Equal(t, v.Cameras, l.scene.LiveMarkers())
}

func TestSelectAndDismiss(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	recs := cameras(3, 0)
	f.push(recs, nil)
	w.Wait()

	views := w.View().Markers
	require.Len(t, views, 3)
	require.NoError(t, w.Click(views[2].MarkerID))

	v := w.View()
	require.NotNil(t, v.Selected)
	assert.Equal(t, recs[2], v.Selected.Camera)
	assert.Equal(t, fmt.Sprintf("%s?t=%d", recs[2].ImageURL, fixedNow.UnixMilli()), v.Selected.ImageURL)
	assert.Equal(t, "contain", v.Selected.Fit)

	w.Dismiss()
	v = w.View()
	assert.Nil(t, v.Selected)
	assert.Len(t, v.Markers, 3)
	assert.Equal(t, 3, l.scene.LiveMarkers())
}

func TestSelectionClearedWhenCameraDisappears(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(cameras(3, 0), nil)
	w.Wait()
	require.NoError(t, w.Click(w.View().Markers[0].MarkerID))

	require.NoError(t, w.Refresh())
	f.push(cameras(3, 10), nil)
	w.Wait()
	assert.Nil(t, w.View().Selected)
}

func TestImageFailed(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	assert.ErrorIs(t, w.ImageFailed(), ErrNoSelection)

	l.open()
	f.push(cameras(1, 0), nil)
	w.Wait()
	require.NoError(t, w.Click(w.View().Markers[0].MarkerID))
	require.NoError(t, w.ImageFailed())

	d := w.View().Selected
	require.NotNil(t, d)
	assert.True(t, d.ImageFailed)
	assert.Equal(t, PlaceholderImage, d.ImageURL)
	assert.Equal(t, "cover", d.Fit)
	assert.Equal(t, "16rem", d.Height)
}

func TestMapLoadError(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	l.err = mapsdk.ErrMapLoad
	w := newWidget(f, l)
	w.Mount(context.Background())
	defer w.Unmount()

	l.open()
	f.push(cameras(2, 0), nil)
	w.Wait()

	v := w.View()
	assert.Equal(t, StatusError, v.Map.Status)
	assert.Equal(t, mapsdk.ErrMapLoad.Error(), v.Map.Error)
	assert.Equal(t, StatusReady, v.Status, "camera list is independent of the map")
	assert.Empty(t, v.Markers)
	assert.ErrorIs(t, w.Click("anything"), ErrMapNotReady)
}

func TestUnmount_ReleasesMarkersAndIgnoresLateResults(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())

	l.open()
	f.push(cameras(4, 0), nil)
	w.Wait()
	require.Equal(t, 4, l.scene.LiveMarkers())

	require.NoError(t, w.Refresh())
	w.Unmount()
	w.Wait() // the parked fetch observes cancellation

	v := w.View()
	assert.True(t, v.Unmounted)
	assert.Equal(t, StatusLoading, v.Status, "no state update after unmount")
	assert.Equal(t, 0, l.scene.LiveMarkers())
	assert.Equal(t, 0, l.scene.Clusterers())

	assert.NotPanics(t, w.Unmount)
	assert.ErrorIs(t, w.Refresh(), ErrUnmounted)
	assert.ErrorIs(t, w.Click("x"), ErrUnmounted)
}

func TestUnmount_BeforeMapLoads(t *testing.T) {
	f, l := newGatedFetcher(), newGatedLoader()
	w := newWidget(f, l)
	w.Mount(context.Background())

	w.Unmount()
	w.Wait()
	assert.Equal(t, 0, l.scene.Clusterers(), "map never attached")
}

func TestCacheBusted(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	assert.Equal(t, "https://x.test/a.jpg?t=1700000000000", cacheBusted("https://x.test/a.jpg", at))
	assert.Equal(t, "https://x.test/a.jpg?s=1&t=1700000000000", cacheBusted("https://x.test/a.jpg?s=1", at))
}
