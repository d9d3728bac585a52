package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/traffic"
)

type staticFetcher struct {
	records []traffic.CameraRecord
}

func (s staticFetcher) Fetch(context.Context, string) ([]traffic.CameraRecord, error) {
	return s.records, nil
}

func TestRegistry_MountGetUnmount(t *testing.T) {
	l := newGatedLoader()
	l.open()
	r := NewRegistry(context.Background(), staticFetcher{records: cameras(3, 0)}, l, Config{})

	w := r.Mount()
	w.Wait()
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(w.ID())
	require.NoError(t, err)
	assert.Same(t, w, got)
	assert.Equal(t, 3, l.scene.LiveMarkers())

	require.NoError(t, r.Unmount(w.ID()))
	assert.Equal(t, 0, l.scene.LiveMarkers())
	assert.Equal(t, 0, r.Len())

	_, err = r.Get(w.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Unmount(w.ID()), ErrNotFound)
}

func TestRegistry_SweepIdle(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	l := newGatedLoader()
	l.open()
	r := NewRegistry(context.Background(), staticFetcher{}, l, Config{}, WithClock(clock))

	stale := r.Mount()
	now = now.Add(20 * time.Minute)
	fresh := r.Mount()
	stale.Wait()
	fresh.Wait()

	removed := r.SweepIdle(now, 15*time.Minute)
	assert.Equal(t, 1, removed)

	_, err := r.Get(stale.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(fresh.ID())
	assert.NoError(t, err)
	assert.True(t, stale.View().Unmounted)
}

func TestRegistry_Close(t *testing.T) {
	l := newGatedLoader()
	l.open()
	r := NewRegistry(context.Background(), staticFetcher{records: cameras(2, 0)}, l, Config{})

	a := r.Mount()
	b := r.Mount()
	a.Wait()
	b.Wait()

	r.Close()
	assert.Equal(t, 0, r.Len())
	assert.True(t, a.View().Unmounted)
	assert.True(t, b.View().Unmounted)
}

func TestRegistry_TouchKeepsWidgetAlive(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	l := newGatedLoader()
	l.open()
	r := NewRegistry(context.Background(), staticFetcher{}, l, Config{}, WithClock(clock))

	w := r.Mount()
	w.Wait()
	now = now.Add(20 * time.Minute)
	w.Touch()

	assert.Equal(t, 0, r.SweepIdle(now, 15*time.Minute))
	assert.Equal(t, now, w.IdleSince())
}
