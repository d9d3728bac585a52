package markers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/traffic"
)

func cameras(n int, offset int) []traffic.CameraRecord {
	out := make([]traffic.CameraRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, traffic.CameraRecord{
			ID:       fmt.Sprintf("cam-%d", offset+i),
			Location: geo.New(51.0+float64(offset+i)*0.05, -114.0),
			Place:    fmt.Sprintf("Camera %d", offset+i),
		})
	}
	return out
}

func attached() (*Manager, *mapsdk.Scene) {
	scene := mapsdk.NewScene(mapsdk.Options{Center: geo.New(51.0447, -114.0719), Zoom: 12})
	mgr := New()
	mgr.Attach(scene)
	return mgr, scene
}

func TestSync_BeforeAttach(t *testing.T) {
	mgr := New()
	err := mgr.Sync(cameras(2, 0), nil)
	assert.True(t, errors.Is(err, ErrNotAttached))
}

func TestAttach_CreatesEmptyClusterer(t *testing.T) {
	mgr, scene := attached()
	assert.True(t, mgr.Attached())
	assert.True(t, mgr.HasClusterer())
	assert.Equal(t, 1, scene.Clusterers())
	assert.Equal(t, 0, scene.LiveMarkers())
	assert.Equal(t, 0, mgr.Len())
}

func TestSync_ReplacesNotAppends(t *testing.T) {
	mgr, scene := attached()

	require.NoError(t, mgr.Sync(cameras(5, 0), nil))
	assert.Equal(t, 5, scene.LiveMarkers())

	require.NoError(t, mgr.Sync(cameras(3, 100), nil))
	assert.Equal(t, 3, scene.LiveMarkers(), "exactly |B| live markers")
	assert.Equal(t, 3, mgr.Len())
	assert.Equal(t, 3, scene.ClusteredMarkers())
}

func TestSync_SameRecordsTwice(t *testing.T) {
	mgr, scene := attached()
	recs := cameras(4, 0)

	require.NoError(t, mgr.Sync(recs, nil))
	first := mgr.Views()
	require.NoError(t, mgr.Sync(recs, nil))
	second := mgr.Views()

	assert.Equal(t, 4, scene.LiveMarkers())
	require.Len(t, second, 4)
	for i := range first {
		assert.Equal(t, first[i].CameraID, second[i].CameraID)
		assert.Equal(t, first[i].Position, second[i].Position)
		assert.NotEqual(t, first[i].MarkerID, second[i].MarkerID, "fresh handles each sync")
	}
}

func TestSync_ClickSelectsRecord(t *testing.T) {
	mgr, scene := attached()
	recs := cameras(3, 0)

	var selected *traffic.CameraRecord
	require.NoError(t, mgr.Sync(recs, func(r traffic.CameraRecord) { selected = &r }))

	views := mgr.Views()
	require.NoError(t, scene.Click(views[1].MarkerID))
	require.NotNil(t, selected)
	assert.Equal(t, recs[1], *selected)
}

func TestSync_EmptyClearsMarkers(t *testing.T) {
	mgr, scene := attached()
	require.NoError(t, mgr.Sync(cameras(3, 0), nil))
	require.NoError(t, mgr.Sync(nil, nil))
	assert.Equal(t, 0, scene.LiveMarkers())
	assert.Equal(t, 0, mgr.Len())
}

func TestDetach(t *testing.T) {
	mgr, scene := attached()
	require.NoError(t, mgr.Sync(cameras(4, 0), nil))
	require.NoError(t, mgr.Sync(cameras(2, 10), nil))

	mgr.Detach()
	assert.Equal(t, 0, scene.LiveMarkers())
	assert.Equal(t, 0, scene.Clusterers())
	assert.Equal(t, 0, mgr.Len())
	assert.False(t, mgr.HasClusterer())
	assert.False(t, mgr.Attached())

	// idempotent
	mgr.Detach()
	assert.ErrorIs(t, mgr.Sync(cameras(1, 0), nil), ErrNotAttached)
}

func TestDetach_NeverAttached(t *testing.T) {
	mgr := New()
	assert.NotPanics(t, mgr.Detach)
}

func TestAttach_Twice(t *testing.T) {
	mgr, first := attached()
	require.NoError(t, mgr.Sync(cameras(2, 0), nil))

	second := mapsdk.NewScene(mapsdk.Options{Zoom: 12})
	mgr.Attach(second)
	assert.Equal(t, 0, first.LiveMarkers())
	assert.Equal(t, 0, first.Clusterers())
	assert.Equal(t, 1, second.Clusterers())
}

func TestClusterScale(t *testing.T) {
	assert.Equal(t, 10.0, ClusterScale(1))
	assert.Equal(t, 12.0, ClusterScale(2))
	assert.Equal(t, 16.0, ClusterScale(8))
	assert.Equal(t, 30.0, ClusterScale(1024))

	prev := ClusterScale(1)
	for n := 2; n < 5000; n *= 3 {
		s := ClusterScale(n)
		assert.Greater(t, s, prev)
		prev = s
	}
}

func TestClusterIcon(t *testing.T) {
	opts := ClusterIcon(17, geo.New(1, 2))
	require.NotNil(t, opts.Label)
	assert.Equal(t, "17", opts.Label.Text)
	assert.Equal(t, markerColor, opts.Icon.FillColor)
	assert.Equal(t, 0.9, opts.Icon.FillOpacity)
	assert.Equal(t, geo.New(1, 2), opts.Position)
}
