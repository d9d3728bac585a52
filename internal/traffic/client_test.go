package traffic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/cache"
	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/store"
)

const camerasJSON = `[
  {
    "camera_url": {"url": "https://trafficcam.calgary.ca/loc1.jpg", "description": "Camera 1"},
    "camera_location": "Macleod Trail & 9 Avenue SE",
    "quadrant": "SE",
    "point": {"type": "Point", "coordinates": [-114.0572, 51.0446]}
  },
  {
    "camera_url": {"url": "https://trafficcam.calgary.ca/loc2.jpg", "description": "Camera 2"},
    "camera_location": "Crowchild Trail & Bow Trail SW",
    "quadrant": "SW",
    "point": {"type": "Point", "coordinates": [-114.1263, 51.0485]}
  }
]`

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

type apiServer struct {
	*httptest.Server
	calls   atomic.Int32
	lastURL atomic.Value
	status  atomic.Int32
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.lastURL.Store(r.URL.String())
		if code := int(s.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(camerasJSON))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestClient(srv *apiServer, clk *fakeClock) (*Client, *cache.Cache) {
	c := cache.New(store.NewMemoryStore(0), 30*time.Minute, cache.WithClock(clk.Now))
	return NewClient(srv.Client(), c, Config{
		BaseURL:       srv.URL,
		ResourceID:    DefaultResourceID,
		DefaultParams: DefaultParams(),
	}), c
}

func TestDecodeCameras(t *testing.T) {
	records, err := DecodeCameras([]byte(camerasJSON))
	require.NoError(t, err)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, geo.New(51.0446, -114.0572), r.Location)
	assert.Equal(t, "Camera 1", r.Description)
	assert.Equal(t, "https://trafficcam.calgary.ca/loc1.jpg", r.ImageURL)
	assert.Equal(t, "Macleod Trail & 9 Avenue SE", r.Place)
	assert.Equal(t, "SE", r.Quadrant)
	assert.NotEmpty(t, r.ID)

	again, err := DecodeCameras([]byte(camerasJSON))
	require.NoError(t, err)
	assert.Equal(t, r.ID, again[0].ID, "ids are stable across decodes")
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestDecodeCameras_RejectsNonPoint(t *testing.T) {
	_, err := DecodeCameras([]byte(`[{"point":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]`))
	assert.Error(t, err)

	_, err = DecodeCameras([]byte(`[{"camera_location":"x"}]`))
	assert.Error(t, err)
}

func TestFetch_CacheScenario(t *testing.T) {
	srv := newAPIServer(t)
	clk := &fakeClock{t: time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)}
	client, c := newTestClient(srv, clk)
	ctx := context.Background()

	first, err := client.Fetch(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())
	entry, ok := c.Peek(ctx, DefaultCacheKey)
	require.True(t, ok)
	assert.Equal(t, clk.t.UnixMilli(), entry.Timestamp)

	clk.t = clk.t.Add(10 * time.Minute)
	second, err := client.Fetch(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.calls.Load(), "no network call inside the ttl")
	assert.Equal(t, first, second)

	clk.t = clk.t.Add(25 * time.Minute) // 35 minutes after the first fetch
	_, err = client.Fetch(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.calls.Load())
	entry, ok = c.Peek(ctx, DefaultCacheKey)
	require.True(t, ok)
	assert.Equal(t, clk.t.UnixMilli(), entry.Timestamp, "timestamp refreshed")
}

func TestFetch_BuildsURLWithDefaults(t *testing.T) {
	srv := newAPIServer(t)
	client, _ := newTestClient(srv, &fakeClock{t: time.Now()})

	_, err := client.Fetch(context.Background(), DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, "/k7p9-kppz.json?%24limit=1000", srv.lastURL.Load())
}

func TestFetchFiltered_BypassesCache(t *testing.T) {
	srv := newAPIServer(t)
	client, c := newTestClient(srv, &fakeClock{t: time.Now()})
	ctx := context.Background()

	_, err := client.FetchFiltered(ctx, DefaultCacheKey, Filter{Quadrant: "ne"})
	require.NoError(t, err)
	_, err = client.FetchFiltered(ctx, DefaultCacheKey, Filter{Quadrant: "NE"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), srv.calls.Load())
	assert.Equal(t, "/k7p9-kppz.json?%24limit=1000&quadrant=NE", srv.lastURL.Load())
	_, ok := c.Peek(ctx, DefaultCacheKey)
	assert.False(t, ok, "filtered queries never populate the cache")
}

func TestFetchFiltered_IgnoresFreshEntry(t *testing.T) {
	srv := newAPIServer(t)
	clk := &fakeClock{t: time.Now()}
	client, c := newTestClient(srv, clk)
	ctx := context.Background()

	_, err := client.Fetch(ctx, DefaultCacheKey)
	require.NoError(t, err)
	before, ok := c.Peek(ctx, DefaultCacheKey)
	require.True(t, ok)

	clk.t = clk.t.Add(time.Minute)
	_, err = client.FetchFiltered(ctx, DefaultCacheKey, Filter{Quadrant: "SW"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), srv.calls.Load())
	after, ok := c.Peek(ctx, DefaultCacheKey)
	require.True(t, ok)
	assert.Equal(t, before.Timestamp, after.Timestamp, "the unfiltered entry is untouched")
}

func TestFetchFiltered_InvalidQuadrant(t *testing.T) {
	srv := newAPIServer(t)
	client, _ := newTestClient(srv, &fakeClock{t: time.Now()})

	_, err := client.FetchFiltered(context.Background(), DefaultCacheKey, Filter{Quadrant: "north"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestRequestParamsOverrideDefaults(t *testing.T) {
	client := NewClient(nil, nil, Config{
		BaseURL:       "https://example.test/resource/",
		ResourceID:    "abcd",
		DefaultParams: url.Values{"quadrant": {"SW"}, "$limit": {"5"}},
	})
	u := client.buildURL(url.Values{"quadrant": {"NE"}})
	assert.Equal(t, "https://example.test/resource/abcd.json?%24limit=5&quadrant=NE", u)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := newAPIServer(t)
	srv.status.Store(http.StatusServiceUnavailable)
	client, c := newTestClient(srv, &fakeClock{t: time.Now()})
	ctx := context.Background()

	_, err := client.Fetch(ctx, DefaultCacheKey)
	require.Error(t, err)

	var rfe *RemoteFetchError
	require.True(t, errors.As(err, &rfe))
	assert.Equal(t, http.StatusServiceUnavailable, rfe.StatusCode)
	assert.Equal(t, "Service Unavailable", rfe.StatusText)
	assert.Equal(t, "Traffic API Error: Service Unavailable", err.Error())
	assert.True(t, IsRemoteFetchError(err))

	// no retry
	assert.Equal(t, int32(1), srv.calls.Load())
	_, ok := c.Peek(ctx, DefaultCacheKey)
	assert.False(t, ok)
}

func TestFetch_NetworkFailure(t *testing.T) {
	srv := newAPIServer(t)
	client, _ := newTestClient(srv, &fakeClock{t: time.Now()})
	srv.Close()

	_, err := client.Fetch(context.Background(), DefaultCacheKey)
	require.Error(t, err)
	assert.True(t, IsRemoteFetchError(err))
}
