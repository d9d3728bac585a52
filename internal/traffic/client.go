package traffic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/cache"
)

const (
	DefaultBaseURL    = "https://data.calgary.ca/resource"
	DefaultResourceID = "k7p9-kppz"
	DefaultCacheKey   = "calgary-traffic-cameras"
)

var validate = validator.New()

// ErrInvalidFilter is returned for a filter the API would not understand.
var ErrInvalidFilter = errors.New("invalid filter")

// RemoteFetchError reports a failed camera fetch: either a non-2xx response or a
// transport failure. It is never retried.
type RemoteFetchError struct {
	StatusCode int
	StatusText string
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Traffic API Error: %v", e.Err)
	}
	return "Traffic API Error: " + e.StatusText
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// DefaultParams lifts the API's default page size so one request returns every camera.
func DefaultParams() url.Values {
	return url.Values{"$limit": {"1000"}}
}

// Filter narrows a camera query. Filtered queries are never cached.
type Filter struct {
	Quadrant string `validate:"required,oneof=NE NW SE SW"`
}

func (f Filter) params() url.Values {
	return url.Values{"quadrant": {f.Quadrant}}
}

// Config holds the data source settings.
type Config struct {
	BaseURL    string
	ResourceID string
	// DefaultParams are sent on every request; request parameters override them.
	DefaultParams url.Values
}

// Client fetches traffic cameras, serving unfiltered lists from a TTL cache.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *cache.Cache
}

// NewClient creates a camera client. The cache's TTL governs unfiltered fetches.
func NewClient(httpClient *http.Client, c *cache.Cache, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ResourceID == "" {
		cfg.ResourceID = DefaultResourceID
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		cache: c,
	}
}

// Fetch returns the full camera list, from the cache entry under resourceKey
// while it is fresh and from the network otherwise.
func (c *Client) Fetch(ctx context.Context, resourceKey string) ([]CameraRecord, error) {
	var cached []CameraRecord
	fetchedAt, ok, err := c.cache.Load(ctx, resourceKey, &cached)
	if err != nil {
		log.Warn().Err(err).Str("key", resourceKey).Msg("traffic: cache unavailable, fetching")
	}
	if ok {
		log.Debug().Str("key", resourceKey).Time("fetched_at", fetchedAt).Int("cameras", len(cached)).Msg("traffic: cache hit")
		return cached, nil
	}

	records, err := c.get(ctx, nil)
	if err != nil {
		return nil, err
	}

	if _, err := c.cache.Save(ctx, resourceKey, records); err != nil {
		log.Warn().Err(err).Str("key", resourceKey).Msg("traffic: failed to update cache")
	}
	return records, nil
}

// FetchFiltered queries the API directly for a subset of the resource's
// cameras. The cache entry under resourceKey is neither read nor written.
func (c *Client) FetchFiltered(ctx context.Context, resourceKey string, f Filter) ([]CameraRecord, error) {
	f.Quadrant = strings.ToUpper(f.Quadrant)
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	log.Debug().Str("key", resourceKey).Str("quadrant", f.Quadrant).Msg("traffic: filtered fetch")
	return c.get(ctx, f.params())
}

func (c *Client) buildURL(params url.Values) string {
	values := url.Values{}
	for k, v := range c.cfg.DefaultParams {
		values[k] = append([]string(nil), v...)
	}
	for k, v := range params {
		values[k] = append([]string(nil), v...)
	}
	u := fmt.Sprintf("%s/%s.json", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.ResourceID)
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, params url.Values) ([]CameraRecord, error) {
	u := c.buildURL(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &RemoteFetchError{Err: err}
	}

	log.Debug().Str("url", u).Msg("traffic: fetching cameras")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteFetchError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteFetchError{StatusCode: resp.StatusCode, Err: err}
	}
	records, err := DecodeCameras(body)
	if err != nil {
		return nil, &RemoteFetchError{StatusCode: resp.StatusCode, Err: err}
	}
	return records, nil
}

// statusText returns the reason phrase, e.g. "Service Unavailable".
func statusText(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// IsRemoteFetchError reports whether err is (or wraps) a RemoteFetchError.
func IsRemoteFetchError(err error) bool {
	var rfe *RemoteFetchError
	return errors.As(err, &rfe)
}
