// Package routing queries an OSRM-compatible routing service for walking
// distances.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

const DefaultBaseURL = "http://router.project-osrm.org"

// ErrNoRoute means the service answered but found no route.
var ErrNoRoute = errors.New("no route")

// Router returns the walking distance in meters between two points.
type Router interface {
	WalkingDistance(ctx context.Context, from, to models.Coordinate) (float64, error)
}

// OSRMClient calls the OSRM route service with the foot profile.
type OSRMClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	retry   *utils.RetryConfig
	cache   gcache.Cache
	logger  *utils.Logger
}

// Options configures NewOSRMClient.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	MaxRetries int
	CacheSize  int
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *utils.Logger
}

// NewOSRMClient creates a rate limited, caching OSRM client. A RatePerSec of
// zero or less disables rate limiting.
func NewOSRMClient(opts Options) *OSRMClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 10000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = int(math.Max(1, math.Ceil(opts.RatePerSec)))
	}

	return &OSRMClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   500 * time.Millisecond,
			Logger:      opts.Logger,
		},
		cache: gcache.New(opts.CacheSize).
			LRU().
			Expiration(opts.CacheTTL).
			Build(),
		logger: opts.Logger,
	}
}

// WalkingDistance returns routes[0].distance for the walk from -> to.
// ErrNoRoute results are cached like distances.
func (c *OSRMClient) WalkingDistance(ctx context.Context, from, to models.Coordinate) (float64, error) {
	key := cacheKey(from, to)
	if cached, err := c.cache.Get(key); err == nil {
		if d, ok := cached.(float64); ok {
			if d < 0 {
				return 0, ErrNoRoute
			}
			return d, nil
		}
	}

	var distance float64
	err := c.retry.Do(ctx, "osrm route", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "osrm: rate limiter wait")
		}
		d, err := c.route(ctx, from, to)
		if err != nil {
			return err
		}
		distance = d
		return nil
	})
	switch {
	case errors.Is(err, ErrNoRoute):
		_ = c.cache.Set(key, -1.0)
		return 0, ErrNoRoute
	case err != nil:
		return 0, err
	}

	_ = c.cache.Set(key, distance)
	return distance, nil
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (c *OSRMClient) route(ctx context.Context, from, to models.Coordinate) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/route/v1/foot/%f,%f;%f,%f?overview=false",
		c.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, eris.Wrap(err, "osrm: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// OSRM answers "no route" style failures with 400 and a JSON code.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var rr routeResponse
		if json.Unmarshal(body, &rr) == nil && (rr.Code == "NoRoute" || rr.Code == "NoSegment") {
			return 0, ErrNoRoute
		}
		statusErr := eris.Errorf("osrm: status %d", resp.StatusCode)
		if utils.IsTransientStatus(resp.StatusCode) {
			return 0, utils.NewTransientError(statusErr, resp.StatusCode)
		}
		return 0, statusErr
	}

	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return 0, eris.Wrap(err, "osrm: decode response")
	}
	if len(rr.Routes) == 0 {
		return 0, ErrNoRoute
	}
	d := rr.Routes[0].Distance
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, eris.Errorf("osrm: invalid distance %v", d)
	}
	c.logger.Debug("[osrm] %.5f,%.5f -> %.5f,%.5f: %.0fm", from.Lat, from.Lon, to.Lat, to.Lon, d)
	return d, nil
}

// cacheKey identifies a pair at about 0.1m, so only repeat lookups of the
// same points share an entry.
func cacheKey(from, to models.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f", from.Lat, from.Lon, to.Lat, to.Lon)
}
