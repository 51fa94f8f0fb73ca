package yad2

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"apartments-scraper/models"
	"apartments-scraper/utils"
)

const (
	DefaultFeedURL = "https://gw.yad2.co.il/realestate-feed/rent/map"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodyBytes = 16 << 20
)

// FeedClient fetches the listings of one area query.
type FeedClient interface {
	Fetch(ctx context.Context, q models.AreaQuery) ([]models.RawRecord, error)
}

// StatusError is a non-2xx feed response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Code, e.URL)
}

// FeedParams are the fixed query parameters of the rent map feed.
type FeedParams struct {
	BaseURL  string
	Property int
	TopArea  int
}

// URL builds the feed request URL for q.
func (p FeedParams) URL(q models.AreaQuery) string {
	base := p.BaseURL
	if base == "" {
		base = DefaultFeedURL
	}
	v := url.Values{}
	v.Set("property", strconv.Itoa(p.Property))
	v.Set("topArea", strconv.Itoa(p.TopArea))
	v.Set("area", strconv.Itoa(q.AreaID))
	v.Set("city", strconv.Itoa(q.CityID))
	v.Set("neighborhood", strconv.Itoa(q.NeighborhoodID))
	return base + "?" + v.Encode()
}

// HTTPClient talks to the feed over plain HTTP.
type HTTPClient struct {
	params  FeedParams
	client  *http.Client
	timeout time.Duration
	retry   *utils.RetryConfig
}

// HTTPOptions configures NewHTTPClient.
type HTTPOptions struct {
	Params     FeedParams
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	Logger     *utils.Logger
}

// NewHTTPClient creates a feed client. Each attempt is bounded by Timeout.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPClient{
		params:  opts.Params,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   500 * time.Millisecond,
			Logger:      opts.Logger,
		},
	}
}

// Fetch requests the feed for q and decodes its markers.
func (c *HTTPClient) Fetch(ctx context.Context, q models.AreaQuery) ([]models.RawRecord, error) {
	feedURL := c.params.URL(q)

	var body []byte
	err := c.retry.Do(ctx, "feed "+q.String(), func(ctx context.Context) error {
		b, err := c.get(ctx, feedURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return DecodeFeed(body)
}

func (c *HTTPClient) get(ctx context.Context, feedURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "feed: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Code: resp.StatusCode, URL: redact(feedURL)}
		if utils.IsTransientStatus(resp.StatusCode) {
			return nil, utils.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "feed: read body")
	}
	return body, nil
}

// redact drops the query string, the identifiers are logged separately.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
