package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scipunch/backlog/fetcher/types"
)

const (
	DefaultUserAgent    = "backlog/1.0 (+https://github.com/scipunch/backlog)"
	DefaultMaxFeedBytes = 10 << 20
)

// ErrTooLarge is returned when a feed body exceeds the configured limit
var ErrTooLarge = errors.New("feed body exceeds size limit")

// FetchError is a transport failure retrieving a feed
type FetchError struct {
	URL        string
	StatusCode int // zero for network level failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch '%s' failed with HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch '%s' failed with %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher downloads feeds over HTTP
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

type Option func(*HTTPFetcher)

func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewHTTPFetcher creates a fetcher. Cancellation and deadlines come from the
// context passed to Fetch.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: 5 * time.Minute},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxFeedBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ types.FeedFetcher = (*HTTPFetcher)(nil)

// Fetch returns the raw body of url. Non-2xx responses are FetchErrors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read body with %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{URL: url, Err: ErrTooLarge}
	}
	return body, nil
}
