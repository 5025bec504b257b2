package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/scipunch/backlog/fetcher/types"
)

// Scheme names a URL scheme handled by a fetcher
type Scheme = string

var (
	HTTP  = Scheme("http")
	HTTPS = Scheme("https")
	File  = Scheme("file")
)

// Mux routes a fetch to the fetcher registered for the URL scheme
type Mux struct {
	fetchers map[Scheme]types.FeedFetcher
}

// GetFetchers creates a Mux serving http, https and file URLs
func GetFetchers(opts ...Option) *Mux {
	h := NewHTTPFetcher(opts...)
	return &Mux{fetchers: map[Scheme]types.FeedFetcher{
		HTTP:  h,
		HTTPS: h,
		File:  FileFetcher{},
	}}
}

func (m *Mux) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	f, ok := m.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unknown url scheme: %q", u.Scheme)}
	}
	return f.Fetch(ctx, rawURL)
}

// FileFetcher reads feeds from the local filesystem (file:///path/feed.xml)
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	dat, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return dat, nil
}
