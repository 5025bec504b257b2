package types

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// TimestampLayout is the layout of Article.Created (yyyy-MM-dd HH:mm:ss)
const TimestampLayout = "2006-01-02 15:04:05"

type Format = string

var (
	Generic    = Format("generic")
	Structured = Format("structured")
)

// structuredHosts are served by the video platform and need the structured parser
var structuredHosts = []string{"youtube.com"}

// Source is a registered feed to crawl
type Source struct {
	ID     int64
	URL    string
	Format Format
}

// Article is the canonical record extracted from one feed item
type Article struct {
	Name        string
	Description string
	Image       *string // nil when the feed carries no image
	Link        string
	Created     string // TimestampLayout, see FormatTimestamp
}

// FeedFetcher retrieves raw feed bytes for a source URL
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// IsKnownFormat reports whether f names a supported feed format
func IsKnownFormat(f Format) bool {
	return f == Generic || f == Structured
}

// DetectFormat picks a format from the source URL host. It is only used when
// the registry does not carry an explicit format for a source.
func DetectFormat(rawURL string) Format {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Generic
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range structuredHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return Structured
		}
	}
	return Generic
}

// ResolveFormat returns f when it is a known format and falls back to
// DetectFormat otherwise
func ResolveFormat(f Format, rawURL string) Format {
	f = strings.ToLower(strings.TrimSpace(f))
	if IsKnownFormat(f) {
		return f
	}
	return DetectFormat(rawURL)
}

// FormatTimestamp renders t with TimestampLayout, converting to UTC first
// when toUTC is set
func FormatTimestamp(t time.Time, toUTC bool) string {
	if toUTC {
		t = t.UTC()
	}
	return t.Format(TimestampLayout)
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
