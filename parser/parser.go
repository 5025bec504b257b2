package parser

import (
	"fmt"

	"github.com/scipunch/backlog/fetcher/types"
)

// MalformedItem describes a feed item that was dropped during parsing
type MalformedItem struct {
	Title     string
	SourceURL string
	Reason    string
}

// WarnFunc receives dropped items. It may be nil.
type WarnFunc func(MalformedItem)

// Options are per-format parser settings
type Options struct {
	// NormalizeToUTC converts publish dates to UTC before formatting
	NormalizeToUTC bool
}

// Parser turns raw feed bytes into articles. Malformed items are reported
// through warn and skipped; an error means the whole document is unusable.
type Parser interface {
	Parse(raw []byte, sourceURL string, warn WarnFunc) ([]types.Article, error)
}

// ParseError is returned when a document cannot be parsed at all
type ParseError struct {
	URL    string
	Format types.Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s feed '%s' failed with %s", e.Format, e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Set dispatches on the source format
type Set map[types.Format]Parser

// Normalize parses raw with the parser registered for src.Format
func (s Set) Normalize(raw []byte, src types.Source, warn WarnFunc) ([]types.Article, error) {
	p, ok := s[src.Format]
	if !ok {
		return nil, &ParseError{URL: src.URL, Format: src.Format, Err: fmt.Errorf("no parser for format %q", src.Format)}
	}
	articles, err := p.Parse(raw, src.URL, warn)
	if err != nil {
		return nil, &ParseError{URL: src.URL, Format: src.Format, Err: err}
	}
	return articles, nil
}

// Warn reports a dropped item when warn is set
func Warn(warn WarnFunc, title, sourceURL, reason string) {
	if warn != nil {
		warn(MalformedItem{Title: title, SourceURL: sourceURL, Reason: reason})
	}
}
