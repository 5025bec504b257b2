// Package youtube parses YouTube channel feeds. These are Atom documents whose
// useful fields live in the yt: and media: namespaces, so they are read as a
// generic XML tree instead of through the syndication parser.
package youtube

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/mitchellh/mapstructure"

	"github.com/scipunch/backlog/fetcher/types"
	"github.com/scipunch/backlog/parser"
)

var ErrNoFeed = errors.New("document has no feed element")

type Parser struct {
	opts parser.Options
}

func New(opts parser.Options) (Parser, error) {
	return Parser{opts: opts}, nil
}

type Document struct {
	Feed Feed `mapstructure:"feed"`
}

type Feed struct {
	ChannelID string `mapstructure:"channelId"`
	Title     string `mapstructure:"title"`
	// Entries are decoded one at a time so a bad entry only drops itself
	Entries []any `mapstructure:"entry"`
}

type Entry struct {
	ID        string    `mapstructure:"id"`
	VideoID   string    `mapstructure:"yt:videoId"`
	Title     string    `mapstructure:"title"`
	Links     []Link    `mapstructure:"link"`
	Published time.Time `mapstructure:"published"`
	Group     Group     `mapstructure:"group"`
}

type Link struct {
	Rel  string `mapstructure:"@rel"`
	Href string `mapstructure:"href"`
}

type Group struct {
	Title       string      `mapstructure:"title"`
	Description string      `mapstructure:"description"`
	Thumbnails  []Thumbnail `mapstructure:"thumbnail"`
}

type Thumbnail struct {
	URL string `mapstructure:"url"`
}

func (p Parser) Parse(raw []byte, sourceURL string, warn parser.WarnFunc) ([]types.Article, error) {
	feed, err := ReadFeed(raw)
	if err != nil {
		return nil, err
	}

	articles := make([]types.Article, 0, len(feed.Entries))
	for i, rawEntry := range feed.Entries {
		var entry Entry
		if err := decode(rawEntry, &entry); err != nil {
			parser.Warn(warn, entryTitle(rawEntry, i), sourceURL, err.Error())
			continue
		}

		article, reason := p.toArticle(entry)
		if reason != "" {
			title := entry.Title
			if title == "" {
				title = entryTitle(rawEntry, i)
			}
			parser.Warn(warn, title, sourceURL, reason)
			continue
		}
		articles = append(articles, article)
	}

	return articles, nil
}

// ReadFeed parses raw into a Feed with undecoded entries
func ReadFeed(raw []byte) (Feed, error) {
	var feed Feed

	root, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return feed, fmt.Errorf("failed to parse xml with %w", err)
	}

	doc, ok := rewriteKeys(toDocument(root)).(map[string]any)
	if !ok {
		return feed, ErrNoFeed
	}
	v, ok := doc["feed"]
	if !ok {
		return feed, ErrNoFeed
	}
	// <feed/> without children collapses to its (empty) text
	if _, empty := v.(string); empty {
		return feed, nil
	}

	var d Document
	if err := decode(doc, &d); err != nil {
		return feed, fmt.Errorf("failed to decode feed with %w", err)
	}
	return d.Feed, nil
}

func (p Parser) toArticle(e Entry) (types.Article, string) {
	name := strings.TrimSpace(e.Title)
	if name == "" {
		return types.Article{}, "entry has no title"
	}
	link := e.link()
	if link == "" {
		return types.Article{}, "entry has no link"
	}
	if e.Published.IsZero() {
		return types.Article{}, "entry has no publish date"
	}

	return types.Article{
		Name:        name,
		Description: e.Group.Description,
		Image:       types.StringPtr(e.thumbnail()),
		Link:        link,
		Created:     types.FormatTimestamp(e.Published, p.opts.NormalizeToUTC),
	}, ""
}

// link prefers the alternate link, falling back to the first with an href
func (e Entry) link() string {
	var first string
	for _, l := range e.Links {
		href := strings.TrimSpace(l.Href)
		if href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return href
		}
		if first == "" {
			first = href
		}
	}
	return first
}

func (e Entry) thumbnail() string {
	for _, t := range e.Group.Thumbnails {
		if u := strings.TrimSpace(t.URL); u != "" {
			return u
		}
	}
	return ""
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			trimTimeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

var timeType = reflect.TypeOf(time.Time{})

// trimTimeHook strips the padding text nodes keep before a timestamp is parsed
func trimTimeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if s, ok := data.(string); ok && to == timeType {
		return strings.TrimSpace(s), nil
	}
	return data, nil
}

// entryTitle names an entry in warnings when it could not be decoded
func entryTitle(rawEntry any, i int) string {
	if m, ok := rawEntry.(map[string]any); ok {
		if t, ok := m["title"].(string); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return fmt.Sprintf("entry #%d", i+1)
}
