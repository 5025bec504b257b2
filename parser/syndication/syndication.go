// Package syndication parses standard RSS, Atom and JSON feeds
package syndication

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"

	"github.com/scipunch/backlog/fetcher/types"
	"github.com/scipunch/backlog/parser"
)

type Parser struct {
	opts parser.Options
}

func New(opts parser.Options) (Parser, error) {
	return Parser{opts: opts}, nil
}

func (p Parser) Parse(raw []byte, sourceURL string, warn parser.WarnFunc) ([]types.Article, error) {
	// gofeed.Parser keeps translator state, one per call
	fp := gofeed.NewParser()
	fp.AtomTranslator = &publishedOnlyTranslator{}
	feed, err := fp.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse syndication feed with %w", err)
	}

	var image *string
	if feed.Image != nil {
		image = types.StringPtr(strings.TrimSpace(feed.Image.URL))
	}

	articles := make([]types.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			parser.Warn(warn, title, sourceURL, "item has no title")
			continue
		}

		link := firstLink(item)
		if link == "" {
			parser.Warn(warn, title, sourceURL, "item has no links")
			continue
		}

		if item.PublishedParsed == nil {
			reason := "item has no publish date"
			if item.Published != "" {
				reason = fmt.Sprintf("unparsable publish date %q", item.Published)
			}
			parser.Warn(warn, title, sourceURL, reason)
			continue
		}

		articles = append(articles, types.Article{
			Name:        title,
			Description: item.Description,
			Image:       image,
			Link:        link,
			Created:     types.FormatTimestamp(*item.PublishedParsed, p.opts.NormalizeToUTC),
		})
	}

	return articles, nil
}

func firstLink(item *gofeed.Item) string {
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return strings.TrimSpace(item.Link)
}

// publishedOnlyTranslator drops the <updated> fallback gofeed applies to Atom
// entries without <published>, so such entries count as undated.
type publishedOnlyTranslator struct {
	gofeed.DefaultAtomTranslator
}

func (t *publishedOnlyTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	result, err := t.DefaultAtomTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	af, ok := feed.(*atom.Feed)
	if !ok || len(af.Entries) != len(result.Items) {
		return result, nil
	}
	for i, entry := range af.Entries {
		if entry == nil || result.Items[i] == nil {
			continue
		}
		if strings.TrimSpace(entry.Published) == "" {
			result.Items[i].Published = ""
			result.Items[i].PublishedParsed = nil
		}
	}
	return result, nil
}
