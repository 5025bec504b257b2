package youtube

import (
	"os"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scipunch/backlog/parser"
)

const channelURL = "https://www.youtube.com/feeds/videos.xml?channel_id=UCabc123"

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	dat, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return dat
}

func collect(warnings *[]parser.MalformedItem) parser.WarnFunc {
	return func(item parser.MalformedItem) {
		*warnings = append(*warnings, item)
	}
}

func TestParse_Channel(t *testing.T) {
	p, err := New(parser.Options{})
	require.NoError(t, err)

	var warnings []parser.MalformedItem
	articles, err := p.Parse(readFixture(t, "channel.xml"), channelURL, collect(&warnings))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "Reading execution plans", first.Name)
	assert.Equal(t, "How to read an execution plan, media: prefix stays in text.", first.Description)
	require.NotNil(t, first.Image)
	assert.Equal(t, "https://i1.ytimg.com/vi/vid00000001/hqdefault.jpg", *first.Image)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid00000001", first.Link)
	assert.Equal(t, "2023-05-01 10:00:00", first.Created)

	second := articles[1]
	assert.Equal(t, "Index maintenance", second.Name)
	assert.Equal(t, "", second.Description)
	require.NotNil(t, second.Image)
	assert.Equal(t, "https://i2.ytimg.com/vi/vid00000002/hqdefault.jpg", *second.Image)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid00000002", second.Link)
	// published offset is kept as is
	assert.Equal(t, "2023-04-20 16:30:05", second.Created)
}

func TestParse_NormalizeToUTC(t *testing.T) {
	p, err := New(parser.Options{NormalizeToUTC: true})
	require.NoError(t, err)

	articles, err := p.Parse(readFixture(t, "channel.xml"), channelURL, nil)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "2023-05-01 10:00:00", articles[0].Created)
	assert.Equal(t, "2023-04-20 23:30:05", articles[1].Created)
}

func TestParse_Deterministic(t *testing.T) {
	p, _ := New(parser.Options{})
	raw := readFixture(t, "channel.xml")

	first, err := p.Parse(raw, channelURL, nil)
	require.NoError(t, err)
	second, err := p.Parse(raw, channelURL, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func feedWith(entries ...string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <yt:channelId>UCabc123</yt:channelId>
 <title>Channel</title>
` + strings.Join(entries, "\n") + `
</feed>`)
}

func entry(title, href, published, thumb string) string {
	var b strings.Builder
	b.WriteString("<entry>")
	if title != "" {
		b.WriteString("<title>" + title + "</title>")
	}
	if href != "" {
		b.WriteString(`<link rel="alternate" href="` + href + `"/>`)
	}
	if published != "" {
		b.WriteString("<published>" + published + "</published>")
	}
	b.WriteString("<media:group><media:description>desc of " + title + "</media:description>")
	if thumb != "" {
		b.WriteString(`<media:thumbnail url="` + thumb + `" width="480" height="360"/>`)
	}
	b.WriteString("</media:group></entry>")
	return b.String()
}

func TestParse_SkipsMalformedEntries(t *testing.T) {
	raw := feedWith(
		entry("good one", "https://www.youtube.com/watch?v=1", "2023-05-01T10:00:00+00:00", "https://i.ytimg.com/1.jpg"),
		entry("bad date", "https://www.youtube.com/watch?v=2", "yesterday", ""),
		entry("no link", "", "2023-05-01T10:00:00+00:00", ""),
		entry("", "https://www.youtube.com/watch?v=4", "2023-05-01T10:00:00+00:00", ""),
		entry("no date", "https://www.youtube.com/watch?v=5", "", ""),
		entry("good two", "https://www.youtube.com/watch?v=6", "2023-05-02T11:00:00Z", ""),
	)

	p, _ := New(parser.Options{})
	var warnings []parser.MalformedItem
	articles, err := p.Parse(raw, channelURL, collect(&warnings))
	require.NoError(t, err)

	require.Len(t, articles, 2)
	assert.Equal(t, "good one", articles[0].Name)
	assert.Equal(t, "good two", articles[1].Name)
	assert.Nil(t, articles[1].Image)

	require.Len(t, warnings, 4)
	assert.Equal(t, "bad date", warnings[0].Title)
	assert.Equal(t, "no link", warnings[1].Title)
	assert.Equal(t, "entry has no link", warnings[1].Reason)
	assert.Equal(t, "entry has no title", warnings[2].Reason)
	assert.Equal(t, "no date", warnings[3].Title)
	for _, w := range warnings {
		assert.Equal(t, channelURL, w.SourceURL)
	}
}

func TestParse_SingleEntry(t *testing.T) {
	raw := feedWith(entry("only", "https://www.youtube.com/watch?v=1", "2023-05-01T10:00:00+00:00", "https://i.ytimg.com/1.jpg"))

	p, _ := New(parser.Options{})
	articles, err := p.Parse(raw, channelURL, nil)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=1", articles[0].Link)
}

func TestParse_EmptyFeed(t *testing.T) {
	p, _ := New(parser.Options{})

	articles, err := p.Parse(feedWith(), channelURL, nil)
	require.NoError(t, err)
	assert.Empty(t, articles)

	articles, err = p.Parse([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`), channelURL, nil)
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestParse_Errors(t *testing.T) {
	p, _ := New(parser.Options{})

	_, err := p.Parse([]byte("this is not xml <<<"), channelURL, nil)
	assert.Error(t, err)

	_, err = p.Parse([]byte(`<rss version="2.0"><channel><title>x</title></channel></rss>`), channelURL, nil)
	assert.ErrorIs(t, err, ErrNoFeed)
}

func TestReadFeed_ChannelID(t *testing.T) {
	feed, err := ReadFeed(readFixture(t, "channel.xml"))
	require.NoError(t, err)
	assert.Equal(t, "UCabc123", feed.ChannelID)
	assert.Equal(t, "SQL Tips Channel", feed.Title)
	assert.Len(t, feed.Entries, 2)
}

func TestToDocument_KeyRewrite(t *testing.T) {
	root, err := xmlquery.Parse(strings.NewReader(string(feedWith(
		entry("one", "https://www.youtube.com/watch?v=1", "2023-05-01T10:00:00+00:00", "https://i.ytimg.com/1.jpg"),
	))))
	require.NoError(t, err)

	doc := toDocument(root)
	feed := doc["feed"].(map[string]any)
	assert.Equal(t, "UCabc123", feed["yt:channelId"])
	e := feed["entry"].(map[string]any)
	assert.Contains(t, e, "media:group")
	assert.Equal(t, "https://www.youtube.com/watch?v=1", e["link"].(map[string]any)["@href"])

	rewritten := rewriteKeys(doc).(map[string]any)
	feed = rewritten["feed"].(map[string]any)
	assert.Equal(t, "UCabc123", feed["channelId"])
	e = feed["entry"].(map[string]any)
	assert.Equal(t, "https://www.youtube.com/watch?v=1", e["link"].(map[string]any)["href"])
	group := e["group"].(map[string]any)
	assert.Equal(t, "https://i.ytimg.com/1.jpg", group["thumbnail"].(map[string]any)["url"])
	assert.Equal(t, "480", group["thumbnail"].(map[string]any)["@width"])
}

func TestAppendValue_RepeatedSiblings(t *testing.T) {
	obj := map[string]any{}
	appendValue(obj, "link", "a")
	appendValue(obj, "link", "b")
	appendValue(obj, "link", "c")
	assert.Equal(t, []any{"a", "b", "c"}, obj["link"])
}

func TestEntryLink_PrefersAlternate(t *testing.T) {
	e := Entry{Links: []Link{
		{Rel: "related", Href: "https://example.com/related"},
		{Rel: "alternate", Href: "https://www.youtube.com/watch?v=1"},
	}}
	assert.Equal(t, "https://www.youtube.com/watch?v=1", e.link())

	e = Entry{Links: []Link{{Rel: "related", Href: "https://example.com/related"}}}
	assert.Equal(t, "https://example.com/related", e.link())
}

var _ parser.Parser = Parser{}

func TestParse_KeepsDescriptionText(t *testing.T) {
	raw := feedWith(`<entry>
  <title>
    Padded title
  </title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=1"/>
  <published>
    2023-05-01T10:00:00+00:00
  </published>
  <media:group><media:description>  first line
second line  </media:description></media:group>
</entry>`)

	p, _ := New(parser.Options{})
	var warnings []parser.MalformedItem
	articles, err := p.Parse(raw, channelURL, collect(&warnings))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, articles, 1)
	assert.Equal(t, "Padded title", articles[0].Name)
	assert.Equal(t, "  first line\nsecond line  ", articles[0].Description)
	assert.Equal(t, "2023-05-01 10:00:00", articles[0].Created)
}

func TestRewriteKeys_Collisions(t *testing.T) {
	doc := map[string]any{
		"title":       "plain",
		"media:title": "from media",
		"link":        map[string]any{"@href": "rewritten", "href": "original"},
		"group":       map[string]any{"media:description": "only one"},
	}

	for i := 0; i < 50; i++ {
		out := rewriteKeys(doc).(map[string]any)
		assert.Equal(t, "plain", out["title"])
		assert.Equal(t, "original", out["link"].(map[string]any)["href"])
		assert.Equal(t, "only one", out["group"].(map[string]any)["description"])
		assert.Len(t, out, 3)
	}
}
