package youtube

import (
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Prefixes for the namespaces a channel feed uses. Keyed by namespace URI so
// the document's own prefix choice does not matter.
var knownNamespaces = map[string]string{
	"http://www.w3.org/2005/Atom":             "",
	"http://www.youtube.com/xml/schemas/2015": "yt",
	"http://search.yahoo.com/mrss/":           "media",
}

// keyRewriter maps attribute and namespaced keys to plain field names
var keyRewriter = strings.NewReplacer(
	"@href", "href",
	"yt:channelId", "channelId",
	"media:", "",
	"@url", "url",
)

const textKey = "#text"

// toDocument converts an XML tree into a key-value document. Attributes
// become "@name" keys, namespaced elements "prefix:local", repeated siblings
// arrays, and text next to attributes or children "#text".
func toDocument(root *xmlquery.Node) map[string]any {
	doc := make(map[string]any)
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			appendValue(doc, elementName(n), elementValue(n))
		}
	}
	return doc
}

func elementValue(n *xmlquery.Node) any {
	obj := make(map[string]any)
	for _, a := range n.Attr {
		if isNamespaceDecl(a) {
			continue
		}
		obj["@"+qualify(a.Name.Space, a.Name.Space, a.Name.Local)] = a.Value
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			appendValue(obj, elementName(c), elementValue(c))
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(c.Data)
		}
	}

	// whitespace between child elements is layout, other text is kept verbatim
	s := text.String()
	if strings.TrimSpace(s) == "" {
		s = ""
	}
	if len(obj) == 0 {
		return s
	}
	if s != "" {
		obj[textKey] = s
	}
	return obj
}

func appendValue(obj map[string]any, key string, v any) {
	existing, ok := obj[key]
	if !ok {
		obj[key] = v
		return
	}
	if list, ok := existing.([]any); ok {
		obj[key] = append(list, v)
		return
	}
	obj[key] = []any{existing, v}
}

func elementName(n *xmlquery.Node) string {
	return qualify(n.NamespaceURI, n.Prefix, n.Data)
}

func qualify(namespaceURI, prefix, local string) string {
	if p, ok := knownNamespaces[namespaceURI]; ok {
		prefix = p
	} else if p, ok := knownNamespaces[prefix]; ok {
		prefix = p
	}
	// an unresolved namespace URI is not a usable prefix
	if strings.Contains(prefix, "/") {
		prefix = ""
	}
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func isNamespaceDecl(a xmlquery.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

// rewriteKeys applies keyRewriter to every key in the document, recursively.
// Values are left untouched. When a rewritten key collides with a sibling, the
// key already carrying that name wins, then the first in sorted order.
func rewriteKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(t))
		for _, k := range keys {
			name := keyRewriter.Replace(k)
			if _, taken := out[name]; taken && name != k {
				continue
			}
			out[name] = rewriteKeys(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = rewriteKeys(val)
		}
		return out
	default:
		return v
	}
}
