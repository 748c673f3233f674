package instagram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrMalformedDocument is returned when no element tree can be built from
// the record document at all. Anything less than that is recovered from.
var ErrMalformedDocument = errors.New("record document is malformed")

// loadDocument parses and sanitizes the record HTML. Record documents are
// hostile input: script, style, and embedding elements are removed before
// any traversal, and event-handler attributes are stripped, so nothing
// from the export can ever execute or trigger a fetch.
func loadDocument(rawHTML string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	doc.Find("script, style, noscript, iframe, frame, object, embed, applet, link, base").Remove()
	doc.Find("meta[http-equiv]").Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			sanitizeAttrs(n)
		}
	})

	if doc.Find("body *").Length() == 0 && strings.TrimSpace(doc.Find("body").Text()) == "" {
		return nil, fmt.Errorf("%w: no content", ErrMalformedDocument)
	}
	return doc, nil
}

// sanitizeAttrs drops event handlers and script-scheme URLs in place.
func sanitizeAttrs(n *html.Node) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if key == "href" || key == "src" || key == "action" || key == "formaction" {
			val := strings.ToLower(strings.TrimSpace(a.Val))
			if strings.HasPrefix(val, "javascript:") || strings.HasPrefix(val, "vbscript:") {
				continue
			}
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}
