package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const referenceSelector = "img[src], link[href], script[src], a[href]"

// Extract parses htmlText permissively and returns, in document order, one
// reference per img[src], stylesheet link[href], script[src] and a[href].
// Every emitted URL is absolute, resolved against base. Malformed markup
// degrades to whatever the parser recovers; it never returns an error.
func Extract(htmlText string, base *url.URL) []Reference {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil
	}

	var refs []Reference
	doc.Find(referenceSelector).Each(func(_ int, s *goquery.Selection) {
		kind, attr, ok := classifyElement(s)
		if !ok {
			return
		}
		raw, _ := s.Attr(attr)
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		abs, ok := resolveReference(base, raw)
		if !ok {
			return
		}
		refs = append(refs, Reference{Kind: kind, Raw: raw, URL: abs})
	})
	return refs
}

func classifyElement(s *goquery.Selection) (Kind, string, bool) {
	switch goquery.NodeName(s) {
	case "img":
		return KindImage, "src", true
	case "link":
		if !hasRelToken(s, "stylesheet") {
			return "", "", false
		}
		return KindStylesheet, "href", true
	case "script":
		return KindScript, "src", true
	case "a":
		return KindLink, "href", true
	default:
		return "", "", false
	}
}

// hasRelToken matches rel as a space-separated token list, case-insensitively.
func hasRelToken(s *goquery.Selection, token string) bool {
	rel, ok := s.Attr("rel")
	if !ok {
		return false
	}
	for _, t := range strings.Fields(rel) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func resolveReference(base *url.URL, raw string) (string, bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}
