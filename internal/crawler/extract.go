package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	previewMaxRunes  = 200
	previewTruncated = "..."
)

// invisibleElements never contribute to a document's indexed text.
var invisibleElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// Extract parses an HTML body fetched from pageURL into a Document and the
// absolute, normalized URLs of every anchor on the page. Hrefs that cannot be
// parsed or resolved are skipped.
func Extract(pageURL string, body []byte) (Document, []string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return Document{}, nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}, nil, fmt.Errorf("parse html: %w", err)
	}

	out := Document{
		URL:      pageURL,
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Preview:  preview(doc.Find("p").First()),
		FullText: visibleText(doc.Nodes),
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		resolved, err := Resolve(base, href)
		if err != nil {
			return
		}
		links = append(links, resolved)
	})
	return out, links, nil
}

func preview(p *goquery.Selection) string {
	if p.Length() == 0 {
		return ""
	}
	text := strings.Join(strings.Fields(p.Text()), " ")
	if utf8.RuneCountInString(text) <= previewMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewMaxRunes]) + previewTruncated
}

// visibleText concatenates text nodes outside invisible elements, separated by
// single spaces so adjacent block elements never fuse words together.
func visibleText(roots []*html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if _, skip := invisibleElements[n.Data]; skip {
				return
			}
		case html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text == "" {
				return
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range roots {
		walk(n)
	}
	return b.String()
}
