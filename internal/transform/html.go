package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// HTMLToText renders a status body as plain text. Anchor markup is dropped
// but the visible link text is kept, <br> becomes a line break, paragraphs
// are separated by a blank line, and Mastodon's "invisible" spans (the
// elided middle of shortened URLs) are skipped.
func HTMLToText(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	for _, node := range doc.Selection.Nodes {
		renderText(&b, node)
	}

	text := blankLines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(text), nil
}

func renderText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
			return
		case "script", "style":
			return
		case "span":
			if hasClass(n, "invisible") {
				return
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "blockquote", "ul", "ol", "pre":
			b.WriteString("\n\n")
		case "li":
			b.WriteString("\n")
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
