package linkcheck

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractAnchors returns every <a> element with a non-empty href found in
// markup, in depth-first pre-order. The markup is parsed as a fragment in a
// <div> context, so stray or unclosed tags are tolerated; input that cannot
// be parsed yields no anchors.
func ExtractAnchors(markup string) []Anchor {
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}

	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return nil
	}

	var anchors []Anchor
	for _, n := range nodes {
		anchors = collectAnchors(n, anchors)
	}

	return anchors
}

func collectAnchors(n *html.Node, anchors []Anchor) []Anchor {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		if href := attr(n, "href"); href != "" {
			anchors = append(anchors, Anchor{Href: href, Text: textContent(n)})
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		anchors = collectAnchors(c, anchors)
	}

	return anchors
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}

	return ""
}

// textContent concatenates the text nodes below n without separators.
func textContent(n *html.Node) string {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return sb.String()
}
