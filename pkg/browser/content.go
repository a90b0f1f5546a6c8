package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageContent is the structured form of a page used by extract actions.
type PageContent struct {
	Title       string
	Description string
	Headings    []string
	Links       []Link
	Text        string
}

// Link is a hyperlink with its visible text.
type Link struct {
	Text string
	Href string
}

// ParseContent parses raw page HTML into its structured form, skipping
// script/style/noscript noise.
func ParseContent(rawHTML string) (*PageContent, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	content := &PageContent{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
	}

	var text strings.Builder
	collectContent(doc, content, &text)
	content.Text = strings.TrimSpace(text.String())

	return content, nil
}

func collectContent(n *html.Node, content *PageContent, text *strings.Builder) {
	if n.Type == html.CommentNode {
		return
	}
	if n.Type == html.ElementNode {
		tag := strings.ToLower(n.Data)
		if isNoiseElement(tag) {
			return
		}
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if heading := nodeText(n); heading != "" {
				content.Headings = append(content.Headings, heading)
			}
		case "a":
			if href := attrValue(n, "href"); href != "" {
				content.Links = append(content.Links, Link{Text: nodeText(n), Href: href})
			}
		}
	}
	if n.Type == html.TextNode {
		if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(trimmed)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectContent(c, content, text)
	}
}

// nodeText returns the trimmed concatenation of all text beneath a node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val
		}
	}
	return ""
}

func isNoiseElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg":
		return true
	}
	return false
}

func findTitle(doc *html.Node) string {
	var title string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if title != "" {
				return
			}
		}
	}
	traverse(doc)
	return title
}

func findMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, attr := range n.Attr {
				if attr.Key == "name" && attr.Val == "description" {
					isDescription = true
				}
				if attr.Key == "content" {
					content = attr.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
			if description != "" {
				return
			}
		}
	}
	traverse(doc)
	return description
}
