package context

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultPageLength caps the cleaned markup stored for a page.
const DefaultPageLength = 20000

// CleanedPage is page markup reduced to its semantic structure.
type CleanedPage struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

var droppedTags = set("script", "style", "noscript", "iframe", "embed", "object", "svg", "template", "head")

var blockTags = set("div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
	"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr", "td", "th",
	"form", "fieldset", "blockquote", "pre", "dialog")

var voidTags = set("area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta",
	"param", "source", "track", "wbr")

var globalAttrs = set("id", "role", "aria-label", "aria-describedby", "aria-expanded", "name", "title")

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// CleanHTML parses raw and keeps the elements and attributes an agent needs
// to read and target the page: text, structure, links, form controls and
// accessibility labels. Output stops at maxLength bytes of content.
func CleanHTML(raw string, maxLength int) (*CleanedPage, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &cleaner{max: maxLength}
	page := &CleanedPage{
		Title:       findTitle(doc),
		Description: findMeta(doc, "description"),
	}
	c.walk(doc, 0)
	page.HTML = strings.TrimSpace(c.b.String())
	page.Truncated = c.truncated
	return page, nil
}

type cleaner struct {
	b         strings.Builder
	max       int
	n         int
	truncated bool
}

func (c *cleaner) full() bool {
	if c.n >= c.max {
		c.truncated = true
	}
	return c.truncated
}

func (c *cleaner) walk(n *html.Node, depth int) {
	if c.full() {
		return
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		c.text(n.Data)
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedTags[tag] {
			return
		}
		c.element(n, tag, depth)
		return
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch, depth)
	}
}

func (c *cleaner) text(data string) {
	text := strings.Join(strings.Fields(data), " ")
	if text == "" {
		return
	}
	if room := c.max - c.n; len(text) > room {
		for room > 0 && !utf8.RuneStart(text[room]) {
			room--
		}
		text = text[:room] + "..."
		c.truncated = true
	}
	c.b.WriteString(text)
	c.n += len(text)
}

func (c *cleaner) element(n *html.Node, tag string, depth int) {
	block := blockTags[tag]
	if block {
		c.newline(depth)
	}
	c.b.WriteString("<" + tag)
	for _, a := range n.Attr {
		if keepAttr(tag, strings.ToLower(a.Key)) {
			fmt.Fprintf(&c.b, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
	}
	c.b.WriteString(">")
	c.n += len(tag) + 2

	if voidTags[tag] {
		return
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch, depth+1)
	}
	if block {
		c.newline(depth)
	}
	c.b.WriteString("</" + tag + ">")
	c.n += len(tag) + 3
}

func (c *cleaner) newline(depth int) {
	if c.b.Len() == 0 {
		return
	}
	c.b.WriteString("\n")
	c.b.WriteString(strings.Repeat("  ", depth))
}

func keepAttr(tag, attr string) bool {
	if globalAttrs[attr] || strings.HasPrefix(attr, "data-test") {
		return true
	}
	switch tag {
	case "a":
		return attr == "href"
	case "img":
		return attr == "alt"
	case "input", "textarea", "select", "option":
		return attr == "type" || attr == "placeholder" || attr == "value" || attr == "checked" || attr == "selected"
	case "button":
		return attr == "type" || attr == "disabled"
	case "form":
		return attr == "action" || attr == "method"
	case "label":
		return attr == "for"
	}
	return false
}

func findTitle(doc *html.Node) string {
	var title string
	visit(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return true
		}
		return false
	})
	return title
}

func findMeta(doc *html.Node, name string) string {
	var content string
	visit(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return false
		}
		var match bool
		var val string
		for _, a := range n.Attr {
			switch a.Key {
			case "name", "property":
				match = match || strings.EqualFold(a.Val, name)
			case "content":
				val = a.Val
			}
		}
		if match && val != "" {
			content = strings.TrimSpace(val)
			return true
		}
		return false
	})
	return content
}

// visit walks the tree depth-first until fn returns true.
func visit(n *html.Node, fn func(*html.Node) bool) bool {
	if fn(n) {
		return true
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if visit(ch, fn) {
			return true
		}
	}
	return false
}
