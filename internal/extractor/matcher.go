package extractor

import (
	"strings"

	"golang.org/x/net/html"
)

// matcher is a compiled form of the simple selector subset used by the
// selectors file: `tag`, `[attr="value"]`, and `tag[attr="value"]`.
// Full CSS is deliberately out of scope; the extraction hooks are all
// attribute lookups against rendered markup.
type matcher struct {
	tag  string
	attr string
	val  string
}

// compileSelector parses a selector string into a matcher.
// Unparseable selectors yield a matcher that matches nothing.
func compileSelector(sel string) matcher {
	sel = strings.TrimSpace(sel)
	var m matcher

	open := strings.IndexByte(sel, '[')
	if open < 0 {
		m.tag = strings.ToLower(sel)
		return m
	}

	m.tag = strings.ToLower(strings.TrimSpace(sel[:open]))
	inner := strings.TrimSuffix(sel[open+1:], "]")

	eq := strings.IndexByte(inner, '=')
	if eq < 0 {
		m.attr = strings.ToLower(strings.TrimSpace(inner))
		return m
	}

	m.attr = strings.ToLower(strings.TrimSpace(inner[:eq]))
	m.val = strings.Trim(strings.TrimSpace(inner[eq+1:]), `"'`)
	return m
}

// matches reports whether the node satisfies the matcher.
func (m matcher) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if m.tag != "" && n.Data != m.tag {
		return false
	}
	if m.attr == "" {
		return m.tag != ""
	}
	for _, a := range n.Attr {
		if a.Key == m.attr {
			return m.val == "" || a.Val == m.val
		}
	}
	return false
}

// findAll returns every descendant of root matching the selector, in
// document order. Matching subtrees are not descended into further.
func findAll(root *html.Node, sel string) []*html.Node {
	m := compileSelector(sel)
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if m.matches(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// findFirst returns the first descendant matching the selector, or nil.
func findFirst(root *html.Node, sel string) *html.Node {
	m := compileSelector(sel)
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if m.matches(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// attrVal returns the value of the named attribute, or "".
func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent collects the visible text of a subtree. Emoji are rendered as
// <img alt="..."> in post bodies, so image alt text is included.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "img" {
				sb.WriteString(attrVal(n, "alt"))
			}
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// closestAnchor walks up from n looking for an enclosing <a>, stopping at
// the given root.
func closestAnchor(n, root *html.Node) *html.Node {
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == "a" {
			return cur
		}
	}
	return nil
}
