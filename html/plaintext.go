package html

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements whose content never ends up in a plain text body.
var hiddenSelector = cascadia.MustCompile("head, title, script, style, template, noscript")

// These elements start on a new line in the text rendering. Anything else is
// treated as inline and flows with the surrounding text.
// https://developer.mozilla.org/en-US/docs/Web/HTML/Block-level_elements
var blockTags = map[atom.Atom]struct{}{
	atom.Address:    {},
	atom.Article:    {},
	atom.Aside:      {},
	atom.Blockquote: {},
	atom.Dd:         {},
	atom.Div:        {},
	atom.Dl:         {},
	atom.Dt:         {},
	atom.Fieldset:   {},
	atom.Figcaption: {},
	atom.Figure:     {},
	atom.Footer:     {},
	atom.Form:       {},
	atom.H1:         {},
	atom.H2:         {},
	atom.H3:         {},
	atom.H4:         {},
	atom.H5:         {},
	atom.H6:         {},
	atom.Header:     {},
	atom.Hr:         {},
	atom.Li:         {},
	atom.Main:       {},
	atom.Nav:        {},
	atom.Ol:         {},
	atom.P:          {},
	atom.Pre:        {},
	atom.Section:    {},
	atom.Table:      {},
	atom.Tr:         {},
	atom.Ul:         {},
}

var (
	spaceRe      = regexp.MustCompile(`[ \t\r\n\f]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// PlainText renders an HTML document as plain text suitable for a
// text/plain body: markup is dropped, block elements start new lines, list
// items are prefixed with "- " and links are followed by their target in
// parentheses.
func PlainText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("can't parse the HTML body: %v", err)
	}

	for _, n := range hiddenSelector.MatchAll(root) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	var b strings.Builder
	render(&b, root)

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out := blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out), nil
}

// render writes the text content of n and its descendants to b.
func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		t := spaceRe.ReplaceAllString(n.Data, " ")
		if strings.TrimSpace(t) == "" && atLineStart(b) {
			return
		}
		b.WriteString(t)
		return
	case html.ElementNode:
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(b, c)
		}
		return
	default:
		return
	}

	_, block := blockTags[n.DataAtom]
	// paragraphs and headings are separated by a blank line
	para := false

	switch n.DataAtom {
	case atom.Br:
		b.WriteString("\n")
		return
	case atom.Hr:
		newline(b)
		b.WriteString("----\n")
		return
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		para = true
		blankLine(b)
	case atom.Li:
		newline(b)
		b.WriteString("- ")
	case atom.Td, atom.Th:
		b.WriteString(" ")
	default:
		if block {
			newline(b)
		}
	}

	var start int
	if n.DataAtom == atom.A {
		start = b.Len()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}

	if n.DataAtom == atom.A {
		href := attr(n, "href")
		text := strings.TrimSpace(b.String()[start:])
		if href != "" && href != text && !strings.HasPrefix(href, "#") {
			fmt.Fprintf(b, " (%v)", href)
		}
	}

	switch {
	case para:
		blankLine(b)
	case block:
		newline(b)
	}
}

// atLineStart reports whether nothing but spaces follows the last newline
// written to b.
func atLineStart(b *strings.Builder) bool {
	s := strings.TrimRight(b.String(), " ")
	return s == "" || strings.HasSuffix(s, "\n")
}

func newline(b *strings.Builder) {
	if !atLineStart(b) {
		b.WriteString("\n")
	}
}

func blankLine(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " ")
	switch {
	case s == "", strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		b.WriteString("\n")
	default:
		b.WriteString("\n\n")
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
