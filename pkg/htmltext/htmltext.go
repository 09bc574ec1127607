// Package htmltext reduces an HTML document to readable plain text:
// script, style and head content is dropped, block elements become line
// breaks, and whitespace is collapsed.
package htmltext

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockSelector lists elements that end a line of text.
const blockSelector = "p, div, br, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre, section, article, header, footer"

// Extract returns the readable text of an HTML document.
// Unparsable input degrades to naive tag stripping.
func Extract(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return collapse(stripTags(string(page)))
	}
	doc.Find("script, style, noscript, head, template").Remove()
	doc.Find(blockSelector).AppendHtml("\n")

	body := doc.Find("body")
	var text string
	if body.Length() > 0 {
		text = body.Text()
	} else {
		text = doc.Text()
	}
	return collapse(text)
}

// collapse normalizes whitespace: runs of spaces within a line become one
// space, blank lines are dropped.
func collapse(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// stripTags drops everything between '<' and '>'.
func stripTags(page string) string {
	var b strings.Builder
	inTag := false
	for _, r := range page {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
