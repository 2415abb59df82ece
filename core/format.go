package controller

import (
	"html"
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// FormattedContent is message text split for display. Every line is already
// escaped, so renderers only add their own structure around it.
type FormattedContent struct {
	// Paragraphs holds the escaped lines of each paragraph.
	Paragraphs [][]string
}

// FormatContent escapes text and splits it into paragraphs on blank lines.
// Single newlines inside a paragraph become line breaks. Blank paragraphs
// are dropped.
func FormatContent(text string) FormattedContent {
	escaped := html.EscapeString(strings.ReplaceAll(text, "\r\n", "\n"))

	var content FormattedContent
	for _, paragraph := range paragraphBreak.Split(escaped, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		content.Paragraphs = append(content.Paragraphs, strings.Split(paragraph, "\n"))
	}
	return content
}

// HTML renders the content as <p> blocks with <br> line breaks.
func (c FormattedContent) HTML() string {
	var b strings.Builder
	for _, lines := range c.Paragraphs {
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// Text renders the content for plain text surfaces. Lines stay escaped.
func (c FormattedContent) Text() string {
	paragraphs := make([]string, 0, len(c.Paragraphs))
	for _, lines := range c.Paragraphs {
		paragraphs = append(paragraphs, strings.Join(lines, "\n"))
	}
	return strings.Join(paragraphs, "\n\n")
}

// IsEmpty reports whether there is nothing to display.
func (c FormattedContent) IsEmpty() bool {
	return len(c.Paragraphs) == 0
}
