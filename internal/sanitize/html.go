package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated content with basic formatting
	// (<p>, <b>, <i>, <em>, <strong>, <a>, <ul>, <ol>, <li>, <br>).
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags. The result is HTML-escaped.
func Text(input string) string {
	return StrictPolicy.Sanitize(input)
}

// HTML sanitizes HTML content, allowing safe formatting tags.
// Removes <script>, <iframe>, event handlers and style attributes.
func HTML(input string) string {
	return UGCPolicy.Sanitize(input)
}

// Title strips markup from a job title and returns plain text, so
// "Q&A Engineer" survives unescaped.
func Title(input string) string {
	return strings.TrimSpace(html.UnescapeString(Text(input)))
}

// Description sanitizes a job description, keeping basic formatting.
func Description(input string) string {
	return strings.TrimSpace(HTML(input))
}
