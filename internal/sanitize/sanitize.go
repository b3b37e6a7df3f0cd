// Package sanitize reduces untrusted message bodies to markup that is safe
// to inject into a browser render target. The contract is allow-list
// filtering: anything outside the list is stripped, not escaped and shown.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SnippetLength caps the plain-text preview derived from a body.
const SnippetLength = 200

var (
	bodyPolicy = newBodyPolicy()
	textPolicy = bluemonday.StrictPolicy()
	spaceRun   = regexp.MustCompile(`\s+`)
)

func newBodyPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"a", "b", "i", "u", "em", "strong", "small", "s", "sub", "sup",
		"p", "br", "hr", "div", "span", "blockquote", "pre", "code",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tfoot", "tr", "td", "th",
		"caption", "center", "font", "img",
	)
	p.AllowAttrs("href", "target").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("colspan", "rowspan", "align", "valign").OnElements("td", "th")
	p.AllowAttrs("border", "cellpadding", "cellspacing", "width").OnElements("table")
	p.AllowAttrs("style").Globally()
	// cid resolves inline MIME-embedded images; data covers providers that
	// inline small images directly.
	p.AllowURLSchemes("http", "https", "data", "cid")
	return p
}

// HTML filters untrusted markup through the allow-list policy.
func HTML(input string) string {
	return bodyPolicy.Sanitize(input)
}

// Text escapes a plain-text body and converts newlines to line breaks so
// both body kinds come out as safe HTML of the same shape.
func Text(input string) string {
	escaped := html.EscapeString(input)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return bodyPolicy.Sanitize(escaped)
}

// Snippet derives a whitespace-collapsed plain-text preview from sanitized
// or raw HTML, truncated to at most SnippetLength runes.
func Snippet(body string) string {
	text := html.UnescapeString(textPolicy.Sanitize(body))
	text = strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) <= SnippetLength {
		return text
	}
	return strings.TrimSpace(string(runes[:SnippetLength]))
}
