package render

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// exceptionLine matches "Identifier: message" with an optionally dotted
// identifier starting at column 0, e.g. "json.decoder.JSONDecodeError: ...".
var exceptionLine = regexp.MustCompile(`^[A-Za-z_]\w*(\.[A-Za-z_]\w*)*: .+$`)

// SearchLink returns the search URL for an exception line.
func SearchLink(searchURL, line string) string {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return searchURL + url.QueryEscape(line)
}

// ExceptionLines returns the lines of text that look like exception
// summaries, in order.
func ExceptionLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r ")
		if exceptionLine.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}

// Linkify HTML-escapes text and wraps every exception line in a link to
// searchURL.
func Linkify(text, searchURL string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r ")
		if !exceptionLine.MatchString(trimmed) {
			lines[i] = html.EscapeString(line)
			continue
		}
		lines[i] = `<a href="` + html.EscapeString(SearchLink(searchURL, trimmed)) + `">` +
			html.EscapeString(trimmed) + `</a>`
	}
	return strings.Join(lines, "\n")
}
