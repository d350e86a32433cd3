package domain

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// StripHTML removes all markup and normalizes whitespace.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	// Block-level tags become spaces so adjacent paragraphs don't fuse.
	r := strings.NewReplacer("<br", " <br", "<p", " <p", "</p>", "</p> ", "<div", " <div", "<li", " <li")
	s = strictPolicy.Sanitize(r.Replace(s))
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
