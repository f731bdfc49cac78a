package chunker

import (
	"html"
	"regexp"
	"strings"
)

var (
	multiSpace = regexp.MustCompile(`[ \t\r\f]+`)
	multiBreak = regexp.MustCompile(`\n\s*\n\s*\n+`)

	// Boilerplate that appears in nearly every filing and carries no signal.
	boilerplate = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Table of Contents`),
		regexp.MustCompile(`(?i)UNITED STATES\s+SECURITIES AND EXCHANGE COMMISSION`),
	}
)

// CleanText normalizes extracted filing text: entity unescape, whitespace
// collapse, boilerplate removal. Section structure (double newlines) is kept.
func CleanText(text string) string {
	text = html.UnescapeString(text)
	for _, pat := range boilerplate {
		text = pat.ReplaceAllString(text, "")
	}
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiBreak.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
