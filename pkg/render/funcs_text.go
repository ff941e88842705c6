package render

import (
	"strings"

	"github.com/goliatone/go-slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// slugify normalizes arbitrary text into a URL- and anchor-safe slug.
func slugify(s string) string {
	if out, err := slug.Normalize(s); err == nil && out != "" {
		return out
	}
	// Fallback for input the normalizer rejects outright.
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(s)), "-"))
}

// anchor produces the fragment identifier used for a tag section heading, so
// the alphabetized index at the top of the tag page can link to it.
func anchor(s string) string {
	return slugify(s)
}

// titlecase title-cases text using English casing rules.
func titlecase(s string) string {
	return cases.Title(language.English).String(s)
}

// truncateWords shortens text to at most n words, appending an ellipsis when
// anything was cut.
func truncateWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "…"
}
