package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxPermalinkLen = 200

var nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// GeneratePermalink folds accents and reduces a title to a URL-safe slug
func GeneratePermalink(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugRegex.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxPermalinkLen {
		s = strings.TrimRight(s[:maxPermalinkLen], "-")
	}
	return s
}
