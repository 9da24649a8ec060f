package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips markup from extension-supplied display text and truncates
// it to maxLen runes. The result is plain text, not escaped HTML.
func PlainText(s string, maxLen int) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.TrimSpace(s)
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		runes := []rune(s)
		s = string(runes[:maxLen])
	}
	return s
}
