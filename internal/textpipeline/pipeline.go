// Package textpipeline implements the pure, I/O-free text and link
// transformations shared by the crawler and the query engine: tag
// stripping, normalization, term counting and link extraction.
package textpipeline

import (
	"regexp"
	"strings"
)

const (
	minWordLength = 3
	maxWordLength = 32
)

var tagRegexp = regexp.MustCompile(`<[^>]*>`)

// StripTags removes every substring matching a non-greedy <...> tag,
// leaving entity references unexpanded — a deliberate simplification
// carried over unchanged from the distilled source's remove_html_tags.
func StripTags(html string) string {
	return tagRegexp.ReplaceAllString(html, "")
}

// Normalize maps every rune to lowercase if alphanumeric, to a space if
// whitespace, and drops everything else. The output contains only
// [a-z0-9 ] runes. It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// CountTerms splits text on whitespace runs and counts tokens whose length
// falls in [minWordLength, maxWordLength].
func CountTerms(text string) map[string]int {
	freq := make(map[string]int)
	for _, word := range strings.Fields(text) {
		if len(word) >= minWordLength && len(word) <= maxWordLength {
			freq[word]++
		}
	}
	return freq
}
