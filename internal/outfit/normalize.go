package outfit

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// separatorRegex matches runs of underscores or dashes
var separatorRegex = regexp.MustCompile(`[_-]+`)

// CollapseWhitespace trims s and collapses internal whitespace to single spaces.
func CollapseWhitespace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Humanize turns a raw key into a label: "hair_color" → "Hair Color".
func Humanize(key string) string {
	s := separatorRegex.ReplaceAllString(key, " ")

	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		isWord := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
		if isWord && startOfWord {
			r = unicode.ToUpper(r)
		}
		startOfWord = !isWord
		b.WriteRune(r)
	}
	return b.String()
}

// ParseCustomFields splits a comma-separated list of custom field names.
// See CleanCustomFields for the rules applied to each entry.
func ParseCustomFields(csv string) []string {
	return CleanCustomFields(strings.Split(csv, ","))
}

// CleanCustomFields trims every name, drops empty and reserved names (see
// IsReserved), and removes duplicates (case-sensitive) keeping the first
// occurrence. Order is preserved.
func CleanCustomFields(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		if IsReserved(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
