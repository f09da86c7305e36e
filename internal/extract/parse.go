package extract

import (
	"regexp"
	"strings"

	"github.com/hpungsan/wardrobe/internal/outfit"
)

var (
	selfCheckRegex = regexp.MustCompile(`(?i)self-check`)
	sockRegex      = regexp.MustCompile(`(?i)sock`)
	nullishRegex   = regexp.MustCompile(`(?i)^(?:none|n/a|null|unknown)$`)
)

// LineStats counts parsed response lines. Blank lines are not counted.
type LineStats struct {
	Accepted int
	Dropped  int
}

// StripSelfCheck returns text up to the first case-insensitive "self-check".
func StripSelfCheck(text string) string {
	if loc := selfCheckRegex.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}
	return text
}

// SanitizeValue trims v and strips one trailing period. Empty results and
// the words none, n/a, null and unknown (any case) become outfit.Unknown.
func SanitizeValue(v string) string {
	t := strings.TrimSpace(v)
	t = strings.TrimSpace(strings.TrimSuffix(t, "."))
	if t == "" || nullishRegex.MatchString(t) {
		return outfit.Unknown
	}
	return t
}

// Parse converts a generated response into a suggestion for an owner of the
// given kind. Each "<label>: <value>" line is sanitized, then its label is
// normalized against the schema; lines that fail either step are dropped.
// Later lines win. A location of Unknown is reported as "".
func Parse(text string, kind outfit.Kind, schema outfit.Schema) (outfit.Suggestion, LineStats) {
	var stats LineStats
	out := outfit.Suggestion{}

	for _, line := range strings.Split(StripSelfCheck(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		label, value, ok := strings.Cut(line, ":")
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		if !ok || label == "" || value == "" {
			stats.Dropped++
			continue
		}

		value = SanitizeValue(value)
		key, ok := outfit.NormalizeFor(label, kind, schema)
		if !ok {
			stats.Dropped++
			continue
		}

		if key == outfit.Footwear && sockRegex.MatchString(value) {
			value = outfit.Unknown
		}
		if key.IsLocation() && value == outfit.Unknown {
			value = ""
		}

		out[key] = value
		stats.Accepted++
	}

	return out, stats
}
