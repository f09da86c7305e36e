package outfit

import "strings"

// Field is a schema key. It is either one of the six base keys or the name
// of a custom field configured by the user.
type Field string

// Base fields, in display and prompt order.
const (
	Headwear        Field = "headwear"
	Topwear         Field = "topwear"
	TopUnderwear    Field = "top_underwear"
	Bottomwear      Field = "bottomwear"
	BottomUnderwear Field = "bottom_underwear"
	Footwear        Field = "footwear"
)

// Location sentinel keys. They only appear in suggestions, never in an
// outfit record.
const (
	CharLocation Field = "charLocation"
	UserLocation Field = "userLocation"
)

// Unknown is the canonical "not set" value for outfit fields.
// Locations use the empty string instead.
const Unknown = "unknown"

var baseKeys = []Field{Headwear, Topwear, TopUnderwear, Bottomwear, BottomUnderwear, Footwear}

// labels holds the display label of each base field.
var labels = map[Field]string{
	Headwear:        "Headwear",
	Topwear:         "Top (outer)",
	TopUnderwear:    "Top (under)",
	Bottomwear:      "Bottom (outer)",
	BottomUnderwear: "Bottom (under)",
	Footwear:        "Footwear",
	CharLocation:    "Character location",
	UserLocation:    "User location",
}

// BaseKeys returns the fixed ordered base keys. The returned slice is a copy.
func BaseKeys() []Field {
	out := make([]Field, len(baseKeys))
	copy(out, baseKeys)
	return out
}

// IsBase reports whether f is one of the six base keys.
func (f Field) IsBase() bool {
	for _, k := range baseKeys {
		if k == f {
			return true
		}
	}
	return false
}

// IsLocation reports whether f is one of the location sentinel keys.
func (f Field) IsLocation() bool {
	return f == CharLocation || f == UserLocation
}

// Label returns the display label for a key. Keys without a registered label
// are humanized: runs of underscores or dashes become a space and every word
// is capitalized.
func Label(f Field) string {
	if l, ok := labels[f]; ok {
		return l
	}
	return Humanize(string(f))
}

// Schema is the owner-agnostic set of outfit keys: the base keys followed by
// the custom keys in the order the user configured them.
type Schema struct {
	Custom []string
}

// Keys returns base ∪ custom in order.
func (s Schema) Keys() []Field {
	keys := make([]Field, 0, len(baseKeys)+len(s.Custom))
	keys = append(keys, baseKeys...)
	for _, c := range s.Custom {
		keys = append(keys, Field(c))
	}
	return keys
}

// Has reports whether f belongs to the schema.
func (s Schema) Has(f Field) bool {
	if f.IsBase() {
		return true
	}
	for _, c := range s.Custom {
		if Field(c) == f {
			return true
		}
	}
	return false
}

// Normalize maps a free-text label or raw key to a canonical key.
// Base labels match by case-insensitive prefix so that trailing punctuation
// or words from generated text are tolerated. Anything else is lowercased
// with whitespace runs turned into underscores and treated as a raw key.
func Normalize(label string) Field {
	if f, ok := matchLabel(label); ok {
		return f
	}
	return Field(rawKey(label))
}

// rawKey lowercases s and turns whitespace runs into underscores.
func rawKey(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

// NormalizeFor is the owner-scoped variant of Normalize used when parsing
// model output. An exact match on a custom field of the given schema comes
// first, so "Footwear Brand" stays a custom field instead of prefix-matching
// Footwear. The location label of the other owner is rejected, and a label
// that matches nothing is dropped.
func NormalizeFor(label string, kind Kind, schema Schema) (Field, bool) {
	if f, ok := matchCustom(label, schema); ok {
		return f, true
	}
	if f, ok := matchLabel(label); ok {
		if f.IsLocation() && f != LocationKey(kind) {
			return "", false
		}
		return f, true
	}
	return "", false
}

// matchCustom finds a custom field by its configured name, its humanized
// label or its normalized key, ignoring case.
func matchCustom(label string, schema Schema) (Field, bool) {
	l := strings.TrimSpace(label)
	if l == "" {
		return "", false
	}
	key := rawKey(l)
	for _, c := range schema.Custom {
		if strings.EqualFold(c, l) || strings.EqualFold(Label(Field(c)), l) || strings.ToLower(c) == key {
			return Field(c), true
		}
	}
	return "", false
}

// IsReserved reports whether name would collide with a base or location
// field: its normalized key or its humanized label equals a built-in key or
// label, ignoring case.
func IsReserved(name string) bool {
	n := strings.TrimSpace(name)
	key := rawKey(n)
	human := Humanize(n)
	for f, l := range labels {
		if strings.EqualFold(string(f), key) || strings.EqualFold(l, n) || strings.EqualFold(l, human) {
			return true
		}
	}
	return false
}

// matchLabel performs the prefix match against base and location labels.
func matchLabel(label string) (Field, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, f := range baseKeys {
		if strings.HasPrefix(l, strings.ToLower(labels[f])) {
			return f, true
		}
	}
	if strings.HasPrefix(l, "character location") {
		return CharLocation, true
	}
	if strings.HasPrefix(l, "user location") {
		return UserLocation, true
	}
	return "", false
}
