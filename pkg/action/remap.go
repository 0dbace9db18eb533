package action

import (
	"slices"
	"strings"
)

// Remap maps a free-text action name onto one of the allowed kinds. It tries
// an exact match, then a substring match in either direction, then the
// catalog's keyword table. Matching is case-insensitive.
func (c *Catalog) Remap(raw string, allowed []Kind) (Kind, bool) {
	name := normalizeKind(raw)
	if name == "" || len(allowed) == 0 {
		return "", false
	}
	if slices.Contains(allowed, name) {
		return name, true
	}

	for _, k := range allowed {
		if strings.Contains(string(k), string(name)) || strings.Contains(string(name), string(k)) {
			return k, true
		}
	}

	for _, kw := range c.Keywords {
		if strings.Contains(string(name), strings.ToUpper(kw.Keyword)) && slices.Contains(allowed, kw.Kind) {
			return kw.Kind, true
		}
	}
	return "", false
}

// Normalize canonicalizes a free-text action name to catalog form.
func Normalize(raw string) Kind {
	return normalizeKind(raw)
}
