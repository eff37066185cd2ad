package crawler

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeStyle lowercases a raw style tag, collapses each run of
// non-alphanumeric characters into a single space and trims the result.
// NormalizeStyle(NormalizeStyle(s)) == NormalizeStyle(s) for every s.
func NormalizeStyle(raw string) string {
	lowered := strings.ToLower(raw)
	return strings.TrimSpace(nonAlphanumeric.ReplaceAllString(lowered, " "))
}

// NormalizeStyles normalizes every tag, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeStyles(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		name := NormalizeStyle(tag)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
