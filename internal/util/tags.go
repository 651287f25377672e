package util

import "strings"

// NormalizeTag canonicalizes a user-entered genre or author name so overlap
// comparisons ignore case and surrounding whitespace.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeTags applies NormalizeTag to each entry, dropping empties and
// duplicates while preserving order.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		n := NormalizeTag(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
