package discovery

import "strings"

// MatchPattern reports whether the base name matches pattern. Supported forms:
//
//	*          everything
//	*.go       a single extension
//	*.{js,ts}  any extension in the set
//	main.go    exact name
func MatchPattern(name, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	if rest, ok := strings.CutPrefix(pattern, "*."); ok {
		if inner, ok := strings.CutPrefix(rest, "{"); ok && strings.HasSuffix(inner, "}") {
			for _, ext := range strings.Split(strings.TrimSuffix(inner, "}"), ",") {
				ext = strings.TrimSpace(ext)
				if ext != "" && strings.HasSuffix(name, "."+ext) {
					return true
				}
			}
			return false
		}
		return strings.HasSuffix(name, "."+rest)
	}
	return name == pattern
}

// ParseList splits a comma-separated file list. Segments are trimmed and
// empty segments are dropped.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
