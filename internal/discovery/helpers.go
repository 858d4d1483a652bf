package discovery

import "strings"

// normalizeSpace flattens runs of whitespace into single spaces and trims
// the ends.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// appendUnique adds v to list unless an equal entry (ignoring case) is
// already there. Blank values are dropped.
func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}

// shorten trims a string to at most n runes for one-line log output.
func shorten(s string, n int) string {
	s = normalizeSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
