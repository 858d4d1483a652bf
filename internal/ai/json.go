package ai

import (
	"encoding/json"
	"strings"
)

// ExtractJSON recovers a JSON value from model output that may be wrapped
// in prose or markdown fences. Attempts, in order: the whole trimmed
// string, the contents of the first fenced code block, and the substring
// from the first brace/bracket to its balanced close. Returns ok=false if
// nothing parses; it never panics.
func ExtractJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	if fenced, ok := firstFencedBlock(trimmed); ok {
		if json.Valid([]byte(fenced)) {
			return fenced, true
		}
		// the fence may itself wrap prose around the value
		if inner, ok := firstBalancedValue(fenced); ok && json.Valid([]byte(inner)) {
			return inner, true
		}
	}

	if inner, ok := firstBalancedValue(trimmed); ok && json.Valid([]byte(inner)) {
		return inner, true
	}

	return "", false
}

// DecodeLoose extracts and unmarshals a JSON value into v, reporting
// success instead of returning an error. Callers treat false as
// "extraction failed": log and skip, never crash the scan.
func DecodeLoose(text string, v any) bool {
	raw, ok := ExtractJSON(text)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

// firstFencedBlock returns the contents of the first ``` fence, with any
// language tag on the opening line dropped.
func firstFencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		// a bare language tag like "json" is not content
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// firstBalancedValue finds the first outermost balanced {...} or [...],
// tracking string literals and escapes. Bracket kinds share one depth
// counter; mismatched nesting is caught by json.Valid afterwards.
func firstBalancedValue(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
