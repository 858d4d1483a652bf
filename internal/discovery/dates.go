package discovery

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

var deadlineLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"2 January, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02/01/2006", // day-first, the common form on Indian sites
	"2006/01/02",
	"02-01-2006",
}

// parseDeadline parses an extracted deadline string into a UTC calendar
// date. Returns nil when nothing matches; callers treat that as "deadline
// unknown", not as an error.
func parseDeadline(s string) *time.Time {
	s = normalizeSpace(s)
	if s == "" {
		return nil
	}
	// drop ordinal suffixes like "31st March 2026"
	s = ordinalSuffix.ReplaceAllString(s, "$1")

	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

var ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)`)

// dateSnippets match date shapes inside free text, used when harvesting
// deadline candidates from guideline PDFs.
var dateSnippets = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?,?\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2},?\s+20\d{2}\b`),
}

// harvestDates pulls parseable calendar dates out of free text,
// de-duplicated, in order of appearance.
func harvestDates(text string) []time.Time {
	type hit struct {
		pos  int
		date time.Time
	}
	var hits []hit
	seen := make(map[string]bool)

	for _, expr := range dateSnippets {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			token := strings.TrimSuffix(strings.TrimSpace(text[loc[0]:loc[1]]), ".")
			parsed := parseDeadline(token)
			if parsed == nil {
				continue
			}
			key := parsed.Format("2006-01-02")
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, hit{pos: loc[0], date: *parsed})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]time.Time, len(hits))
	for i, h := range hits {
		out[i] = h.date
	}
	return out
}
