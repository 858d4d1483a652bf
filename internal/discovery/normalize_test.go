package discovery

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openkala/callboard/internal/models"
)

var testNow = time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)

func TestStringListShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array", `["artists", "filmmakers"]`, []string{"artists", "filmmakers"}},
		{"bare string", `"Open to Indian citizens"`, []string{"Open to Indian citizens"}},
		{"empty string", `""`, nil},
		{"mixed array", `["18+", 21, true]`, []string{"18+", "21", "true"}},
		{"null", `null`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got stringList
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("item[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeExtracted(t *testing.T) {
	ext := &extractedOpportunity{
		Title:            "  Kerala  Documentary <b>Lab</b> 2027 ",
		Organizer:        "Backwater Films Trust",
		Deadline:         "2027-01-15",
		GrantOrPrize:     "INR 5,00,000 production support",
		Type:             "documentary lab",
		Description:      "A week-long development lab for nonfiction projects from South Asia, with mentorship and a pitch session.",
		Eligibility:      stringList{"Indian citizens", "first or second feature", "Indian citizens"},
		Website:          "Backwaterlab.example/apply?utm_source=x",
		Scope:            "National",
		InstagramCaption: "Pitch your documentary at Kerala Lab 2027!",
	}

	o, err := normalizeExtracted(ext, "https://news.example/article-about-lab", testNow)
	if err != nil {
		t.Fatalf("normalizeExtracted: %v", err)
	}
	if o.Title != "Kerala Documentary Lab 2027" {
		t.Errorf("title = %q", o.Title)
	}
	if o.Type != models.TypeLab {
		t.Errorf("type = %q, want %q", o.Type, models.TypeLab)
	}
	if o.Scope != models.ScopeNational {
		t.Errorf("scope = %q", o.Scope)
	}
	if o.DeadlineDate == nil || o.Deadline != "2027-01-15" {
		t.Fatalf("deadline = %q (%v)", o.Deadline, o.DeadlineDate)
	}
	if o.DaysLeft != 136 {
		t.Errorf("daysLeft = %d, want 136", o.DaysLeft)
	}
	if len(o.Eligibility) != 2 {
		t.Errorf("eligibility = %v, want deduped pair", o.Eligibility)
	}
	if !strings.HasPrefix(o.Website, "https://backwaterlab.example/apply") || strings.Contains(o.Website, "utm_") {
		t.Errorf("website = %q", o.Website)
	}
	if len(o.SourceURLs) != 1 || o.SourceURLs[0] != "https://news.example/article-about-lab" {
		t.Errorf("sourceURLs = %v", o.SourceURLs)
	}
	if o.Status != models.StatusDraft || o.Tier != models.TierAIDraft {
		t.Errorf("status/tier = %q/%q", o.Status, o.Tier)
	}
	if o.Confidence != 100 {
		t.Errorf("confidence = %d, want 100 with all fields present", o.Confidence)
	}
	if !strings.Contains(o.Reasoning, "news.example") {
		t.Errorf("reasoning = %q", o.Reasoning)
	}
}

func TestNormalizeExtractedRejects(t *testing.T) {
	tests := []struct {
		name string
		ext  extractedOpportunity
	}{
		{"skip", extractedOpportunity{Skip: true}},
		{"empty title", extractedOpportunity{Title: "   "}},
		{"placeholder title", extractedOpportunity{Title: "Not specified"}},
		{"expired deadline", extractedOpportunity{Title: "Old Call", Deadline: "2026-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := normalizeExtracted(&tt.ext, "https://a.example", testNow); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeExtractedSkipIsSentinel(t *testing.T) {
	_, err := normalizeExtracted(&extractedOpportunity{Skip: true}, "", testNow)
	if !errors.Is(err, errSkipped) {
		t.Fatalf("err = %v, want errSkipped", err)
	}
}

func TestNormalizeExtractedUnparseableDeadlineKept(t *testing.T) {
	ext := &extractedOpportunity{Title: "Rolling Grant", Deadline: "rolling basis"}
	o, err := normalizeExtracted(ext, "https://a.example", testNow)
	if err != nil {
		t.Fatalf("normalizeExtracted: %v", err)
	}
	if o.DeadlineDate != nil {
		t.Error("unparseable deadline should leave DeadlineDate nil")
	}
	if o.Deadline != "rolling basis" {
		t.Errorf("deadline text = %q", o.Deadline)
	}
	if o.DaysLeft != 0 {
		t.Errorf("daysLeft = %d, want 0 without a date", o.DaysLeft)
	}
}

func TestNormalizeExtractedConfidenceReflectsGaps(t *testing.T) {
	ext := &extractedOpportunity{Title: "Bare Call"}
	o, err := normalizeExtracted(ext, "", testNow)
	if err != nil {
		t.Fatalf("normalizeExtracted: %v", err)
	}
	if o.Confidence != 40 {
		t.Errorf("confidence = %d, want 40 with every detail missing", o.Confidence)
	}
	if !strings.Contains(o.Reasoning, "Missing:") || !strings.Contains(o.Reasoning, "pasted text") {
		t.Errorf("reasoning = %q", o.Reasoning)
	}
}
