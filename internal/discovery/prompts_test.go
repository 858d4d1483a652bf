package discovery

import (
	"strings"
	"testing"
)

func TestExtractionPromptContract(t *testing.T) {
	p := extractionPrompt("some page text", "https://a.example/call", testNow)

	for _, key := range []string{
		`"title"`, `"organizer"`, `"deadline"`, `"grantOrPrize"`, `"type"`,
		`"description"`, `"eligibility"`, `"website"`, `"scope"`, `"instagramCaption"`,
	} {
		if !strings.Contains(p, key) {
			t.Errorf("prompt missing key %s", key)
		}
	}
	if !strings.HasSuffix(p, "Respond ONLY with the JSON object.") {
		t.Error("prompt must end with the JSON-only instruction")
	}
	if !strings.Contains(p, "2026-09-01") {
		t.Error("prompt missing today's date")
	}
	if !strings.Contains(p, `{"skip": true}`) {
		t.Error("prompt missing the skip escape hatch")
	}
}

func TestPromptsClampLongInput(t *testing.T) {
	long := strings.Repeat("x", extractionTextBudget+5000)
	p := extractionPrompt(long, "https://a.example", testNow)
	if len(p) > extractionTextBudget+2000 {
		t.Errorf("prompt grew to %d chars, clamp is not applied", len(p))
	}
}

func TestParsePromptMentionsSourceURL(t *testing.T) {
	p := parsePrompt("pasted text", "https://forwarded.example/post", testNow)
	if !strings.Contains(p, "https://forwarded.example/post") {
		t.Error("source URL missing from parse prompt")
	}
	without := parsePrompt("pasted text", "", testNow)
	if strings.Contains(without, "does not name a website") {
		t.Error("website fallback line should only appear with a source URL")
	}
}
