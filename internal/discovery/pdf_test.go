package discovery

import (
	"testing"
)

func TestFindPDFLinks(t *testing.T) {
	page := []byte(`<html><body>
<a href="/docs/guidelines.pdf">Guidelines</a>
<a href="https://cdn.example.org/brochure.PDF?v=2">Brochure</a>
<a href="/apply">Apply</a>
<a href="/docs/third.pdf">Third</a>
</body></html>`)

	got := findPDFLinks(page, "https://fest.example/call/2027")
	want := []string{
		"https://fest.example/docs/guidelines.pdf",
		"https://cdn.example.org/brochure.PDF?v=2",
	}
	if len(got) != len(want) {
		t.Fatalf("findPDFLinks = %v, want %v (capped at %d)", got, want, maxPDFsPerPage)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFindPDFLinksNoBase(t *testing.T) {
	if got := findPDFLinks([]byte(`<a href="x.pdf">x</a>`), "://bad"); got != nil {
		t.Fatalf("findPDFLinks with bad base = %v", got)
	}
}

func TestExtractPDFTextMalformed(t *testing.T) {
	if _, err := extractPDFText([]byte("not a pdf at all")); err == nil {
		t.Fatal("expected error for malformed pdf")
	}
	if _, err := extractPDFText(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
