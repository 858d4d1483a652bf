package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLooksLikeOpportunityLink(t *testing.T) {
	tests := []struct {
		name string
		href string
		text string
		want bool
	}{
		{"signal in path", "https://a.example/open-call/2027", "Details", true},
		{"signal in anchor text", "https://a.example/news/42", "Apply for the film fund", true},
		{"residency fragment", "https://a.example/residencies", "", true},
		{"plain nav", "https://a.example/about", "About us", false},
		{"contact", "https://a.example/contact", "Contact", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeOpportunityLink(tt.href, tt.text); got != tt.want {
				t.Errorf("looksLikeOpportunityLink(%q, %q) = %v, want %v", tt.href, tt.text, got, tt.want)
			}
		})
	}
}

func TestSeedCrawlerExpand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/open-call/film-fund">Film Fund</a>
<a href="https://other.example/grants-2027">Grants elsewhere</a>
<a href="/about">About us</a>
<a href="/open-call/film-fund">Film Fund again</a>
</body></html>`)
	}))
	defer srv.Close()

	c := NewSeedCrawler()
	got := c.Expand(context.Background(), []string{srv.URL})

	want := []string{
		srv.URL + "/open-call/film-fund",
		"https://other.example/grants-2027",
	}
	if len(got) != len(want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSeedCrawlerUnreachableSeed(t *testing.T) {
	c := NewSeedCrawler()
	c.timeout = 1
	got := c.Expand(context.Background(), []string{"http://127.0.0.1:1/nothing"})
	if len(got) != 0 {
		t.Fatalf("Expand from dead seed = %v, want none", got)
	}
}
