package discovery

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/openkala/callboard/internal/metrics"
)

const (
	liteSearchURL     = "https://lite.duckduckgo.com/lite/"
	searchResultCap   = 6
	minSearchInterval = time.Second
	maxSearchInterval = 30 * time.Second
	searchBodyLimit   = 2 << 20
)

var (
	// lite.duckduckgo.com marks organic results with the result-link class.
	// Attribute order varies between templates, so both forms are tried.
	resultLinkRe    = regexp.MustCompile(`(?is)<a[^>]+href=['"]([^'"]+)['"][^>]*class=['"]result-link['"]`)
	resultLinkAltRe = regexp.MustCompile(`(?is)<a[^>]+class=['"]result-link['"][^>]*href=['"]([^'"]+)['"]`)
	anchorRe        = regexp.MustCompile(`(?is)<a[^>]+href=['"]([^'"]+)['"]`)
)

// LiteSearcher queries the DuckDuckGo lite endpoint, which serves plain HTML
// without JavaScript. All searches through one instance share a pacing gate;
// a 429 doubles the gap between requests up to a ceiling.
type LiteSearcher struct {
	httpc     *http.Client
	userAgent string
	endpoint  string

	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	sleep    func(time.Duration)
}

func NewLiteSearcher() *LiteSearcher {
	return &LiteSearcher{
		httpc:     &http.Client{Timeout: 20 * time.Second},
		userAgent: browserUserAgent,
		endpoint:  liteSearchURL,
		interval:  minSearchInterval,
		sleep:     time.Sleep,
	}
}

// Search runs one query and returns canonical candidate URLs, capped so a
// single noisy query cannot flood the scan. A rate-limited request is
// retried once after the gap has been widened.
func (s *LiteSearcher) Search(ctx context.Context, query string) ([]string, error) {
	body, status, err := s.fetch(ctx, query)
	if err != nil {
		metrics.SearchQueries.WithLabelValues("error").Inc()
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		s.widenGap()
		body, status, err = s.fetch(ctx, query)
		if err != nil {
			metrics.SearchQueries.WithLabelValues("error").Inc()
			return nil, err
		}
	}
	if status == http.StatusTooManyRequests {
		metrics.SearchQueries.WithLabelValues("rate_limited").Inc()
		return nil, fmt.Errorf("search rate limited for %q", query)
	}
	if status != http.StatusOK {
		metrics.SearchQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search returned status %d for %q", status, query)
	}

	links := parseSearchResults(body)
	if len(links) == 0 {
		metrics.SearchQueries.WithLabelValues("empty").Inc()
		return nil, nil
	}
	metrics.SearchQueries.WithLabelValues("ok").Inc()
	return links, nil
}

func (s *LiteSearcher) fetch(ctx context.Context, query string) (string, int, error) {
	s.throttle()

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("searching %q: %w", query, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, searchBodyLimit))
	if err != nil {
		return "", 0, fmt.Errorf("reading search response: %w", err)
	}
	return string(raw), resp.StatusCode, nil
}

// throttle holds the gate so concurrent callers queue up behind the shared
// pacing interval.
func (s *LiteSearcher) throttle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wait := s.interval - time.Since(s.last); wait > 0 {
		s.sleep(wait)
	}
	s.last = time.Now()
}

func (s *LiteSearcher) widenGap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval *= 2
	if s.interval > maxSearchInterval {
		s.interval = maxSearchInterval
	}
}

func parseSearchResults(body string) []string {
	var hrefs []string
	for _, re := range []*regexp.Regexp{resultLinkRe, resultLinkAltRe} {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			hrefs = append(hrefs, m[1])
		}
	}
	if len(hrefs) == 0 {
		// Template changed; fall back to every anchor and filter hard.
		for _, m := range anchorRe.FindAllStringSubmatch(body, -1) {
			hrefs = append(hrefs, m[1])
		}
	}

	var out []string
	for _, href := range hrefs {
		href = html.UnescapeString(strings.TrimSpace(href))
		if decoded := decodeRedirect(href); decoded != "" {
			href = decoded
		}
		if href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.Contains(href, "duckduckgo.com") {
			continue
		}
		canon := canonicalizeURL(ensureScheme(href))
		if !isCandidateURL(canon) {
			continue
		}
		out = appendUnique(out, canon)
		if len(out) >= searchResultCap {
			break
		}
	}
	return out
}

// decodeRedirect unwraps the duckduckgo.com/l/?uddg= redirect links the lite
// template wraps results in.
func decodeRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return ""
	}
	u, err := url.Parse(ensureScheme(href))
	if err != nil {
		return ""
	}
	return u.Query().Get("uddg")
}
