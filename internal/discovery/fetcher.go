package discovery

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/openkala/callboard/internal/metrics"
)

const (
	browserUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	fetchAttemptTimeout = 12 * time.Second
	fetchBodyLimit      = 4 << 20
	minReadableLength   = 400
	minRawLength        = 100
)

// proxyTemplates is the fallback chain for pages that refuse direct
// requests. "%s" means a direct fetch; the rest are public relays that take
// the target as a query parameter.
var proxyTemplates = []string{
	"%s",
	"https://api.allorigins.win/raw?url=%s",
	"https://corsproxy.io/?url=%s",
	"https://api.codetabs.com/v1/proxy?quest=%s",
}

// ProxyFetcher retrieves pages with a browser user agent, walking the proxy
// chain until one attempt yields a usefully sized body.
type ProxyFetcher struct {
	httpc     *http.Client
	userAgent string
	proxies   []string
}

func NewProxyFetcher() *ProxyFetcher {
	return &ProxyFetcher{
		httpc:     &http.Client{Timeout: fetchAttemptTimeout},
		userAgent: browserUserAgent,
		proxies:   proxyTemplates,
	}
}

// FetchText retrieves a page and reduces it to whitespace-normalized text
// with scripts and styles dropped. Bodies shorter than minReadableLength are
// treated as blocks or interstitials and the next proxy is tried.
func (f *ProxyFetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	pageURL = ensureScheme(pageURL)
	var lastErr error
	for _, tpl := range f.proxies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := f.attempt(ctx, pageURL, tpl)
		if err != nil {
			lastErr = err
			log.Printf("[Fetch] %s via %s: %v", shorten(pageURL, 80), proxyLabel(tpl), err)
			continue
		}
		text := stripHTML(raw)
		if len(text) < minReadableLength {
			lastErr = fmt.Errorf("body too short (%d chars) via %s", len(text), proxyLabel(tpl))
			continue
		}
		metrics.PageFetches.WithLabelValues("ok").Inc()
		return text, nil
	}
	metrics.PageFetches.WithLabelValues("error").Inc()
	if lastErr == nil {
		lastErr = fmt.Errorf("no fetch attempts made")
	}
	return "", fmt.Errorf("fetching %s: %w", shorten(pageURL, 80), lastErr)
}

// FetchBytes retrieves a resource without interpreting it, for PDFs and
// other binary attachments.
func (f *ProxyFetcher) FetchBytes(ctx context.Context, pageURL string) ([]byte, error) {
	pageURL = ensureScheme(pageURL)
	var lastErr error
	for _, tpl := range f.proxies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := f.attempt(ctx, pageURL, tpl)
		if err != nil {
			lastErr = err
			continue
		}
		if len(raw) < minRawLength {
			lastErr = fmt.Errorf("body too short (%d bytes) via %s", len(raw), proxyLabel(tpl))
			continue
		}
		metrics.PageFetches.WithLabelValues("ok").Inc()
		return raw, nil
	}
	metrics.PageFetches.WithLabelValues("error").Inc()
	if lastErr == nil {
		lastErr = fmt.Errorf("no fetch attempts made")
	}
	return nil, fmt.Errorf("fetching %s: %w", shorten(pageURL, 80), lastErr)
}

func (f *ProxyFetcher) attempt(ctx context.Context, pageURL, tpl string) ([]byte, error) {
	target := pageURL
	if tpl != "%s" {
		target = fmt.Sprintf(tpl, url.QueryEscape(pageURL))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, fetchAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// stripHTML drops script, style and noscript subtrees and collapses the rest
// to plain text. Non-HTML input passes through mostly intact since the
// parser treats it as one text node.
func stripHTML(raw []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return normalizeSpace(string(raw))
	}
	doc.Find("script, style, noscript, svg, iframe").Remove()
	return normalizeSpace(doc.Text())
}

func proxyLabel(tpl string) string {
	if tpl == "%s" {
		return "direct"
	}
	if u, err := url.Parse(fmt.Sprintf(tpl, "")); err == nil && u.Host != "" {
		return u.Host
	}
	return "proxy"
}
