package discovery

import (
	"net/url"
	"strings"
)

// ensureScheme prefixes https:// when a URL arrives without a scheme.
func ensureScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	default:
		return "https://" + raw
	}
}

// canonicalizeURL lowercases the host, removes the fragment and drops
// common tracking parameters so the same page dedupes to one candidate.
func canonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// blockedHosts are search-engine, ad, and social-infrastructure domains
// that never lead to an application page.
var blockedHosts = []string{
	"duckduckgo.com", "duck.co",
	"google.", "bing.com", "yahoo.", "baidu.com", "yandex.",
	"facebook.com", "instagram.com", "twitter.com", "x.com",
	"linkedin.com", "youtube.com", "youtu.be", "pinterest.", "reddit.com",
	"t.co", "wa.me", "whatsapp.com", "telegram.", "tiktok.com",
	"doubleclick.net", "googleadservices.com", "googlesyndication.com",
	"amazon.", "apple.com", "play.google",
}

var blockedFragments = []string{
	"ad_provider=", "/aclk", "/y.js", "ad_domain=", "click.php",
}

// isCandidateURL reports whether a discovered link may lead to an
// opportunity page worth fetching.
func isCandidateURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return false
	}
	for _, b := range blockedHosts {
		if strings.Contains(host, b) {
			return false
		}
	}
	lower := strings.ToLower(raw)
	for _, frag := range blockedFragments {
		if strings.Contains(lower, frag) {
			return false
		}
	}
	return true
}

// hostOf returns the lowercase host for log lines, or the raw string when
// unparseable.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Host)
}
