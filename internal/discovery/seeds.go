package discovery

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	seedMaxPerPage = 20
	seedMaxTotal   = 40
	seedCrawlDelay = 500 * time.Millisecond
)

// linkSignals mark anchors worth following from an aggregator page. Anything
// else on those pages is navigation.
var linkSignals = []string{
	"grant", "residen", "fellowship", "festival", "award", "apply",
	"fund", "open-call", "opencall", "open_call", "call-for", "submission",
	"lab", "pitch",
}

// SeedCrawler expands curated aggregator pages into candidate URLs by
// harvesting the links they point at. It stays one level deep; the fetcher
// and filter decide what the links are worth.
type SeedCrawler struct {
	userAgent  string
	timeout    time.Duration
	maxPerPage int
	maxTotal   int
}

func NewSeedCrawler() *SeedCrawler {
	return &SeedCrawler{
		userAgent:  browserUserAgent,
		timeout:    15 * time.Second,
		maxPerPage: seedMaxPerPage,
		maxTotal:   seedMaxTotal,
	}
}

// Expand visits each seed page and returns the harvested candidate URLs.
// Seed failures are logged and skipped; expansion is best effort.
func (c *SeedCrawler) Expand(ctx context.Context, seeds []string) []string {
	var out []string
	for _, seed := range seeds {
		if ctx.Err() != nil {
			return out
		}
		if len(out) >= c.maxTotal {
			break
		}
		for _, link := range c.crawlSeed(ctx, seed) {
			out = appendUnique(out, link)
			if len(out) >= c.maxTotal {
				break
			}
		}
	}
	return out
}

func (c *SeedCrawler) crawlSeed(ctx context.Context, seed string) []string {
	var found []string
	seedCanon := canonicalizeURL(ensureScheme(seed))

	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.MaxDepth(1),
		colly.MaxBodySize(2<<20),
	)
	collector.SetRequestTimeout(c.timeout)
	_ = collector.Limit(&colly.LimitRule{DomainGlob: "*", Delay: seedCrawlDelay})

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		log.Printf("[Seeds] %s: %v", shorten(seed, 80), err)
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(found) >= c.maxPerPage {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		canon := canonicalizeURL(link)
		if canon == seedCanon || !isCandidateURL(canon) {
			return
		}
		if !looksLikeOpportunityLink(canon, e.Text) {
			return
		}
		found = appendUnique(found, canon)
	})

	if err := collector.Visit(ensureScheme(seed)); err != nil {
		log.Printf("[Seeds] visiting %s: %v", shorten(seed, 80), err)
		return nil
	}
	return found
}

func looksLikeOpportunityLink(href, anchorText string) bool {
	hay := strings.ToLower(href + " " + anchorText)
	for _, sig := range linkSignals {
		if strings.Contains(hay, sig) {
			return true
		}
	}
	return false
}
