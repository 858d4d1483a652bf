package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	rpdf "rsc.io/pdf"
)

const maxPDFsPerPage = 2

// enrichDeadlineFromPDFs looks for PDFs linked off an opportunity page and
// reads them for a usable deadline. Guideline and brochure PDFs often carry
// the date the page itself omits.
func enrichDeadlineFromPDFs(ctx context.Context, f byteFetcher, pageURL string, now time.Time) *time.Time {
	raw, err := f.FetchBytes(ctx, pageURL)
	if err != nil {
		return nil
	}
	links := findPDFLinks(raw, pageURL)
	for _, link := range links {
		if ctx.Err() != nil {
			return nil
		}
		data, err := f.FetchBytes(ctx, link)
		if err != nil {
			log.Printf("[PDF] fetching %s: %v", shorten(link, 80), err)
			continue
		}
		text, err := extractPDFText(data)
		if err != nil {
			log.Printf("[PDF] reading %s: %v", shorten(link, 80), err)
			continue
		}
		if d := earliestFuture(harvestDates(text), now); d != nil {
			log.Printf("[PDF] deadline %s recovered from %s", d.Format("2006-01-02"), shorten(link, 80))
			return d
		}
	}
	return nil
}

type byteFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

func findPDFLinks(rawHTML []byte, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if len(out) >= maxPDFsPerPage {
			return
		}
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		out = appendUnique(out, base.ResolveReference(ref).String())
	})
	return out
}

// extractPDFText concatenates the text fragments of every page. rsc.io/pdf
// panics on malformed files rather than returning errors, so the recover
// turns those into a normal failure.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panicked: %v", r)
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, frag := range page.Content().Text {
			sb.WriteString(frag.S)
			sb.WriteByte(' ')
		}
	}
	return sb.String(), nil
}

func earliestFuture(dates []time.Time, now time.Time) *time.Time {
	today := now.UTC().Truncate(24 * time.Hour)
	var best *time.Time
	for _, d := range dates {
		d := d
		if d.Before(today) {
			continue
		}
		if best == nil || d.Before(*best) {
			best = &d
		}
	}
	return best
}
