package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openkala/callboard/internal/ai"
	"github.com/openkala/callboard/internal/models"
)

// ErrAlreadyKnown is returned when a parsed opportunity matches an existing
// record by title or website.
var ErrAlreadyKnown = errors.New("opportunity already recorded")

// ParseText turns a pasted announcement into a stored draft. The quality
// model is allowed to search the web for missing details; whatever sources
// ground its answer are kept as provenance. Titles that make it through also
// feed the phrase bank so later scans look for similar calls.
func (a *Agent) ParseText(ctx context.Context, rawText, sourceURL string, logf LogFunc) (*models.Opportunity, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, fmt.Errorf("nothing to parse")
	}
	logf("Parsing %d characters of pasted text", len(rawText))

	prompt := parsePrompt(rawText, sourceURL, a.now())
	res, err := a.Quality.Complete(ctx, prompt, ai.Options{WebTool: true, Temperature: ai.TempDeterministic})
	if err != nil {
		return nil, fmt.Errorf("parse call: %w", err)
	}

	var ext extractedOpportunity
	if !ai.DecodeLoose(res.Text, &ext) {
		return nil, fmt.Errorf("model returned no parseable JSON")
	}
	o, err := normalizeExtracted(&ext, sourceURL, a.now())
	if err != nil {
		return nil, err
	}
	o.SourceModel = res.Model
	o.SourceQuery = "manual"
	for _, src := range res.Sources {
		o.SourceURLs = appendUnique(o.SourceURLs, src)
	}

	dup, err := a.Store.Exists(ctx, o.Title, o.Website)
	if err != nil {
		return nil, fmt.Errorf("checking for %q: %w", o.Title, err)
	}
	if dup {
		return nil, fmt.Errorf("%q: %w", o.Title, ErrAlreadyKnown)
	}

	if err := a.Store.InsertDraft(ctx, o); err != nil {
		return nil, fmt.Errorf("storing %q: %w", o.Title, err)
	}
	logf("Stored draft: %s (deadline %s, confidence %d)", o.Title, orUnknown(o.Deadline), o.Confidence)

	if added := a.Bank.Learn(o.Title); added > 0 {
		logf("Learned %d new search phrase(s) from %q", added, shorten(o.Title, 60))
	}
	if a.OnAccept != nil {
		a.OnAccept(o)
	}
	return o, nil
}
