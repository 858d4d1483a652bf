package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openkala/callboard/internal/ai"
	"github.com/openkala/callboard/internal/metrics"
	"github.com/openkala/callboard/internal/models"
)

// Scan modes. Daily chases closing deadlines with a small urgent batch; deep
// sweeps the full phrase bank and the seed pages.
const (
	ModeDaily = "daily"
	ModeDeep  = "deep"
)

// ErrScanInFlight is returned when a scan is requested while another one
// holds the agent.
var ErrScanInFlight = errors.New("a scan is already running")

// LogFunc receives human-readable progress lines while a scan runs.
type LogFunc func(format string, args ...any)

type ScanOptions struct {
	Mode        string
	TargetCount int
}

// ScanReport summarizes one scan. Fetch failures count as errors, not
// evaluations; only candidates that completed a relevance check are
// evaluated.
type ScanReport struct {
	Mode       string
	Keywords   int
	Candidates int
	Fetched    int
	Evaluated  int
	Accepted   int
	Duplicates int
	Rejected   int
	Errors     int
	Found      []*models.Opportunity
}

type scanParams struct {
	name          string
	keywordCount  int
	evalCeiling   int
	defaultTarget int
	expandSeeds   bool
}

func modeParams(mode string) scanParams {
	if mode == ModeDeep {
		return scanParams{name: ModeDeep, keywordCount: 12, evalCeiling: 45, defaultTarget: 8, expandSeeds: true}
	}
	return scanParams{name: ModeDaily, keywordCount: 6, evalCeiling: 18, defaultTarget: 3, expandSeeds: false}
}

// Store is the persistence surface the agent needs.
type Store interface {
	Exists(ctx context.Context, title, website string) (bool, error)
	InsertDraft(ctx context.Context, o *models.Opportunity) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	RecentRejectedTitles(ctx context.Context, limit int) ([]string, error)
	CreateScanRun(ctx context.Context, run *models.ScanRun) error
	FinishScanRun(ctx context.Context, run *models.ScanRun) error
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

type SeedExpander interface {
	Expand(ctx context.Context, seeds []string) []string
}

type RelevanceChecker interface {
	Check(ctx context.Context, pageText string) bool
}

// Agent runs the discovery loop: keywords to search results to fetched pages
// to relevance-checked, extracted, deduplicated drafts. One scan at a time.
type Agent struct {
	Store   Store
	Search  Searcher
	Fetcher Fetcher
	Seeds   SeedExpander
	Bank    *KeywordBank
	Filter  RelevanceChecker
	Quality ai.Client
	Memory  *NegativeMemory

	// OnAccept runs synchronously after each draft is persisted.
	OnAccept func(*models.Opportunity)

	pace time.Duration
	now  func() time.Time

	scanMu sync.Mutex
}

func NewAgent(store Store, search Searcher, fetcher Fetcher, seeds SeedExpander, bank *KeywordBank, filter RelevanceChecker, quality ai.Client, memory *NegativeMemory) *Agent {
	return &Agent{
		Store:   store,
		Search:  search,
		Fetcher: fetcher,
		Seeds:   seeds,
		Bank:    bank,
		Filter:  filter,
		Quality: quality,
		Memory:  memory,
		pace:    time.Second,
		now:     time.Now,
	}
}

// Run executes one scan. Partial results survive cancellation: everything
// accepted before ctx was cancelled stays persisted and is reported.
func (a *Agent) Run(ctx context.Context, opts ScanOptions, logf LogFunc) (*ScanReport, error) {
	if !a.scanMu.TryLock() {
		return nil, ErrScanInFlight
	}
	defer a.scanMu.Unlock()

	if logf == nil {
		logf = func(string, ...any) {}
	}

	params := modeParams(opts.Mode)
	target := opts.TargetCount
	if target <= 0 {
		target = params.defaultTarget
	}

	run := &models.ScanRun{
		ID:        uuid.New(),
		Mode:      params.name,
		Status:    models.RunStatusRunning,
		StartedAt: a.now(),
	}
	if err := a.Store.CreateScanRun(ctx, run); err != nil {
		log.Printf("[Agent] recording scan run: %v", err)
	}

	report := &ScanReport{Mode: params.name}
	defer a.finishRun(ctx, run, report)

	if titles, err := a.Store.RecentRejectedTitles(ctx, negativeMemoryCapacity); err != nil {
		log.Printf("[Agent] loading rejected titles: %v", err)
	} else {
		a.Memory.Seed(titles)
	}

	var keywords []string
	if params.name == ModeDeep {
		keywords = a.Bank.Mixed(params.keywordCount)
	} else {
		keywords = a.Bank.Urgent(params.keywordCount)
	}
	report.Keywords = len(keywords)
	logf("Scan started (%s): %d keywords, target %d drafts", params.name, len(keywords), target)

	candidates, origin := a.gather(ctx, keywords, params, logf)
	report.Candidates = len(candidates)
	logf("Evaluating %d candidate pages", len(candidates))

	for _, pageURL := range candidates {
		if ctx.Err() != nil {
			logf("Scan cancelled, keeping %d accepted drafts", report.Accepted)
			break
		}
		if report.Accepted >= target {
			logf("Target of %d reached", target)
			break
		}
		if report.Evaluated >= params.evalCeiling {
			logf("Evaluation ceiling of %d reached", params.evalCeiling)
			break
		}
		a.evaluate(ctx, pageURL, origin[pageURL], report, logf)
		a.pause(ctx)
	}

	logf("Scan finished: %d accepted, %d duplicates, %d rejected, %d errors",
		report.Accepted, report.Duplicates, report.Rejected, report.Errors)
	return report, nil
}

// gather turns keywords (and in deep mode, seed pages) into a deduplicated
// candidate list, remembering which query produced each URL.
func (a *Agent) gather(ctx context.Context, keywords []string, params scanParams, logf LogFunc) ([]string, map[string]string) {
	var candidates []string
	origin := make(map[string]string)

	for _, kw := range keywords {
		if ctx.Err() != nil {
			return candidates, origin
		}
		urls, err := a.Search.Search(ctx, kw)
		if err != nil {
			logf("Search failed for %q: %v", kw, err)
			continue
		}
		fresh := 0
		for _, u := range urls {
			before := len(candidates)
			candidates = appendUnique(candidates, u)
			if len(candidates) > before {
				origin[u] = kw
				fresh++
			}
		}
		logf("%q: %d results, %d new", kw, len(urls), fresh)
		a.pause(ctx)
	}

	if params.expandSeeds && a.Seeds != nil {
		seedLinks := a.Seeds.Expand(ctx, a.Bank.Seeds())
		fresh := 0
		for _, u := range seedLinks {
			before := len(candidates)
			candidates = appendUnique(candidates, u)
			if len(candidates) > before {
				origin[u] = "seed:" + hostOf(u)
				fresh++
			}
		}
		logf("Seed pages contributed %d new candidates", fresh)
	}
	return candidates, origin
}

func (a *Agent) evaluate(ctx context.Context, pageURL, query string, report *ScanReport, logf LogFunc) {
	// Cheap skip before spending a fetch: the URL may already be stored as
	// some record's website, including rejected ones.
	if known, err := a.Store.Exists(ctx, "", pageURL); err != nil {
		logf("Storage check failed for %s: %v", shorten(pageURL, 80), err)
	} else if known {
		report.Duplicates++
		logf("Already in storage: %s", shorten(pageURL, 80))
		return
	}

	text, err := a.Fetcher.FetchText(ctx, pageURL)
	if err != nil {
		report.Errors++
		logf("Fetch failed: %v", err)
		return
	}
	report.Fetched++

	report.Evaluated++
	metrics.CandidatesEvaluated.Inc()
	if !a.Filter.Check(ctx, text) {
		report.Rejected++
		logf("Not relevant: %s", shorten(pageURL, 80))
		return
	}

	o, err := a.extract(ctx, text, pageURL)
	if err != nil {
		if errors.Is(err, errSkipped) {
			report.Rejected++
			logf("Skipped %s: %v", shorten(pageURL, 80), err)
		} else {
			report.Errors++
			logf("Extraction failed for %s: %v", shorten(pageURL, 80), err)
		}
		return
	}
	o.SourceQuery = query

	dup, err := a.Store.Exists(ctx, o.Title, o.Website)
	if err != nil {
		report.Errors++
		logf("Duplicate check failed for %q: %v", o.Title, err)
		return
	}
	if dup {
		report.Duplicates++
		logf("Already known: %s", o.Title)
		return
	}

	if err := a.Store.InsertDraft(ctx, o); err != nil {
		report.Errors++
		logf("Saving %q failed: %v", o.Title, err)
		return
	}
	report.Accepted++
	report.Found = append(report.Found, o)
	metrics.OpportunitiesAccepted.Inc()
	logf("Accepted: %s (deadline %s, confidence %d)", o.Title, orUnknown(o.Deadline), o.Confidence)

	if a.OnAccept != nil {
		a.OnAccept(o)
	}
}

func (a *Agent) extract(ctx context.Context, pageText, pageURL string) (*models.Opportunity, error) {
	prompt := extractionPrompt(pageText, pageURL, a.now())
	res, err := a.Quality.Complete(ctx, prompt, ai.Options{JSONMode: true, Temperature: ai.TempDeterministic})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var ext extractedOpportunity
	if !ai.DecodeLoose(res.Text, &ext) {
		return nil, fmt.Errorf("extraction returned no parseable JSON")
	}
	o, err := normalizeExtracted(&ext, pageURL, a.now())
	if err != nil {
		return nil, err
	}
	o.SourceModel = res.Model

	if o.DeadlineDate == nil {
		if d := enrichDeadlineFromPDFs(ctx, a.Fetcher, pageURL, a.now()); d != nil {
			o.DeadlineDate = d
			o.Deadline = d.Format("2006-01-02")
			o.RefreshDaysLeft(a.now())
			o.Confidence, o.Reasoning = scoreExtraction(o, pageURL)
		}
	}
	return o, nil
}

// LearnFromRejection persists a rejection and warns the relevance filter off
// the title. Records the reviewer rejected stay in the table so the
// duplicate check keeps suppressing them.
func (a *Agent) LearnFromRejection(ctx context.Context, o *models.Opportunity) error {
	exists, err := a.Store.Exists(ctx, o.Title, o.Website)
	if err != nil {
		return fmt.Errorf("checking for %q: %w", o.Title, err)
	}
	if !exists {
		if err := a.Store.InsertDraft(ctx, o); err != nil {
			return fmt.Errorf("storing rejected %q: %w", o.Title, err)
		}
	}
	if err := a.Store.UpdateStatus(ctx, o.ID, models.StatusRejected); err != nil {
		return fmt.Errorf("marking %q rejected: %w", o.Title, err)
	}
	a.Memory.Add(o.Title)
	return nil
}

func (a *Agent) finishRun(ctx context.Context, run *models.ScanRun, report *ScanReport) {
	run.Keywords = report.Keywords
	run.Candidates = report.Candidates
	run.Fetched = report.Fetched
	run.Evaluated = report.Evaluated
	run.Accepted = report.Accepted
	run.Duplicates = report.Duplicates
	run.Rejected = report.Rejected
	run.Errors = report.Errors

	run.Status = models.RunStatusCompleted
	if ctx.Err() != nil {
		run.Status = models.RunStatusFailed
	}
	done := a.now()
	run.CompletedAt = &done

	metrics.ScansTotal.WithLabelValues(run.Mode, run.Status).Inc()
	if err := a.Store.FinishScanRun(context.WithoutCancel(ctx), run); err != nil {
		log.Printf("[Agent] closing scan run: %v", err)
	}
}

func (a *Agent) pause(ctx context.Context) {
	if a.pace <= 0 {
		return
	}
	t := time.NewTimer(a.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

