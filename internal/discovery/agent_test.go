package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openkala/callboard/internal/ai"
	"github.com/openkala/callboard/internal/models"
)

type mockStore struct {
	existing  map[string]bool
	drafts    []*models.Opportunity
	statuses  map[uuid.UUID]string
	rejected  []string
	runs      []*models.ScanRun
	insertErr error
}

func newMockStore() *mockStore {
	return &mockStore{existing: map[string]bool{}, statuses: map[uuid.UUID]string{}}
}

func (m *mockStore) Exists(_ context.Context, title, website string) (bool, error) {
	if title != "" && m.existing[strings.ToLower(title)] {
		return true, nil
	}
	return website != "" && m.existing[strings.ToLower(website)], nil
}

func (m *mockStore) InsertDraft(_ context.Context, o *models.Opportunity) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.drafts = append(m.drafts, o)
	m.existing[strings.ToLower(o.Title)] = true
	return nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.statuses[id] = status
	return nil
}

func (m *mockStore) RecentRejectedTitles(context.Context, int) ([]string, error) {
	return m.rejected, nil
}

func (m *mockStore) CreateScanRun(_ context.Context, run *models.ScanRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) FinishScanRun(context.Context, *models.ScanRun) error { return nil }

type mockSearcher struct {
	urls    []string
	queries []string
}

func (m *mockSearcher) Search(_ context.Context, q string) ([]string, error) {
	m.queries = append(m.queries, q)
	return m.urls, nil
}

type mockFetcher struct{ pages map[string]string }

func (m *mockFetcher) FetchText(_ context.Context, u string) (string, error) {
	if text, ok := m.pages[u]; ok {
		return text, nil
	}
	return "", fmt.Errorf("no page for %s", u)
}

func (m *mockFetcher) FetchBytes(_ context.Context, u string) ([]byte, error) {
	return nil, fmt.Errorf("no bytes for %s", u)
}

type passFilter struct{}

func (passFilter) Check(context.Context, string) bool { return true }

type mockSeeds struct {
	called bool
	links  []string
}

func (m *mockSeeds) Expand(context.Context, []string) []string {
	m.called = true
	return m.links
}

const residencyJSON = `{"title":"Himalayan Writers Residency 2027","organizer":"Pahad Arts Collective","deadline":"2026-12-01","grantOrPrize":"One month stay with travel stipend","type":"residency","description":"A residency for writers working in Indian languages, hosted in Uttarakhand with mentorship and public readings.","eligibility":["Writers based in India"],"website":"https://pahadarts.example/residency","scope":"international","instagramCaption":"Write in the mountains!"}`

const festivalJSON = `{"title":"Deccan Short Film Festival","organizer":"Deccan Cine Society","deadline":"2026-11-20","grantOrPrize":"Best film award of INR 1,00,000","type":"festival","description":"Competitive festival for short fiction and documentary from India, screened across three cities.","eligibility":["Films under 30 minutes"],"website":"https://deccanshorts.example/enter","scope":"national","instagramCaption":"Send us your short!"}`

func newTestAgent(store *mockStore, search Searcher, fetch Fetcher, seeds SeedExpander, quality ai.Client) *Agent {
	a := NewAgent(store, search, fetch, seeds, testBank(), passFilter{}, quality, NewNegativeMemory())
	a.pace = 0
	a.now = func() time.Time { return testNow }
	return a
}

func TestAgentRunAcceptsAndRecords(t *testing.T) {
	store := newMockStore()
	pageURL := "https://pahadarts.example/residency-call"
	search := &mockSearcher{urls: []string{pageURL}}
	fetch := &mockFetcher{pages: map[string]string{pageURL: relevantText()}}
	seeds := &mockSeeds{}
	stub := &stubClient{replies: []string{residencyJSON}}

	a := newTestAgent(store, search, fetch, seeds, stub)
	var accepted []*models.Opportunity
	a.OnAccept = func(o *models.Opportunity) { accepted = append(accepted, o) }

	report, err := a.Run(context.Background(), ScanOptions{Mode: ModeDaily, TargetCount: 1}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Candidates != 1 || report.Fetched != 1 || report.Evaluated != 1 || report.Accepted != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(store.drafts) != 1 {
		t.Fatalf("stored %d drafts, want 1", len(store.drafts))
	}
	draft := store.drafts[0]
	if draft.Title != "Himalayan Writers Residency 2027" {
		t.Errorf("title = %q", draft.Title)
	}
	if draft.Status != models.StatusDraft || draft.Tier != models.TierAIDraft {
		t.Errorf("status/tier = %q/%q", draft.Status, draft.Tier)
	}
	if draft.SourceModel != "stub-model" {
		t.Errorf("sourceModel = %q", draft.SourceModel)
	}
	if len(draft.SourceURLs) != 1 || draft.SourceURLs[0] != pageURL {
		t.Errorf("sourceURLs = %v", draft.SourceURLs)
	}
	queryKnown := false
	for _, q := range search.queries {
		if q == draft.SourceQuery {
			queryKnown = true
		}
	}
	if !queryKnown {
		t.Errorf("sourceQuery %q is not one of the issued queries %v", draft.SourceQuery, search.queries)
	}
	if len(accepted) != 1 || accepted[0] != draft {
		t.Error("OnAccept did not fire for the stored draft")
	}
	if seeds.called {
		t.Error("daily mode should not crawl seed pages")
	}
	if len(store.runs) != 1 {
		t.Fatalf("recorded %d runs", len(store.runs))
	}
	run := store.runs[0]
	if run.Status != models.RunStatusCompleted || run.Accepted != 1 || run.CompletedAt == nil {
		t.Errorf("run = %+v", run)
	}
}

func TestAgentRunSkipsDuplicates(t *testing.T) {
	store := newMockStore()
	store.existing["himalayan writers residency 2027"] = true

	pageURL := "https://pahadarts.example/residency-call"
	search := &mockSearcher{urls: []string{pageURL}}
	fetch := &mockFetcher{pages: map[string]string{pageURL: relevantText()}}
	stub := &stubClient{replies: []string{residencyJSON}}

	a := newTestAgent(store, search, fetch, &mockSeeds{}, stub)
	report, err := a.Run(context.Background(), ScanOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Duplicates != 1 || report.Accepted != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(store.drafts) != 0 {
		t.Errorf("duplicate was stored: %v", store.drafts)
	}
}

func TestAgentRerunAddsNothing(t *testing.T) {
	store := newMockStore()
	pageURL := "https://pahadarts.example/residency-call"
	search := &mockSearcher{urls: []string{pageURL}}
	fetch := &mockFetcher{pages: map[string]string{pageURL: relevantText()}}
	stub := &stubClient{replies: []string{residencyJSON}}

	a := newTestAgent(store, search, fetch, &mockSeeds{}, stub)
	if _, err := a.Run(context.Background(), ScanOptions{}, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := a.Run(context.Background(), ScanOptions{}, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(store.drafts) != 1 {
		t.Fatalf("rerun grew the store to %d drafts", len(store.drafts))
	}
	if second.Duplicates != 1 || second.Accepted != 0 {
		t.Errorf("second report = %+v", second)
	}
}

func TestAgentSkipsStoredURLsBeforeFetching(t *testing.T) {
	store := newMockStore()
	pageURL := "https://pahadarts.example/residency-call"
	store.existing[pageURL] = true

	search := &mockSearcher{urls: []string{pageURL}}
	fetch := &mockFetcher{} // any fetch would fail and count as an error
	stub := &stubClient{}

	a := newTestAgent(store, search, fetch, &mockSeeds{}, stub)
	report, err := a.Run(context.Background(), ScanOptions{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Duplicates != 1 || report.Fetched != 0 || report.Evaluated != 0 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if stub.calls != 0 {
		t.Errorf("stored URL reached the model %d times", stub.calls)
	}
}

func TestAgentDeepModeExpandsSeeds(t *testing.T) {
	store := newMockStore()
	searchURL := "https://pahadarts.example/residency-call"
	seedURL := "https://deccanshorts.example/enter"
	search := &mockSearcher{urls: []string{searchURL}}
	fetch := &mockFetcher{pages: map[string]string{
		searchURL: relevantText(),
		seedURL:   relevantText(),
	}}
	seeds := &mockSeeds{links: []string{seedURL}}
	stub := &stubClient{replies: []string{residencyJSON, festivalJSON}}

	a := newTestAgent(store, search, fetch, seeds, stub)
	report, err := a.Run(context.Background(), ScanOptions{Mode: ModeDeep}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seeds.called {
		t.Fatal("deep mode never expanded seeds")
	}
	if report.Candidates != 2 || report.Accepted != 2 {
		t.Fatalf("report = %+v", report)
	}
	if store.drafts[1].SourceQuery != "seed:deccanshorts.example" {
		t.Errorf("seed provenance = %q", store.drafts[1].SourceQuery)
	}
}

func TestAgentRejectsSecondScan(t *testing.T) {
	a := newTestAgent(newMockStore(), &mockSearcher{}, &mockFetcher{}, &mockSeeds{}, &stubClient{})
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	_, err := a.Run(context.Background(), ScanOptions{}, nil)
	if !errors.Is(err, ErrScanInFlight) {
		t.Fatalf("err = %v, want ErrScanInFlight", err)
	}
}

func TestAgentCancellationKeepsPartialResults(t *testing.T) {
	store := newMockStore()
	first := "https://pahadarts.example/residency-call"
	second := "https://deccanshorts.example/enter"
	search := &mockSearcher{urls: []string{first, second}}
	fetch := &mockFetcher{pages: map[string]string{
		first:  relevantText(),
		second: relevantText(),
	}}
	stub := &stubClient{replies: []string{residencyJSON, festivalJSON}}

	a := newTestAgent(store, search, fetch, &mockSeeds{}, stub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.OnAccept = func(*models.Opportunity) { cancel() }

	report, err := a.Run(ctx, ScanOptions{TargetCount: 5}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Accepted != 1 || len(store.drafts) != 1 {
		t.Fatalf("partial results lost: report %+v, drafts %d", report, len(store.drafts))
	}
	if store.runs[0].Status != models.RunStatusFailed {
		t.Errorf("cancelled run recorded as %q", store.runs[0].Status)
	}
}

func TestAgentFetchFailureIsNotAnEvaluation(t *testing.T) {
	store := newMockStore()
	dead := "https://gone.example/page"
	live := "https://pahadarts.example/residency-call"
	search := &mockSearcher{urls: []string{dead, live}}
	fetch := &mockFetcher{pages: map[string]string{live: relevantText()}}
	stub := &stubClient{replies: []string{residencyJSON}}

	a := newTestAgent(store, search, fetch, &mockSeeds{}, stub)
	report, err := a.Run(context.Background(), ScanOptions{TargetCount: 1}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Errors != 1 || report.Fetched != 1 || report.Evaluated != 1 || report.Accepted != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestAgentSeedsMemoryFromStore(t *testing.T) {
	store := newMockStore()
	store.rejected = []string{"Old Rejected Call"}

	a := newTestAgent(store, &mockSearcher{}, &mockFetcher{}, &mockSeeds{}, &stubClient{})
	if _, err := a.Run(context.Background(), ScanOptions{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, title := range a.Memory.Snapshot() {
		if title == "Old Rejected Call" {
			found = true
		}
	}
	if !found {
		t.Error("persisted rejection missing from negative memory")
	}
}

func TestLearnFromRejection(t *testing.T) {
	store := newMockStore()
	a := newTestAgent(store, &mockSearcher{}, &mockFetcher{}, &mockSeeds{}, &stubClient{})

	o := &models.Opportunity{ID: uuid.New(), Title: "Bogus Call", Website: "https://bogus.example"}
	if err := a.LearnFromRejection(context.Background(), o); err != nil {
		t.Fatalf("LearnFromRejection: %v", err)
	}
	if len(store.drafts) != 1 {
		t.Fatalf("rejected record not persisted")
	}
	if store.statuses[o.ID] != models.StatusRejected {
		t.Errorf("status = %q", store.statuses[o.ID])
	}
	if a.Memory.Len() != 1 {
		t.Error("title missing from negative memory")
	}

	// Rejecting an already-stored record must not insert a second row.
	if err := a.LearnFromRejection(context.Background(), o); err != nil {
		t.Fatalf("second LearnFromRejection: %v", err)
	}
	if len(store.drafts) != 1 {
		t.Errorf("second rejection stored %d drafts", len(store.drafts))
	}
}

func TestParseTextStoresDraft(t *testing.T) {
	store := newMockStore()
	stub := &stubClient{replies: []string{residencyJSON}, sources: []string{"https://pahadarts.example/residency"}}
	a := newTestAgent(store, &mockSearcher{}, &mockFetcher{}, &mockSeeds{}, stub)

	var published *models.Opportunity
	a.OnAccept = func(o *models.Opportunity) { published = o }

	o, err := a.ParseText(context.Background(), "Pasted announcement about the Himalayan residency", "https://wa.example/forwarded", nil)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	if !stub.opts[0].WebTool {
		t.Error("parse call should enable the web search tool")
	}
	if o.SourceQuery != "manual" {
		t.Errorf("sourceQuery = %q", o.SourceQuery)
	}
	for _, want := range []string{"https://wa.example/forwarded", "https://pahadarts.example/residency"} {
		found := false
		for _, s := range o.SourceURLs {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Errorf("sourceURLs = %v, missing %s", o.SourceURLs, want)
		}
	}
	if published != o {
		t.Error("OnAccept did not fire")
	}
	learned := strings.Join(a.Bank.Mixed(30), " | ")
	if !strings.Contains(learned, "himalayan writers residency 2027") {
		t.Error("parsed title was not learned into the phrase bank")
	}
}

func TestParseTextDuplicate(t *testing.T) {
	store := newMockStore()
	store.existing["himalayan writers residency 2027"] = true
	stub := &stubClient{replies: []string{residencyJSON}}
	a := newTestAgent(store, &mockSearcher{}, &mockFetcher{}, &mockSeeds{}, stub)

	_, err := a.ParseText(context.Background(), "same announcement again", "", nil)
	if !errors.Is(err, ErrAlreadyKnown) {
		t.Fatalf("err = %v, want ErrAlreadyKnown", err)
	}
}

func TestParseTextRejectsEmptyAndSkipped(t *testing.T) {
	a := newTestAgent(newMockStore(), &mockSearcher{}, &mockFetcher{}, &mockSeeds{}, &stubClient{replies: []string{`{"skip": true}`}})

	if _, err := a.ParseText(context.Background(), "   ", "", nil); err == nil {
		t.Fatal("empty input should error")
	}
	_, err := a.ParseText(context.Background(), "a page about nothing", "", nil)
	if !errors.Is(err, errSkipped) {
		t.Fatalf("err = %v, want errSkipped", err)
	}
}
