package discovery

import (
	"context"
	"log"
	"strings"

	"github.com/openkala/callboard/internal/ai"
)

const minRelevantLength = 180

// relevanceSignals is the cheap first gate: a page with none of these words
// is not worth a model call.
var relevanceSignals = []string{
	"apply", "application", "deadline", "grant", "residency", "fellowship",
	"festival", "award", "open call", "submission", "entries", "funding",
	"stipend", "scholarship", "lab", "workshop", "eligib",
}

// RelevanceFilter decides whether fetched page text is worth the expensive
// extraction call. A heuristic pass rejects obvious noise before the fast
// model is asked; when the model itself is unreachable the candidate passes,
// since extraction can still say no.
type RelevanceFilter struct {
	fast   ai.Client
	memory *NegativeMemory
	minLen int
}

func NewRelevanceFilter(fast ai.Client, memory *NegativeMemory) *RelevanceFilter {
	return &RelevanceFilter{fast: fast, memory: memory, minLen: minRelevantLength}
}

// Check reports whether the page text looks like an open opportunity for
// applicants from India.
func (f *RelevanceFilter) Check(ctx context.Context, pageText string) bool {
	if !f.heuristic(pageText) {
		return false
	}

	prompt := relevancePrompt(pageText, f.memory.Snapshot())
	res, err := f.fast.Complete(ctx, prompt, ai.Options{Temperature: ai.TempDeterministic})
	if err != nil {
		log.Printf("[Filter] relevance check failed, passing candidate through: %v", err)
		return true
	}
	answer := strings.ToUpper(strings.TrimSpace(res.Text))
	return strings.HasPrefix(answer, "YES")
}

func (f *RelevanceFilter) heuristic(pageText string) bool {
	if len(pageText) < f.minLen {
		return false
	}
	lower := strings.ToLower(pageText)
	for _, sig := range relevanceSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
