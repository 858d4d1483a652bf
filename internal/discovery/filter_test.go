package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openkala/callboard/internal/ai"
)

// stubClient is a scripted ai.Client. Replies are consumed in order; the
// last one repeats once the script runs out.
type stubClient struct {
	replies []string
	sources []string
	err     error
	calls   int
	prompts []string
	opts    []ai.Options
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Complete(_ context.Context, prompt string, opts ai.Options) (*ai.Result, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	reply := "YES"
	if len(s.replies) > 0 {
		if s.calls <= len(s.replies) {
			reply = s.replies[s.calls-1]
		} else {
			reply = s.replies[len(s.replies)-1]
		}
	}
	return &ai.Result{Text: reply, Sources: s.sources, Model: "stub-model"}, nil
}

func relevantText() string {
	return strings.Repeat("The festival is accepting submissions. Apply before the deadline. ", 10)
}

func TestFilterHeuristicShortCircuit(t *testing.T) {
	stub := &stubClient{}
	f := NewRelevanceFilter(stub, NewNegativeMemory())

	if f.Check(context.Background(), "apply now") {
		t.Error("short text passed the filter")
	}
	noise := strings.Repeat("lorem ipsum dolor sit amet ", 30)
	if f.Check(context.Background(), noise) {
		t.Error("signal-free text passed the filter")
	}
	if stub.calls != 0 {
		t.Errorf("heuristic rejections reached the model %d times", stub.calls)
	}
}

func TestFilterAsksModel(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{"plain yes", "YES", true},
		{"chatty yes", "Yes, this looks like an open call.", true},
		{"plain no", "NO", false},
		{"chatty no", "No. This is a news article.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClient{replies: []string{tt.reply}}
			f := NewRelevanceFilter(stub, NewNegativeMemory())
			if got := f.Check(context.Background(), relevantText()); got != tt.want {
				t.Errorf("Check = %v, want %v", got, tt.want)
			}
			if stub.calls != 1 {
				t.Errorf("model called %d times, want 1", stub.calls)
			}
			if stub.opts[0].Temperature != ai.TempDeterministic {
				t.Errorf("temperature = %v", stub.opts[0].Temperature)
			}
		})
	}
}

func TestFilterFailsOpen(t *testing.T) {
	stub := &stubClient{err: errors.New("provider down")}
	f := NewRelevanceFilter(stub, NewNegativeMemory())
	if !f.Check(context.Background(), relevantText()) {
		t.Error("filter should pass candidates through when the model is unreachable")
	}
}

func TestFilterWarnsAboutRejectedTitles(t *testing.T) {
	mem := NewNegativeMemory()
	mem.Add("Global Film Fund 2026")

	stub := &stubClient{replies: []string{"NO"}}
	f := NewRelevanceFilter(stub, mem)

	if f.Check(context.Background(), relevantText()) {
		t.Error("candidate matching a rejected title passed the filter")
	}
	if len(stub.prompts) != 1 || !strings.Contains(stub.prompts[0], "Global Film Fund 2026") {
		t.Error("rejected title missing from the relevance prompt")
	}
}
