package db

import (
	"fmt"
	"strings"
	"testing"
)

func TestBuildListWhere_ActiveOnly(t *testing.T) {
	where, args := buildListWhere(ListParams{ActiveOnly: true, Status: "draft"})

	mustContain := []string{
		"status = 'published'",
		"deadline_date IS NULL OR deadline_date >= date_trunc('day', NOW())",
	}
	for _, token := range mustContain {
		if !strings.Contains(where, token) {
			t.Fatalf("active clause missing token %q: %s", token, where)
		}
	}

	if len(args) != 0 {
		t.Fatalf("active-only filter must not take args, got %v", args)
	}
	if strings.Contains(where, "$1") {
		t.Fatalf("status filter must be ignored when ActiveOnly is set: %s", where)
	}
}

func TestBuildListWhere_PlaceholdersAlign(t *testing.T) {
	where, args := buildListWhere(ListParams{
		Status:      "draft",
		Type:        "festival",
		Scope:       "national",
		Query:       "documentary",
		MaxDaysLeft: 14,
	})

	want := []any{"draft", "festival", "national", "documentary", 14}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i, w := range want {
		if args[i] != w {
			t.Errorf("args[%d] = %v, want %v", i, args[i], w)
		}
		if !strings.Contains(where, fmt.Sprintf("$%d", i+1)) {
			t.Errorf("where missing placeholder $%d: %s", i+1, where)
		}
	}
	if strings.Contains(where, fmt.Sprintf("$%d", len(want)+1)) {
		t.Errorf("where has stray placeholder beyond $%d: %s", len(want), where)
	}
}

func TestBuildListWhere_AllStatusesSkipsFilter(t *testing.T) {
	where, args := buildListWhere(ListParams{Status: "all"})
	if strings.Contains(where, "status") {
		t.Fatalf("status 'all' must not filter: %s", where)
	}
	if len(args) != 0 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestListOrderClause(t *testing.T) {
	tests := []struct {
		name     string
		params   ListParams
		contains string
		argCount int
	}{
		{"deadline", ListParams{SortBy: "deadline"}, "deadline_date ASC NULLS LAST", 0},
		{"newest", ListParams{SortBy: "newest"}, "created_at DESC", 0},
		{"confidence", ListParams{SortBy: "confidence"}, "confidence DESC", 0},
		{"semantic", ListParams{QueryEmbedding: []float32{0.1, 0.2}}, "embedding <=> $3", 1},
		{"text rank", ListParams{Query: "film grant"}, "ts_rank(search_vector, plainto_tsquery('english', $3))", 1},
		{"default", ListParams{}, "deadline_date ASC NULLS LAST", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := listOrderClause(tt.params, 3)
			if !strings.Contains(clause, tt.contains) {
				t.Errorf("clause %q missing %q", clause, tt.contains)
			}
			if len(args) != tt.argCount {
				t.Errorf("got %d args, want %d", len(args), tt.argCount)
			}
		})
	}
}

func TestCleanField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips markup", "<b>Mumbai</b> Documentary Grant", "Mumbai Documentary Grant"},
		{"drops scripts", `before<script>alert("x")</script>after`, "beforeafter"},
		{"keeps ampersands", "Arts & Culture Fund", "Arts & Culture Fund"},
		{"trims", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanField(tt.in); got != tt.want {
				t.Errorf("cleanField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
