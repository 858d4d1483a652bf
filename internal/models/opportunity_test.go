package models

import (
	"testing"
	"time"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		expected int
	}{
		{"thirty days out", now.Add(30 * 24 * time.Hour), 30},
		{"yesterday", now.Add(-24 * time.Hour), -1},
		{"hours ahead rounds up", now.Add(2 * time.Hour), 1},
		{"exactly now", now, 0},
		{"earlier today", now.Add(-12 * time.Hour), 0},
		{"one year out", now.Add(365 * 24 * time.Hour), 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntil(tt.deadline, now); got != tt.expected {
				t.Errorf("DaysUntil() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestRefreshDaysLeftIgnoresStoredValue(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	deadline := now.Add(10 * 24 * time.Hour)

	opp := Opportunity{DaysLeft: 999, DeadlineDate: &deadline}
	opp.RefreshDaysLeft(now)
	if opp.DaysLeft != 10 {
		t.Errorf("DaysLeft = %d, want 10", opp.DaysLeft)
	}

	opp.DeadlineDate = nil
	opp.DaysLeft = 42
	opp.RefreshDaysLeft(now)
	if opp.DaysLeft != 0 {
		t.Errorf("DaysLeft without deadline = %d, want 0", opp.DaysLeft)
	}
}

func TestIsActiveExcludesPastDeadlines(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	tests := []struct {
		name     string
		opp      Opportunity
		expected bool
	}{
		{"published future deadline", Opportunity{Status: StatusPublished, DeadlineDate: &future}, true},
		{"published past deadline", Opportunity{Status: StatusPublished, DeadlineDate: &past}, false},
		{"published no deadline", Opportunity{Status: StatusPublished}, true},
		{"draft future deadline", Opportunity{Status: StatusDraft, DeadlineDate: &future}, false},
		{"rejected", Opportunity{Status: StatusRejected, DeadlineDate: &future}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opp.IsActive(now); got != tt.expected {
				t.Errorf("IsActive() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Grant", TypeGrant},
		{"RESIDENCY", TypeResidency},
		{"Artist Residency", TypeResidency},
		{"Festival", TypeFestival},
		{"Film Festival", TypeFestival},
		{"Lab", TypeLab},
		{"Film Lab", TypeLab},
		{"Screenwriting Workshop", TypeLab},
		{"Incubator", TypeLab},
		{"", TypeGrant},
		{"Fellowship", TypeGrant},
	}

	for _, tt := range tests {
		if got := NormalizeType(tt.in); got != tt.expected {
			t.Errorf("NormalizeType(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestNormalizeScope(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"National", ScopeNational},
		{"nationwide", ScopeNational},
		{"International", ScopeInternational},
		{"Global", ScopeInternational},
		{"", ScopeInternational},
	}

	for _, tt := range tests {
		if got := NormalizeScope(tt.in); got != tt.expected {
			t.Errorf("NormalizeScope(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
