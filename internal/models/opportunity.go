package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workflow statuses. Drafts wait for operator review; rejected records are
// kept so their titles never re-surface as new drafts.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusRejected  = "rejected"
	StatusRemoved   = "removed"
)

// Verification tiers.
const (
	TierAIDraft           = "ai_draft"
	TierOrganizerVerified = "organizer_verified"
	TierPlatformVerified  = "platform_verified"
)

// Opportunity categories.
const (
	TypeGrant     = "grant"
	TypeResidency = "residency"
	TypeFestival  = "festival"
	TypeLab       = "lab"
)

// Geographic scopes.
const (
	ScopeNational      = "national"
	ScopeInternational = "international"
)

type Opportunity struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Organizer        string     `json:"organizer"`
	Deadline         string     `json:"deadline"` // human-readable, as extracted
	DeadlineDate     *time.Time `json:"deadline_date"`
	DaysLeft         int        `json:"days_left"` // derived from DeadlineDate at read time
	GrantOrPrize     string     `json:"grant_or_prize"`
	Type             string     `json:"type"`
	Scope            string     `json:"scope"`
	Description      string     `json:"description"`
	Eligibility      []string   `json:"eligibility"`
	ApplicationFee   string     `json:"application_fee"`
	Website          string     `json:"website"`
	Status           string     `json:"status"`
	Tier             string     `json:"tier"`
	SourceModel      string     `json:"source_model"`
	SourceQuery      string     `json:"source_query"`
	SourceURLs       []string   `json:"source_urls"`
	DiscoveredAt     *time.Time `json:"discovered_at"`
	Confidence       int        `json:"confidence"` // 0-100
	Reasoning        string     `json:"reasoning"`
	InstagramCaption string     `json:"instagram_caption"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DaysUntil returns the whole days remaining until deadline, rounded up.
// Deadlines are stored at midnight UTC, so a deadline dated today is 0,
// tomorrow is 1, yesterday is -1.
func DaysUntil(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

// RefreshDaysLeft recomputes DaysLeft from DeadlineDate. Records without a
// parseable deadline keep 0; callers decide whether that counts as active.
func (o *Opportunity) RefreshDaysLeft(now time.Time) {
	if o.DeadlineDate == nil {
		o.DaysLeft = 0
		return
	}
	o.DaysLeft = DaysUntil(*o.DeadlineDate, now)
}

// IsActive reports whether the record should appear in active result sets:
// published records whose deadline has not passed (or is unknown).
func (o *Opportunity) IsActive(now time.Time) bool {
	if o.Status != StatusPublished {
		return false
	}
	if o.DeadlineDate == nil {
		return true
	}
	return DaysUntil(*o.DeadlineDate, now) >= 0
}

// EmbeddingInput is the text a record's semantic vector represents. It
// mirrors the columns behind the keyword search index.
func (o *Opportunity) EmbeddingInput() string {
	return strings.TrimSpace(o.Title + " " + o.Organizer + " " + o.Description)
}

var validTypes = map[string]bool{
	TypeGrant:     true,
	TypeResidency: true,
	TypeFestival:  true,
	TypeLab:       true,
}

var validStatuses = map[string]bool{
	StatusDraft:     true,
	StatusPublished: true,
	StatusRejected:  true,
	StatusRemoved:   true,
}

// NormalizeType lowercases and coerces a category tag into the fixed set,
// defaulting to grant for anything unrecognized.
func NormalizeType(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if validTypes[t] {
		return t
	}
	switch {
	case strings.Contains(t, "resid"):
		return TypeResidency
	case strings.Contains(t, "lab") || strings.Contains(t, "workshop") || strings.Contains(t, "incubat"):
		return TypeLab
	case strings.Contains(t, "festival") || strings.Contains(t, "film"):
		return TypeFestival
	default:
		return TypeGrant
	}
}

// NormalizeScope coerces a scope string to national/international,
// defaulting to international when unclear.
func NormalizeScope(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == ScopeNational || strings.HasPrefix(t, "nation") || strings.Contains(t, "domestic") {
		return ScopeNational
	}
	return ScopeInternational
}

func IsValidStatus(s string) bool { return validStatuses[s] }
