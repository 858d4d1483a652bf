package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/openkala/callboard/internal/models"
)

// extractedOpportunity mirrors the JSON contract the extraction prompt asks
// for. skip is the model's way of declining a page.
type extractedOpportunity struct {
	Skip             bool       `json:"skip"`
	Title            string     `json:"title"`
	Organizer        string     `json:"organizer"`
	Deadline         string     `json:"deadline"`
	GrantOrPrize     string     `json:"grantOrPrize"`
	Type             string     `json:"type"`
	Description      string     `json:"description"`
	Eligibility      stringList `json:"eligibility"`
	Website          string     `json:"website"`
	Scope            string     `json:"scope"`
	InstagramCaption string     `json:"instagramCaption"`
}

// stringList tolerates the shapes models actually produce for list fields: a
// JSON array, a bare string, or a mixed array.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if s := strings.TrimSpace(one); s != "" {
			*l = stringList{s}
		} else {
			*l = nil
		}
		return nil
	}
	var mixed []any
	if err := json.Unmarshal(data, &mixed); err == nil {
		var out stringList
		for _, v := range mixed {
			switch t := v.(type) {
			case string:
				out = append(out, t)
			case float64, bool:
				out = append(out, fmt.Sprint(t))
			}
		}
		*l = out
		return nil
	}
	return fmt.Errorf("value is neither a string nor a list")
}

var errSkipped = errors.New("model skipped the page")

var placeholderTitles = []string{"unknown", "untitled", "n/a", "na", "none", "not specified", "title", "not found"}

var sanitizer = bluemonday.StrictPolicy()

// cleanText strips any markup the model echoed back and restores entities it
// escaped along the way.
func cleanText(s string) string {
	return normalizeSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

// normalizeExtracted validates a model answer and shapes it into a draft
// opportunity. Pages the model skipped, placeholder titles and already
// expired deadlines all come back as errors.
func normalizeExtracted(ext *extractedOpportunity, sourceURL string, now time.Time) (*models.Opportunity, error) {
	if ext.Skip {
		return nil, errSkipped
	}

	title := cleanText(ext.Title)
	if title == "" || isPlaceholderTitle(title) {
		return nil, fmt.Errorf("extraction returned no usable title")
	}

	o := &models.Opportunity{
		ID:               uuid.New(),
		Title:            title,
		Organizer:        cleanText(ext.Organizer),
		GrantOrPrize:     cleanText(ext.GrantOrPrize),
		Type:             models.NormalizeType(ext.Type),
		Description:      cleanText(ext.Description),
		Scope:            models.NormalizeScope(ext.Scope),
		InstagramCaption: cleanText(ext.InstagramCaption),
		Status:           models.StatusDraft,
		Tier:             models.TierAIDraft,
		DiscoveredAt:     &now,
	}

	if raw := strings.TrimSpace(ext.Deadline); raw != "" {
		if dt := parseDeadline(raw); dt != nil {
			if models.DaysUntil(*dt, now) < 0 {
				return nil, fmt.Errorf("deadline %s already passed", dt.Format("2006-01-02"))
			}
			o.DeadlineDate = dt
			o.Deadline = dt.Format("2006-01-02")
		} else {
			o.Deadline = cleanText(raw)
		}
	}
	o.RefreshDaysLeft(now)

	for _, e := range ext.Eligibility {
		if c := cleanText(e); c != "" {
			o.Eligibility = appendUnique(o.Eligibility, c)
		}
	}

	website := strings.TrimSpace(ext.Website)
	if website == "" {
		website = sourceURL
	}
	if website != "" {
		o.Website = canonicalizeURL(ensureScheme(website))
	}
	if sourceURL != "" {
		o.SourceURLs = appendUnique(o.SourceURLs, sourceURL)
	}

	o.Confidence, o.Reasoning = scoreExtraction(o, sourceURL)
	return o, nil
}

// scoreExtraction grades field completeness. The extraction contract has no
// confidence key, so the grade stands in for one on the review screen.
func scoreExtraction(o *models.Opportunity, sourceURL string) (int, string) {
	var missing []string
	filled := 0
	mark := func(name string, ok bool) {
		if ok {
			filled++
		} else {
			missing = append(missing, name)
		}
	}
	mark("organizer", o.Organizer != "")
	mark("deadline", o.DeadlineDate != nil)
	mark("grant or prize", o.GrantOrPrize != "")
	mark("description", len(o.Description) >= 40)
	mark("eligibility", len(o.Eligibility) > 0)
	mark("website", o.Website != "")

	source := hostOf(sourceURL)
	if source == "" {
		source = "pasted text"
	}
	reason := fmt.Sprintf("Extracted from %s.", source)
	if len(missing) > 0 {
		reason += fmt.Sprintf(" Missing: %s.", strings.Join(missing, ", "))
	} else {
		reason += " All detail fields present."
	}
	return 40 + 10*filled, reason
}

func isPlaceholderTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, p := range placeholderTitles {
		if t == p {
			return true
		}
	}
	return false
}
