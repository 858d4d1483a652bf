package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/openkala/callboard/internal/models"
)

// Notifier is told when a draft gets published. Implementations must be
// safe for concurrent use; callers fire them from detached goroutines.
type Notifier interface {
	OpportunityPublished(ctx context.Context, o *models.Opportunity) error
}

// LogNotifier writes publications to the process log. The default when no
// webhook is configured.
type LogNotifier struct{}

func (LogNotifier) OpportunityPublished(_ context.Context, o *models.Opportunity) error {
	log.Printf("[Notify] Published: %s (%s, deadline %s)", o.Title, o.Type, o.Deadline)
	return nil
}

// WebhookNotifier POSTs a JSON payload to a configured endpoint.
type WebhookNotifier struct {
	URL   string
	httpc *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:   url,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Event     string `json:"event"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Organizer string `json:"organizer"`
	Type      string `json:"type"`
	Deadline  string `json:"deadline"`
	DaysLeft  int    `json:"days_left"`
	Website   string `json:"website"`
	Caption   string `json:"caption,omitempty"`
}

func (n *WebhookNotifier) OpportunityPublished(ctx context.Context, o *models.Opportunity) error {
	payload := webhookPayload{
		Event:     "opportunity.published",
		ID:        o.ID.String(),
		Title:     o.Title,
		Organizer: o.Organizer,
		Type:      o.Type,
		Deadline:  o.Deadline,
		DaysLeft:  o.DaysLeft,
		Website:   o.Website,
		Caption:   o.InstagramCaption,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// FromWebhookURL picks the webhook notifier when a URL is configured, the
// log notifier otherwise.
func FromWebhookURL(url string) Notifier {
	if url == "" {
		return LogNotifier{}
	}
	return NewWebhookNotifier(url)
}
