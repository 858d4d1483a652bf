package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/openkala/callboard/internal/models"
)

func TestWebhookNotifierPosts(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	o := &models.Opportunity{
		ID:       uuid.New(),
		Title:    "Chennai Photo Biennale Grant",
		Type:     models.TypeGrant,
		Deadline: "2026-11-30",
		Website:  "https://example.org/grant",
	}
	if err := n.OpportunityPublished(context.Background(), o); err != nil {
		t.Fatalf("OpportunityPublished: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["event"] != "opportunity.published" {
		t.Errorf("event = %v", payload["event"])
	}
	if payload["title"] != o.Title {
		t.Errorf("title = %v, want %q", payload["title"], o.Title)
	}
	if payload["id"] != o.ID.String() {
		t.Errorf("id = %v, want %s", payload["id"], o.ID)
	}
}

func TestWebhookNotifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.OpportunityPublished(context.Background(), &models.Opportunity{Title: "x"})
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestFromWebhookURL(t *testing.T) {
	if _, ok := FromWebhookURL("").(LogNotifier); !ok {
		t.Error("empty URL must select the log notifier")
	}
	if _, ok := FromWebhookURL("https://hooks.example/x").(*WebhookNotifier); !ok {
		t.Error("a URL must select the webhook notifier")
	}
}
