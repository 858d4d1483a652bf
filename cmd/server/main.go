package main

import (
	"context"
	"log"
	"time"

	"github.com/openkala/callboard/internal/ai"
	"github.com/openkala/callboard/internal/api"
	"github.com/openkala/callboard/internal/config"
	"github.com/openkala/callboard/internal/db"
	"github.com/openkala/callboard/internal/discovery"
	"github.com/openkala/callboard/internal/models"
	"github.com/openkala/callboard/internal/notify"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)
	agent, gemini, err := buildAgent(cfg, store)
	if err != nil {
		log.Fatalf("Assembling discovery agent: %v", err)
	}

	var embedder api.Embedder
	if len(cfg.GeminiKeys) > 0 {
		embedder = gemini
	} else {
		log.Print("GEMINI_API_KEYS is not set; extraction and parsing will fail, search falls back to keywords")
	}

	srv, err := api.NewServer(pool, api.Options{
		Agent:       agent,
		Embedder:    embedder,
		Notifier:    notify.FromWebhookURL(cfg.NotifyWebhookURL),
		AdminSecret: cfg.AdminSecret,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("Building server: %v", err)
	}

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := srv.Start(cfg.Port); err != nil {
		log.Fatal(err)
	}
}

// buildAgent wires the discovery loop: Groq answers the cheap relevance
// question, Gemini does extraction, parsing and embeddings.
func buildAgent(cfg config.Config, store *db.Store) (*discovery.Agent, *ai.GeminiClient, error) {
	bank, err := discovery.LoadKeywordBank()
	if err != nil {
		return nil, nil, err
	}

	gemini := ai.NewGeminiClient(cfg.GeminiKeys)
	groq := ai.NewGroqClient(cfg.GroqKeys, ai.GroqModelFast)
	memory := discovery.NewNegativeMemory()

	agent := discovery.NewAgent(
		store,
		discovery.NewLiteSearcher(),
		discovery.NewProxyFetcher(),
		discovery.NewSeedCrawler(),
		bank,
		discovery.NewRelevanceFilter(groq, memory),
		gemini,
		memory,
	)

	if len(cfg.GeminiKeys) > 0 {
		// Fresh drafts get their semantic vector in the background; a
		// failure leaves the record findable by keyword until the backfill
		// tool catches it.
		agent.OnAccept = func(o *models.Opportunity) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				vec, err := gemini.Embed(ctx, o.EmbeddingInput())
				if err != nil {
					log.Printf("[Embed] %q: %v", o.Title, err)
					return
				}
				if err := store.UpdateEmbedding(ctx, o.ID, vec); err != nil {
					log.Printf("[Embed] storing vector for %q: %v", o.Title, err)
				}
			}()
		}
	}

	return agent, gemini, nil
}
