package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/openkala/callboard/internal/ai"
	"github.com/openkala/callboard/internal/config"
	"github.com/openkala/callboard/internal/db"
)

func main() {
	batch := flag.Int("batch", 50, "records per pass")
	pace := flag.Duration("pace", 200*time.Millisecond, "delay between embedding calls")
	flag.Parse()

	cfg := config.Load()
	if len(cfg.GeminiKeys) == 0 {
		log.Fatal("GEMINI_API_KEYS is required to backfill embeddings")
	}

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
	gemini := ai.NewGeminiClient(cfg.GeminiKeys)

	total := 0
	for {
		missing, err := store.MissingEmbeddings(ctx, *batch)
		if err != nil {
			log.Fatalf("Loading records without embeddings: %v", err)
		}
		if len(missing) == 0 {
			break
		}

		updated := 0
		for i := range missing {
			o := &missing[i]
			vec, err := gemini.Embed(ctx, o.EmbeddingInput())
			if err != nil {
				log.Printf("Embedding %q: %v", o.Title, err)
				continue
			}
			if err := store.UpdateEmbedding(ctx, o.ID, vec); err != nil {
				log.Printf("Storing vector for %q: %v", o.Title, err)
				continue
			}
			updated++
			time.Sleep(*pace)
		}
		total += updated
		log.Printf("Pass done: %d/%d embedded", updated, len(missing))

		// Zero progress means every remaining record keeps failing; bail
		// instead of hammering the API.
		if updated == 0 {
			break
		}
	}

	log.Printf("Backfilled %d embedding(s)", total)
}
