package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/openkala/callboard/internal/config"
	"github.com/openkala/callboard/internal/db"
	"github.com/openkala/callboard/internal/models"
)

// Housekeeping: published records whose deadline has passed stop being
// served, and rejected drafts old enough to have aged out of the negative
// memory are purged.
func main() {
	olderThan := flag.Duration("older-than", 90*24*time.Hour, "purge rejected drafts not touched for this long")
	flag.Parse()

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

	expired, err := store.MarkExpired(ctx, time.Now())
	if err != nil {
		log.Fatalf("Marking expired records: %v", err)
	}
	log.Printf("Marked %d published record(s) past deadline as removed", expired)

	cutoff := time.Now().Add(-*olderThan)
	purged, err := store.DeleteWhere(ctx, models.StatusRejected, cutoff)
	if err != nil {
		log.Fatalf("Purging rejected drafts: %v", err)
	}
	log.Printf("Purged %d rejected draft(s) last touched before %s", purged, cutoff.Format("2006-01-02"))
}
