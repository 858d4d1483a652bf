package main

import (
	"context"
	"fmt"
	"log"

	"github.com/openkala/callboard/internal/config"
	"github.com/openkala/callboard/internal/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	var total, published, drafts, rejected, embedded int
	err = pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'published'),
			count(*) FILTER (WHERE status = 'draft'),
			count(*) FILTER (WHERE status = 'rejected'),
			count(embedding)
		FROM opportunities
	`).Scan(&total, &published, &drafts, &rejected, &embedded)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	var runs, operators int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM scan_runs").Scan(&runs); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM operators").Scan(&operators); err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Total opportunities: %d\n", total)
	fmt.Printf("Published: %d\n", published)
	fmt.Printf("Drafts awaiting review: %d\n", drafts)
	fmt.Printf("Rejected: %d\n", rejected)
	fmt.Printf("With embeddings: %d\n", embedded)
	fmt.Printf("Scan runs: %d\n", runs)
	fmt.Printf("Operators: %d\n", operators)
}
