package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/openkala/callboard/internal/ai"
	"github.com/openkala/callboard/internal/config"
	"github.com/openkala/callboard/internal/db"
	"github.com/openkala/callboard/internal/discovery"
)

func main() {
	mode := flag.String("mode", discovery.ModeDaily, "scan mode: daily or deep")
	target := flag.Int("target", 0, "drafts to accept before stopping (0 = mode default)")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall scan deadline")
	flag.Parse()

	if *mode != discovery.ModeDaily && *mode != discovery.ModeDeep {
		log.Fatalf("Unknown mode %q: use daily or deep", *mode)
	}

	cfg := config.Load()
	if len(cfg.GeminiKeys) == 0 {
		log.Fatal("GEMINI_API_KEYS is required to scan")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	bank, err := discovery.LoadKeywordBank()
	if err != nil {
		log.Fatalf("Loading keyword bank: %v", err)
	}
	memory := discovery.NewNegativeMemory()
	agent := discovery.NewAgent(
		db.NewStore(pool),
		discovery.NewLiteSearcher(),
		discovery.NewProxyFetcher(),
		discovery.NewSeedCrawler(),
		bank,
		discovery.NewRelevanceFilter(ai.NewGroqClient(cfg.GroqKeys, ai.GroqModelFast), memory),
		ai.NewGeminiClient(cfg.GeminiKeys),
		memory,
	)

	report, err := agent.Run(ctx, discovery.ScanOptions{Mode: *mode, TargetCount: *target}, log.Printf)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	if len(report.Found) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Title", "Type", "Deadline", "Days Left", "Confidence"})
		for _, o := range report.Found {
			t.AppendRow(table.Row{o.Title, o.Type, orDash(o.Deadline), o.DaysLeft, o.Confidence})
		}
		t.Render()
	}

	log.Printf("Scan complete: %d accepted, %d duplicates, %d rejected, %d errors (%d candidates, %d evaluated)",
		report.Accepted, report.Duplicates, report.Rejected, report.Errors, report.Candidates, report.Evaluated)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
