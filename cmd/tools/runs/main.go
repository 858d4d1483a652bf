package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/openkala/callboard/internal/config"
	"github.com/openkala/callboard/internal/db"
)

func main() {
	limit := flag.Int("limit", 10, "runs to show")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListScanRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Mode", "Status", "Keywords", "Candidates", "Evaluated", "Accepted", "Dup", "Rejected", "Errors", "Duration", "Started At"})

	for _, run := range runs {
		duration := "running..."
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			run.Mode, run.Status, run.Keywords, run.Candidates, run.Evaluated,
			run.Accepted, run.Duplicates, run.Rejected, run.Errors,
			duration, run.StartedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()
}
