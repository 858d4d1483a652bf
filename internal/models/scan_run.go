package models

import (
	"time"

	"github.com/google/uuid"
)

// Scan run lifecycle states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScanRun records one execution of the discovery agent.
type ScanRun struct {
	ID          uuid.UUID  `json:"id"`
	Mode        string     `json:"mode"` // daily or deep
	Status      string     `json:"status"`
	Keywords    int        `json:"keywords"`
	Candidates  int        `json:"candidates"`
	Fetched     int        `json:"fetched"`
	Evaluated   int        `json:"evaluated"`
	Accepted    int        `json:"accepted"`
	Duplicates  int        `json:"duplicates"`
	Rejected    int        `json:"rejected"`
	Errors      int        `json:"errors"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
