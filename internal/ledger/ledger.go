// Package ledger records harvest runs for operational visibility. The
// ledger is bookkeeping only: a run that cannot be recorded still runs.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoRuns is returned by LatestRun when nothing has been recorded yet.
var ErrNoRuns = errors.New("no runs recorded")

// Run phases.
const (
	PhaseDiscover = "discover"
	PhaseCollect  = "collect"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunRecord is one harvest run's ledger row.
type RunRecord struct {
	ID             uuid.UUID  `json:"id"`
	Phase          string     `json:"phase"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"`
	Batches        int        `json:"batches"`
	Messages       int        `json:"messages"`
	Committed      int        `json:"committed"`
	Succeeded      int        `json:"succeeded"`
	SoftExhausted  int        `json:"soft_failure_exhausted"`
	HardFailures   int        `json:"hard_failures"`
	ResolverMisses int        `json:"resolver_misses"`
	Poison         int        `json:"poison"`
	Error          *string    `json:"error,omitempty"`
}

// Ledger persists run records.
type Ledger interface {
	// BeginRun inserts a running record for the phase and returns it.
	BeginRun(ctx context.Context, phase string) (RunRecord, error)

	// FinishRun writes the record's final counters and status.
	FinishRun(ctx context.Context, record RunRecord) error

	// LatestRun returns the most recently started run for the phase, or
	// across phases when phase is empty. Returns ErrNoRuns when empty.
	LatestRun(ctx context.Context, phase string) (RunRecord, error)
}
