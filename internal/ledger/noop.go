package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoOp keeps the latest record in memory and persists nothing. Used when no
// ledger database is configured.
type NoOp struct {
	mu   sync.Mutex
	last map[string]RunRecord
}

// NewNoOp returns an empty in-memory ledger.
func NewNoOp() *NoOp {
	return &NoOp{last: make(map[string]RunRecord)}
}

// BeginRun mints a record without persisting it.
func (n *NoOp) BeginRun(_ context.Context, phase string) (RunRecord, error) {
	record := RunRecord{
		ID:        uuid.New(),
		Phase:     phase,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
	n.mu.Lock()
	n.last[phase] = record
	n.mu.Unlock()
	return record, nil
}

// FinishRun keeps the final record in memory.
func (n *NoOp) FinishRun(_ context.Context, record RunRecord) error {
	n.mu.Lock()
	n.last[record.Phase] = record
	n.mu.Unlock()
	return nil
}

// LatestRun returns the most recently started in-memory record.
func (n *NoOp) LatestRun(_ context.Context, phase string) (RunRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if phase != "" {
		record, ok := n.last[phase]
		if !ok {
			return RunRecord{}, ErrNoRuns
		}
		return record, nil
	}
	var latest RunRecord
	found := false
	for _, record := range n.last {
		if !found || record.StartedAt.After(latest.StartedAt) {
			latest = record
			found = true
		}
	}
	if !found {
		return RunRecord{}, ErrNoRuns
	}
	return latest, nil
}
