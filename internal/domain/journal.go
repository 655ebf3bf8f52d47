package domain

import (
	"context"
	"time"
)

// RunRecord summarizes one chat exchange for the run journal.
type RunRecord struct {
	RequestID string    `json:"request_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	PersonaID string    `json:"persona_id,omitempty"`
	Status    RunStatus `json:"status,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration returns how long the exchange took.
func (r RunRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// RunJournal persists RunRecords. Journal failures never fail a request.
type RunJournal interface {
	Record(ctx context.Context, rec RunRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
