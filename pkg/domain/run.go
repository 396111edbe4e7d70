package domain

import "time"

// RunRecord is one completed evaluation.
type RunRecord struct {
	ID          string        `json:"id"`
	Document    DocumentID    `json:"document"`
	Seq         uint64        `json:"seq"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Error       string        `json:"error,omitempty"`
	Variables   int           `json:"variables"`
	Interrupted int           `json:"interrupted"`
}
