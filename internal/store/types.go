package store

import "time"

// SweepRecord is one journaled sweep.
type SweepRecord struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         time.Time
	DryRun             bool
	Success            bool
	Message            string
	RecoverySuggestion string
	Selected           int
	Removed            int
	Skipped            int
	Failed             int
	Escalated          int
	BytesSelected      int64
	Paths              []string // top-level selection
	Failures           []FailureRecord
}

// Duration returns how long the sweep ran
func (r *SweepRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailureRecord is one path a sweep could not remove.
type FailureRecord struct {
	Path   string
	Reason string
	Detail string
}
