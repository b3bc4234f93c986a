package models

import (
	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/progress"
)

// SweepProgressMsg carries one tracker update into the sweep view
type SweepProgressMsg struct {
	Phase     progress.Phase
	Completed int
	Total     int
}

// SweepDoneMsg is sent once the sweep returned its outcome
type SweepDoneMsg struct {
	Outcome *cleaner.Outcome
}
