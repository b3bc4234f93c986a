package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Phase represents the current phase of operation
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseScoring     Phase = "scoring"
	PhaseFiltering   Phase = "filtering"
	PhaseEnumerating Phase = "enumerating"
	PhaseDeleting    Phase = "deleting"
	PhaseEscalating  Phase = "escalating"
	PhaseComplete    Phase = "complete"
	PhaseError       Phase = "error"
)

// ScanProgress represents progress during discovery
type ScanProgress struct {
	Phase           Phase
	Category        string
	CandidatesFound int
	TotalSize       int64
	CategoriesTotal int
	CategoriesDone  int
	StartTime       time.Time
	Error           error
}

// SweepProgress represents progress during a sweep
type SweepProgress struct {
	Phase     Phase
	Completed int
	Total     int
	DryRun    bool
	StartTime time.Time
}

// ProgressReporter fans progress snapshots out to subscribers
type ProgressReporter struct {
	scanProgress  *ScanProgress
	sweepProgress *SweepProgress
	mu            sync.RWMutex
	listeners     []chan any
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		listeners: make([]chan any, 0),
	}
}

// Subscribe returns a channel that receives progress updates
func (pr *ProgressReporter) Subscribe() <-chan any {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	ch := make(chan any, 16)
	pr.listeners = append(pr.listeners, ch)
	return ch
}

// Unsubscribe closes and removes a listener channel
func (pr *ProgressReporter) Unsubscribe(ch <-chan any) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	for i, listener := range pr.listeners {
		if listener == ch {
			close(listener)
			pr.listeners = append(pr.listeners[:i], pr.listeners[i+1:]...)
			return
		}
	}
}

// UpdateScanProgress updates scan progress and notifies listeners
func (pr *ProgressReporter) UpdateScanProgress(update *ScanProgress) {
	pr.mu.Lock()
	pr.scanProgress = update
	pr.mu.Unlock()

	pr.broadcast(update)
}

// UpdateSweepProgress updates sweep progress and notifies listeners
func (pr *ProgressReporter) UpdateSweepProgress(update *SweepProgress) {
	pr.mu.Lock()
	pr.sweepProgress = update
	pr.mu.Unlock()

	pr.broadcast(update)
}

func (pr *ProgressReporter) broadcast(update any) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send. A slow subscriber drops updates.
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	for _, listener := range pr.listeners {
		select {
		case listener <- update:
		default:
		}
	}
}

// GetScanProgress returns the current scan progress
func (pr *ProgressReporter) GetScanProgress() *ScanProgress {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.scanProgress
}

// GetSweepProgress returns the current sweep progress
func (pr *ProgressReporter) GetSweepProgress() *SweepProgress {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.sweepProgress
}

// FormatScanProgress returns a human-readable scan progress string
func FormatScanProgress(p *ScanProgress) string {
	if p == nil {
		return "Initializing..."
	}

	elapsed := time.Since(p.StartTime)

	switch p.Phase {
	case PhaseDiscovering:
		return fmt.Sprintf("Scanning %s... %d/%d categories, %d candidates (%s) [%s]",
			p.Category,
			p.CategoriesDone,
			p.CategoriesTotal,
			p.CandidatesFound,
			humanize.Bytes(uint64(max(p.TotalSize, 0))),
			FormatDuration(elapsed))
	case PhaseScoring:
		return fmt.Sprintf("Scoring %d candidates...", p.CandidatesFound)
	case PhaseComplete:
		return fmt.Sprintf("Scan complete: %d candidates (%s) in %s",
			p.CandidatesFound,
			humanize.Bytes(uint64(max(p.TotalSize, 0))),
			FormatDuration(elapsed))
	case PhaseError:
		return fmt.Sprintf("Scan error: %v", p.Error)
	default:
		return "Scanning..."
	}
}

// FormatSweepProgress returns a human-readable sweep progress string
func FormatSweepProgress(p *SweepProgress) string {
	if p == nil {
		return "Preparing..."
	}

	verb := "Removing"
	if p.DryRun {
		verb = "Checking"
	}

	switch p.Phase {
	case PhaseFiltering:
		return "Checking selection against protected locations..."
	case PhaseEnumerating:
		return fmt.Sprintf("Listing items... %d found", p.Total)
	case PhaseDeleting:
		percentage := 0
		if p.Total > 0 {
			percentage = (p.Completed * 100) / p.Total
		}
		return fmt.Sprintf("%s... %d/%d items (%d%%)", verb, p.Completed, p.Total, percentage)
	case PhaseEscalating:
		return "Waiting for administrator approval..."
	case PhaseComplete:
		return fmt.Sprintf("Done: %d/%d items in %s", p.Completed, p.Total, FormatDuration(time.Since(p.StartTime)))
	default:
		return "Preparing sweep..."
	}
}

// FormatDuration formats duration in human-readable format
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
