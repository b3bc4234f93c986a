package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fenilsonani/reclaim/internal/progress"
	uiutils "github.com/fenilsonani/reclaim/internal/ui/utils"
	"golang.org/x/term"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// LiveProgress draws a one-line discovery status from scan progress updates
type LiveProgress struct {
	mu         sync.Mutex
	out        io.Writer
	termWidth  int
	lastUpdate time.Time
	frame      int
	drawn      bool
	stopped    bool
	done       chan struct{}
}

// NewLiveProgress creates a status line that writes to out
func NewLiveProgress(out io.Writer) *LiveProgress {
	width := 80
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	return &LiveProgress{
		out:       out,
		termWidth: width,
		done:      make(chan struct{}),
	}
}

// Watch renders updates from pr until Stop is called
func (lp *LiveProgress) Watch(pr *progress.ProgressReporter) {
	updates := pr.Subscribe()
	go func() {
		defer pr.Unsubscribe(updates)
		for {
			select {
			case <-lp.done:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if sp, ok := update.(*progress.ScanProgress); ok {
					lp.Update(sp)
				}
			}
		}
	}()
}

// Update redraws the status line, at most ten times per second
func (lp *LiveProgress) Update(p *progress.ScanProgress) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.stopped {
		return
	}
	now := time.Now()
	if now.Sub(lp.lastUpdate) < 100*time.Millisecond && p.Phase != progress.PhaseComplete {
		return
	}
	lp.lastUpdate = now
	lp.frame = (lp.frame + 1) % len(spinnerFrames)

	line := fmt.Sprintf("%s %s  %d/%d categories  %d found  %s",
		spinnerFrames[lp.frame],
		phaseTitle(p),
		p.CategoriesDone, p.CategoriesTotal,
		p.CandidatesFound,
		humanize.IBytes(uint64(max(p.TotalSize, 0))))

	fmt.Fprintf(lp.out, "\r\033[K%s", uiutils.TruncateString(line, lp.termWidth-1))
	lp.drawn = true
}

// Stop clears the status line
func (lp *LiveProgress) Stop() {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.stopped {
		return
	}
	lp.stopped = true
	close(lp.done)
	if lp.drawn {
		fmt.Fprint(lp.out, "\r\033[K")
	}
}

func phaseTitle(p *progress.ScanProgress) string {
	switch {
	case p.Phase == progress.PhaseDiscovering && p.Category != "":
		return "Scanning " + p.Category
	case p.Phase == progress.PhaseScoring:
		return "Scoring candidates"
	default:
		return string(p.Phase)
	}
}
