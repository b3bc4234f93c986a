package ui

import (
	"context"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fenilsonani/reclaim/internal/analyzer"
	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/progress"
	"github.com/fenilsonani/reclaim/internal/ui/models"
)

// Confirm shows the confirmation screen and reports the user's answer
func Confirm(selection []analyzer.ScoredCandidate, dryRun bool, in io.Reader, out io.Writer) (bool, error) {
	m := models.NewConfirmViewModel(selection, dryRun)
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))

	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("error running confirmation: %w", err)
	}
	return final.(*models.ConfirmViewModel).Confirmed(), nil
}

// TerminalElevator hands the terminal back while the wrapped elevator
// prompts for a password, then restores the sweep view
type TerminalElevator struct {
	inner cleaner.Elevator

	mu      sync.Mutex
	program *tea.Program
}

// NewTerminalElevator wraps inner
func NewTerminalElevator(inner cleaner.Elevator) *TerminalElevator {
	return &TerminalElevator{inner: inner}
}

func (e *TerminalElevator) attach(p *tea.Program) {
	e.mu.Lock()
	e.program = p
	e.mu.Unlock()
}

// ElevateAndRemove implements cleaner.Elevator
func (e *TerminalElevator) ElevateAndRemove(ctx context.Context, paths []string) cleaner.ElevationResult {
	e.mu.Lock()
	p := e.program
	e.mu.Unlock()

	if p != nil {
		if err := p.ReleaseTerminal(); err == nil {
			defer p.RestoreTerminal()
		}
	}
	return e.inner.ElevateAndRemove(ctx, paths)
}

// RunSweep runs the sweep behind a progress view and returns its outcome.
// terminal may be nil when the sweeper's elevator never prompts.
func RunSweep(ctx context.Context, sweeper *cleaner.Sweeper, terminal *TerminalElevator, paths []string, opts cleaner.Options, in io.Reader, out io.Writer) (*cleaner.Outcome, error) {
	m := models.NewSweepViewModel(opts.DryRun)
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))

	if terminal != nil {
		terminal.attach(p)
		defer terminal.attach(nil)
	}

	pr := progress.NewProgressReporter()
	sweeper.SetProgressReporter(pr)
	defer sweeper.SetProgressReporter(nil)

	updates := pr.Subscribe()
	go func() {
		for update := range updates {
			if sp, ok := update.(*progress.SweepProgress); ok {
				p.Send(models.SweepProgressMsg{Phase: sp.Phase, Completed: sp.Completed, Total: sp.Total})
			}
		}
	}()

	done := make(chan *cleaner.Outcome, 1)
	go func() {
		outcome := sweeper.Sweep(ctx, paths, opts)
		pr.Unsubscribe(updates)
		done <- outcome
		p.Send(models.SweepDoneMsg{Outcome: outcome})
	}()

	_, runErr := p.Run()

	// the sweep always finishes, even when the view failed
	outcome := <-done
	if runErr != nil {
		return outcome, fmt.Errorf("error running sweep view: %w", runErr)
	}
	return outcome, nil
}
