package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fenilsonani/reclaim/internal/cleaner"
	phases "github.com/fenilsonani/reclaim/internal/progress"
	"github.com/fenilsonani/reclaim/internal/ui/styles"
)

// SweepViewModel shows a running sweep
type SweepViewModel struct {
	spinner   spinner.Model
	progress  progress.Model
	phase     phases.Phase
	completed int
	total     int
	dryRun    bool
	startTime time.Time
	outcome   *cleaner.Outcome
}

// NewSweepViewModel creates a new sweep view model
func NewSweepViewModel(dryRun bool) *SweepViewModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SelectedStyle

	return &SweepViewModel{
		spinner:   s,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		phase:     phases.PhaseFiltering,
		dryRun:    dryRun,
		startTime: time.Now(),
	}
}

// Outcome returns the sweep result once SweepDoneMsg arrived
func (m *SweepViewModel) Outcome() *cleaner.Outcome {
	return m.outcome
}

// Percent is the fraction of deletion units finished
func (m *SweepViewModel) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return min(float64(m.completed)/float64(m.total), 1)
}

// Init initializes the sweep view
func (m *SweepViewModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages
func (m *SweepViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-10, 20), 80)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SweepProgressMsg:
		if msg.Phase != "" {
			m.phase = msg.Phase
		}
		m.completed = msg.Completed
		m.total = msg.Total

	case SweepDoneMsg:
		m.outcome = msg.Outcome
		m.phase = phases.PhaseComplete
		return m, tea.Quit

	case tea.KeyMsg:
		// Deletion is never interrupted; keys are ignored until the outcome
		// arrives.
		return m, nil
	}

	return m, nil
}

// View renders the sweep view
func (m *SweepViewModel) View() string {
	var b strings.Builder

	title := "Sweeping"
	if m.dryRun {
		title = "Sweeping (dry run)"
	}
	b.WriteString(styles.TitleStyle.Render(title))
	b.WriteString("\n")

	if m.outcome != nil {
		style := styles.SuccessStyle
		if !m.outcome.Success {
			style = styles.ErrorStyle
		}
		b.WriteString(style.Render(m.outcome.Message))
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), phaseLabel(m.phase))
	b.WriteString(m.progress.ViewAs(m.Percent()))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s\n", styles.DimStyle.Render(fmt.Sprintf("%d / %d items  %s",
		m.completed, m.total, phases.FormatDuration(time.Since(m.startTime)))))

	return b.String()
}

func phaseLabel(p phases.Phase) string {
	switch p {
	case phases.PhaseFiltering:
		return "Checking selection..."
	case phases.PhaseEnumerating:
		return "Listing contents..."
	case phases.PhaseDeleting:
		return "Deleting..."
	case phases.PhaseEscalating:
		return "Waiting for administrator approval..."
	case phases.PhaseComplete:
		return "Done"
	default:
		return string(p)
	}
}
