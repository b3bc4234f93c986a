package models

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/fenilsonani/reclaim/internal/analyzer"
	"github.com/fenilsonani/reclaim/internal/ui/styles"
	uiutils "github.com/fenilsonani/reclaim/internal/ui/utils"
)

// RiskLevel represents the risk level of a deletion operation
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskHigh:
		return "HIGH"
	case RiskMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ConfirmViewModel asks the user to approve a selection before a sweep
type ConfirmViewModel struct {
	selection []analyzer.ScoredCandidate
	dryRun    bool
	cursor    int // 0 = Yes, 1 = Cancel
	riskLevel RiskLevel
	confirmed bool
	width     int
	height    int
}

// NewConfirmViewModel creates a new confirm view model
func NewConfirmViewModel(selection []analyzer.ScoredCandidate, dryRun bool) *ConfirmViewModel {
	risk := CalculateRiskLevel(selection)
	cursor := 0
	if risk == RiskHigh {
		cursor = 1
	}

	return &ConfirmViewModel{
		selection: selection,
		dryRun:    dryRun,
		cursor:    cursor,
		riskLevel: risk,
		width:     80,
		height:    24,
	}
}

// CalculateRiskLevel rates a selection by its least safe tier
func CalculateRiskLevel(selection []analyzer.ScoredCandidate) RiskLevel {
	risk := RiskLow
	for _, s := range selection {
		switch s.Confidence.Tier {
		case analyzer.TierManualOnly:
			return RiskHigh
		case analyzer.TierNeedsReview:
			risk = RiskMedium
		}
	}
	if len(selection) > 500 && risk == RiskLow {
		risk = RiskMedium
	}
	return risk
}

// Confirmed reports whether the user approved the selection
func (m *ConfirmViewModel) Confirmed() bool {
	return m.confirmed
}

// Init initializes the confirm view
func (m *ConfirmViewModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *ConfirmViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h", "right", "l", "tab":
			m.cursor = 1 - m.cursor
		case "enter":
			m.confirmed = m.cursor == 0
			return m, tea.Quit
		case "y":
			m.confirmed = true
			return m, tea.Quit
		case "n", "q", "esc", "ctrl+c":
			m.confirmed = false
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the confirmation view
func (m *ConfirmViewModel) View() string {
	var b strings.Builder

	b.WriteString(uiutils.GetSizeWarningBanner(m.width, m.height))

	title := "Confirm Deletion"
	if m.dryRun {
		title = "Confirm Dry Run"
	}
	b.WriteString(styles.TitleStyle.Render(title))
	b.WriteString("\n")

	var total int64
	counts := make(map[analyzer.Tier]int)
	for _, s := range m.selection {
		total += max(s.Candidate.EstimatedSize, 0)
		counts[s.Confidence.Tier]++
	}

	fmt.Fprintf(&b, "%s selected, %s\n",
		styles.BoldStyle.Render(fmt.Sprintf("%d items", len(m.selection))),
		styles.FileSizeStyle.Render(humanize.IBytes(uint64(total))))
	for _, tier := range analyzer.AllTiers {
		if n := counts[tier]; n > 0 {
			fmt.Fprintf(&b, "  %s %d\n", styles.CategoryStyle.Render(tier.String()+":"), n)
		}
	}
	b.WriteString("\n")

	pageSize := uiutils.CalculatePageSize(m.height)
	pathWidth := max(m.width-16, 20)
	for i, s := range m.selection {
		if i == pageSize {
			fmt.Fprintf(&b, "  %s\n", styles.DimStyle.Render(fmt.Sprintf("... and %d more", len(m.selection)-pageSize)))
			break
		}
		fmt.Fprintf(&b, "  %-10s %s\n",
			humanize.IBytes(uint64(max(s.Candidate.EstimatedSize, 0))),
			styles.FilePathStyle.Render(uiutils.TruncatePath(s.Candidate.Path, pathWidth)))
	}
	b.WriteString("\n")

	riskStyle := styles.SuccessStyle
	switch m.riskLevel {
	case RiskHigh:
		riskStyle = styles.ErrorStyle
	case RiskMedium:
		riskStyle = styles.WarningStyle
	}
	fmt.Fprintf(&b, "Risk: %s\n\n", riskStyle.Render(m.riskLevel.String()))

	buttons := []string{"Yes, proceed", "Cancel"}
	for i, label := range buttons {
		style := styles.ButtonStyle
		if i == m.cursor {
			style = styles.ActiveButtonStyle
		}
		b.WriteString(style.Render(label))
		b.WriteString(" ")
	}
	b.WriteString("\n\n")
	b.WriteString(styles.HelpStyle.Render("y: confirm  n: cancel  tab: switch  enter: select"))
	b.WriteString("\n")

	return b.String()
}
