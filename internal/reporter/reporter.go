package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fenilsonani/reclaim/internal/analyzer"
	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/internal/store"
	"github.com/fenilsonani/reclaim/internal/ui/styles"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatSummary OutputFormat = "summary"
)

// ParseFormat validates a --format value
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatTable, FormatJSON, FormatYAML, FormatSummary:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (valid: table, json, yaml, summary)", name)
	}
}

// ScanReport is everything one scan produced
type ScanReport struct {
	Candidates       []analyzer.ScoredCandidate
	PermissionDenied []string
	GeneratedAt      time.Time
}

// Entry is the serialized form of a scored candidate
type Entry struct {
	Path          string   `json:"path" yaml:"path"`
	Name          string   `json:"name" yaml:"name"`
	Category      string   `json:"category" yaml:"category"`
	Size          int64    `json:"size" yaml:"size"`
	SizeFormatted string   `json:"size_formatted" yaml:"size_formatted"`
	SizeTruncated bool     `json:"size_truncated,omitempty" yaml:"size_truncated,omitempty"`
	Score         int      `json:"score" yaml:"score"`
	Tier          string   `json:"tier" yaml:"tier"`
	Owner         string   `json:"owner,omitempty" yaml:"owner,omitempty"`
	DuplicateOf   string   `json:"duplicate_of,omitempty" yaml:"duplicate_of,omitempty"`
	Reasons       []string `json:"reasons" yaml:"reasons"`
	Rationale     []string `json:"rationale" yaml:"rationale"`
}

type document struct {
	Timestamp          string  `json:"timestamp" yaml:"timestamp"`
	TotalCandidates    int     `json:"total_candidates" yaml:"total_candidates"`
	TotalSize          int64   `json:"total_size" yaml:"total_size"`
	TotalSizeFormatted string  `json:"total_size_formatted" yaml:"total_size_formatted"`
	Candidates         []Entry `json:"candidates" yaml:"candidates"`
	PermissionDenied   int     `json:"permission_denied" yaml:"permission_denied"`
}

// Reporter handles report generation
type Reporter struct {
	writer io.Writer
	format OutputFormat
	color  bool
}

// New creates a new Reporter. Tier colors are used only when writer is a
// terminal.
func New(writer io.Writer, format OutputFormat) *Reporter {
	color := false
	if f, ok := writer.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{
		writer: writer,
		format: format,
		color:  color,
	}
}

// Report renders a scan report in the reporter's format
func (r *Reporter) Report(report *ScanReport) error {
	switch r.format {
	case FormatTable:
		return r.reportTable(report)
	case FormatJSON:
		return r.reportJSON(report)
	case FormatYAML:
		return r.reportYAML(report)
	case FormatSummary:
		return r.reportSummary(report)
	default:
		return fmt.Errorf("unsupported format: %s", r.format)
	}
}

func (r *Reporter) reportSummary(report *ScanReport) error {
	fmt.Fprintf(r.writer, "=== Reclaimable Space ===\n")
	fmt.Fprintf(r.writer, "Candidates: %d\n", len(report.Candidates))
	fmt.Fprintf(r.writer, "Total Size: %s\n", humanize.IBytes(uint64(totalSize(report.Candidates))))

	fmt.Fprintf(r.writer, "\nBy Tier:\n")
	tiers := analyzer.Summarize(report.Candidates)
	for _, tier := range analyzer.AllTiers {
		ts := tiers[tier]
		fmt.Fprintf(r.writer, "  %s %d items, %s\n",
			r.tierLabel(tier, 14), ts.Count, humanize.IBytes(uint64(ts.Size)))
	}

	fmt.Fprintf(r.writer, "\nBy Category:\n")
	for _, category := range scanner.AllCategories {
		count, size := 0, int64(0)
		for _, s := range report.Candidates {
			if s.Candidate.Category == category {
				count++
				size += s.Candidate.EstimatedSize
			}
		}
		if count > 0 {
			fmt.Fprintf(r.writer, "  %-22s %d items, %s\n", category.Label()+":", count, humanize.IBytes(uint64(size)))
		}
	}

	if n := len(report.PermissionDenied); n > 0 {
		fmt.Fprintf(r.writer, "\nSkipped %d unreadable locations\n", n)
	}
	return nil
}

func (r *Reporter) reportTable(report *ScanReport) error {
	rule := strings.Repeat("-", 110)

	fmt.Fprintf(r.writer, "%-13s | %5s | %-10s | %-22s | %s\n", "Tier", "Score", "Size", "Category", "Path")
	fmt.Fprintln(r.writer, rule)

	for _, s := range report.Candidates {
		c := s.Candidate
		size := humanize.IBytes(uint64(c.EstimatedSize))
		if c.SizeTruncated {
			size = ">" + size
		}
		fmt.Fprintf(r.writer, "%s | %5d | %-10s | %-22s | %s\n",
			r.tierLabel(s.Confidence.Tier, 13),
			s.Confidence.Score,
			size,
			c.Category.Label(),
			shortenPath(c.Path, 60))
	}

	fmt.Fprintln(r.writer, rule)
	fmt.Fprintf(r.writer, "Total: %d candidates, %s\n",
		len(report.Candidates), humanize.IBytes(uint64(totalSize(report.Candidates))))
	return nil
}

func (r *Reporter) reportJSON(report *ScanReport) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(report))
}

func (r *Reporter) reportYAML(report *ScanReport) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(buildDocument(report))
}

// ReportOutcome prints the result of a sweep
func (r *Reporter) ReportOutcome(outcome *cleaner.Outcome) {
	style := styles.SuccessStyle
	if !outcome.Success {
		style = styles.ErrorStyle
	}
	fmt.Fprintln(r.writer, r.render(style, outcome.Message))

	if outcome.RecoverySuggestion != "" {
		fmt.Fprintln(r.writer, r.render(styles.HelpStyle, outcome.RecoverySuggestion))
	}
	if summary := cleaner.FormatErrorSummary(outcome.Stats.Failures); summary != "" {
		fmt.Fprintf(r.writer, "\n%s", summary)
	}
}

// ReportHistory prints journaled sweeps, newest first
func (r *Reporter) ReportHistory(records []*store.SweepRecord) {
	if len(records) == 0 {
		fmt.Fprintln(r.writer, "No sweeps recorded yet.")
		return
	}

	fmt.Fprintf(r.writer, "%-8s | %-19s | %-7s | %7s | %6s | %10s | %s\n",
		"ID", "Started", "Mode", "Removed", "Failed", "Selected", "Result")
	fmt.Fprintln(r.writer, strings.Repeat("-", 100))

	for _, rec := range records {
		mode := "live"
		if rec.DryRun {
			mode = "dry-run"
		}
		result := "ok"
		if !rec.Success {
			result = "failed"
		}
		fmt.Fprintf(r.writer, "%-8s | %-19s | %-7s | %7d | %6d | %10s | %s\n",
			shortID(rec.ID),
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			mode,
			rec.Removed,
			rec.Failed,
			humanize.IBytes(uint64(max(rec.BytesSelected, 0))),
			result)
	}
}

func (r *Reporter) tierLabel(tier analyzer.Tier, width int) string {
	label := fmt.Sprintf("%-*s", width, tier.String())
	return r.render(TierStyle(tier), label)
}

func (r *Reporter) render(style lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return style.Render(s)
}

// TierStyle returns the color used for tier
func TierStyle(tier analyzer.Tier) lipgloss.Style {
	switch tier {
	case analyzer.TierSafe:
		return lipgloss.NewStyle().Foreground(styles.Success)
	case analyzer.TierNeedsReview:
		return lipgloss.NewStyle().Foreground(styles.Warning)
	default:
		return lipgloss.NewStyle().Foreground(styles.Danger)
	}
}

func buildDocument(report *ScanReport) document {
	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	entries := make([]Entry, 0, len(report.Candidates))
	for _, s := range report.Candidates {
		entries = append(entries, newEntry(s))
	}

	total := totalSize(report.Candidates)
	return document{
		Timestamp:          generated.Format(time.RFC3339),
		TotalCandidates:    len(entries),
		TotalSize:          total,
		TotalSizeFormatted: humanize.IBytes(uint64(total)),
		Candidates:         entries,
		PermissionDenied:   len(report.PermissionDenied),
	}
}

func newEntry(s analyzer.ScoredCandidate) Entry {
	c := s.Candidate
	e := Entry{
		Path:          c.Path,
		Name:          c.DisplayName,
		Category:      c.Category.String(),
		Size:          c.EstimatedSize,
		SizeFormatted: humanize.IBytes(uint64(max(c.EstimatedSize, 0))),
		SizeTruncated: c.SizeTruncated,
		Score:         s.Confidence.Score,
		Tier:          s.Confidence.Tier.String(),
		Owner:         c.AssociatedBundleID,
		Reasons:       make([]string, 0, len(c.Reasons)),
		Rationale:     s.Confidence.Rationale,
	}
	for _, reason := range c.Reasons {
		e.Reasons = append(e.Reasons, reason.Code.String())
	}
	if s.Duplicate != nil && !s.Duplicate.IsPrimary {
		e.DuplicateOf = s.Duplicate.PrimaryPath
	}
	return e
}

func totalSize(scored []analyzer.ScoredCandidate) int64 {
	var total int64
	for _, s := range scored {
		total += max(s.Candidate.EstimatedSize, 0)
	}
	return total
}

func shortenPath(path string, width int) string {
	if len(path) <= width {
		return path
	}
	return "..." + path[len(path)-(width-3):]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SaveToFile saves the report to a file
func SaveToFile(report *ScanReport, path string, format OutputFormat) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	return New(file, format).Report(report)
}
