package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/progress"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/rs/zerolog"
)

// ScoredCandidate pairs a candidate with its duplicate role and score
type ScoredCandidate struct {
	Candidate  *scanner.Candidate
	Duplicate  *scanner.DuplicateContext
	Confidence Confidence
}

// Analyzer runs duplicate detection and scoring over a discovery result
type Analyzer struct {
	scorer           *Scorer
	detector         *scanner.DuplicateDetector
	progressReporter *progress.ProgressReporter
	logger           zerolog.Logger
}

// New creates an analyzer. detector may be nil to skip duplicate detection.
func New(scorer *Scorer, detector *scanner.DuplicateDetector) *Analyzer {
	return &Analyzer{
		scorer:   scorer,
		detector: detector,
		logger:   zerolog.Nop(),
	}
}

// NewFromConfig builds the scorer and detector from cfg
func NewFromConfig(cfg *config.Config) (*Analyzer, error) {
	policy, err := PolicyFromConfig(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring policy: %w", err)
	}

	detector, err := scanner.NewDuplicateDetector(cfg.Duplicates)
	if err != nil {
		return nil, err
	}

	return New(NewScorer(policy), detector), nil
}

// SetLogger sets the analyzer logger
func (a *Analyzer) SetLogger(logger zerolog.Logger) {
	a.logger = logger.With().Str("component", "analyzer").Logger()
	if a.detector != nil {
		a.detector.SetLogger(logger)
	}
}

// SetProgressReporter sets the reporter that receives the scoring phase
func (a *Analyzer) SetProgressReporter(pr *progress.ProgressReporter) {
	a.progressReporter = pr
}

// Analyze scores every candidate of result and returns them sorted by
// score, then size (largest first), then path
func (a *Analyzer) Analyze(ctx context.Context, result *scanner.DiscoveryResult) []ScoredCandidate {
	start := time.Now()
	if a.progressReporter != nil {
		a.progressReporter.UpdateScanProgress(&progress.ScanProgress{
			Phase:           progress.PhaseScoring,
			CandidatesFound: len(result.Candidates),
			TotalSize:       result.TotalSize(),
			StartTime:       start,
		})
	}

	var dups map[string]*scanner.DuplicateContext
	if a.detector != nil {
		dups = a.detector.Detect(ctx, result.Candidates)
	}

	scored := make([]ScoredCandidate, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		dup := dups[c.Path]
		scored = append(scored, ScoredCandidate{
			Candidate:  c,
			Duplicate:  dup,
			Confidence: a.scorer.Score(c, dup),
		})
	}

	SortScored(scored)

	a.logger.Debug().
		Int("candidates", len(scored)).
		Int("duplicates", len(dups)).
		Dur("elapsed", time.Since(start)).
		Msg("scoring finished")

	return scored
}

// SortScored orders by score desc, size desc, path asc
func SortScored(scored []ScoredCandidate) {
	slices.SortStableFunc(scored, func(a, b ScoredCandidate) int {
		if c := cmp.Compare(b.Confidence.Score, a.Confidence.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Candidate.EstimatedSize, a.Candidate.EstimatedSize); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate.Path, b.Candidate.Path)
	})
}

// FilterByTier returns the candidates of exactly tier
func FilterByTier(scored []ScoredCandidate, tier Tier) []ScoredCandidate {
	var out []ScoredCandidate
	for _, s := range scored {
		if s.Confidence.Tier == tier {
			out = append(out, s)
		}
	}
	return out
}

// MinTier returns the candidates at tier or safer
func MinTier(scored []ScoredCandidate, tier Tier) []ScoredCandidate {
	var out []ScoredCandidate
	for _, s := range scored {
		if s.Confidence.Tier >= tier {
			out = append(out, s)
		}
	}
	return out
}

// Paths returns the candidate paths in order
func Paths(scored []ScoredCandidate) []string {
	paths := make([]string, len(scored))
	for i, s := range scored {
		paths[i] = s.Candidate.Path
	}
	return paths
}

// TierSummary aggregates one tier
type TierSummary struct {
	Count int
	Size  int64
}

// Summarize counts candidates and bytes per tier
func Summarize(scored []ScoredCandidate) map[Tier]TierSummary {
	summary := make(map[Tier]TierSummary, len(AllTiers))
	for _, s := range scored {
		ts := summary[s.Confidence.Tier]
		ts.Count++
		ts.Size += s.Candidate.EstimatedSize
		summary[s.Confidence.Tier] = ts
	}
	return summary
}
