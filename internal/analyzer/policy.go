// Package analyzer turns discovered candidates into ranked, explained
// deletion recommendations.
package analyzer

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/scanner"
)

// Tier is an ordered deletion-safety classification, low to high
type Tier int

const (
	TierManualOnly Tier = iota
	TierNeedsReview
	TierSafe
)

// AllTiers lists tiers from safest to riskiest
var AllTiers = []Tier{TierSafe, TierNeedsReview, TierManualOnly}

func (t Tier) String() string {
	switch t {
	case TierSafe:
		return "safe"
	case TierNeedsReview:
		return "needs-review"
	case TierManualOnly:
		return "manual-only"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier parses a tier name such as "needs-review"
func ParseTier(name string) (Tier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range AllTiers {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier: %q (valid: safe, needs-review, manual-only)", name)
}

// Weights are the per-factor weights of the confidence sum
type Weights struct {
	Age       float64
	Ownership float64
	Activity  float64
	Size      float64
	Duplicate float64
}

// TierThreshold assigns Tier to scores at or above MinScore
type TierThreshold struct {
	Tier     Tier
	MinScore int
}

// Policy is the tunable part of scoring
type Policy struct {
	Weights       Weights
	CategoryBonus map[scanner.Category]float64
	Tiers         []TierThreshold // descending MinScore, last at 0
}

// DefaultPolicy returns the built-in weights, bonuses and 80/50 tier cuts
func DefaultPolicy() Policy {
	p, err := PolicyFromConfig(config.GetDefault().Scoring)
	if err != nil {
		panic(fmt.Sprintf("invalid default scoring policy: %v", err))
	}
	return p
}

// PolicyFromConfig validates the scoring section and converts it
func PolicyFromConfig(cfg config.ScoringConfig) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return Policy{}, err
	}

	p := Policy{
		Weights: Weights{
			Age:       cfg.Weights.Age,
			Ownership: cfg.Weights.Ownership,
			Activity:  cfg.Weights.Activity,
			Size:      cfg.Weights.Size,
			Duplicate: cfg.Weights.Duplicate,
		},
		CategoryBonus: make(map[scanner.Category]float64, len(cfg.CategoryBonus)),
	}

	for name, bonus := range cfg.CategoryBonus {
		category, err := scanner.ParseCategory(name)
		if err != nil {
			return Policy{}, err
		}
		p.CategoryBonus[category] = bonus
	}

	seen := make(map[Tier]bool)
	for _, tc := range cfg.Tiers {
		tier, err := ParseTier(tc.Name)
		if err != nil {
			return Policy{}, err
		}
		if seen[tier] {
			return Policy{}, fmt.Errorf("tier %s listed twice", tier)
		}
		seen[tier] = true
		p.Tiers = append(p.Tiers, TierThreshold{Tier: tier, MinScore: tc.MinScore})
	}

	// Higher cut points must map to safer tiers
	if !slices.IsSortedFunc(p.Tiers, func(a, b TierThreshold) int { return int(b.Tier) - int(a.Tier) }) {
		return Policy{}, fmt.Errorf("tiers must be listed from safe to manual-only")
	}

	return p, nil
}

// TierFor maps a 0..100 score to its tier
func (p Policy) TierFor(score int) Tier {
	for _, t := range p.Tiers {
		if score >= t.MinScore {
			return t.Tier
		}
	}
	return TierManualOnly
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
