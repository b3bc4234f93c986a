package analyzer

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/pkg/utils"
)

// maxRationale bounds the explanation attached to a score
const maxRationale = 5

// Breakdown holds the five factor scores, each in [0,1]
type Breakdown struct {
	Age       float64
	Ownership float64
	Activity  float64
	Size      float64
	Duplicate float64
}

// Confidence is how safe a candidate is to delete
type Confidence struct {
	Score     int // 0..100
	Tier      Tier
	Breakdown Breakdown
	Rationale []string
}

// Scorer computes confidence from discovery data alone. It performs no I/O.
type Scorer struct {
	policy Policy
	now    func() time.Time
}

// NewScorer creates a scorer for policy
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy, now: time.Now}
}

// Policy returns the scorer's policy
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score computes the confidence of c. dup is nil when c has no duplicate
// relationship.
func (s *Scorer) Score(c *scanner.Candidate, dup *scanner.DuplicateContext) Confidence {
	var b Breakdown
	rationale := make([]string, 0, 6)

	var why string
	b.Age, why = ageFactor(c.Resource.LastRelevantDate(), s.now())
	rationale = append(rationale, why)

	b.Ownership, why = ownershipFactor(c)
	rationale = append(rationale, why)

	b.Activity, why = activityFactor(c, s.now())
	rationale = append(rationale, why)

	b.Size, why = sizeFactor(c.EstimatedSize)
	rationale = append(rationale, why)

	b.Duplicate, why = duplicateFactor(c, dup)
	rationale = append(rationale, why)

	if detail, ok := c.Reason(scanner.ReasonDuplicateCopy); ok {
		rationale = append(rationale, detail)
	}

	w := s.policy.Weights
	sum := w.Age*b.Age +
		w.Ownership*b.Ownership +
		w.Activity*b.Activity +
		w.Size*b.Size +
		w.Duplicate*b.Duplicate +
		s.policy.CategoryBonus[c.Category]

	score := int(math.Round(clamp01(sum) * 100))

	return Confidence{
		Score:     score,
		Tier:      s.policy.TierFor(score),
		Breakdown: b,
		Rationale: compactRationale(rationale),
	}
}

// compactRationale drops repeated strings and keeps the first five
func compactRationale(items []string) []string {
	out := make([]string, 0, maxRationale)
	for _, item := range items {
		if item == "" || slices.Contains(out, item) {
			continue
		}
		out = append(out, item)
		if len(out) == maxRationale {
			break
		}
	}
	return out
}

func ageFactor(last, now time.Time) (float64, string) {
	if last.IsZero() {
		return 0.50, "Last use unknown"
	}

	age := now.Sub(last)
	when := "Last used " + humanize.RelTime(last, now, "ago", "from now")

	switch days := age.Hours() / 24; {
	case days < 7:
		return 0.10, when
	case days < 30:
		return 0.30, when
	case days < 90:
		return 0.55, when
	case days < 180:
		return 0.75, when
	case days < 365:
		return 0.90, when
	default:
		return 1.0, when
	}
}

func ownershipFactor(c *scanner.Candidate) (float64, string) {
	if !c.IsOwned() {
		return 1.0, "No installed application owns it"
	}
	owner := strings.TrimSuffix(filepath.Base(c.AssociatedBundlePath), ".app")
	return 0.20, fmt.Sprintf("Owned by installed app %s", owner)
}

func activityFactor(c *scanner.Candidate, now time.Time) (float64, string) {
	p := c.RecentProcess
	switch {
	case p == nil:
		return 0.90, "Owner is not running"
	case p.IsActive:
		return 0.05, fmt.Sprintf("%s is running now", p.Name)
	case !p.LaunchDate.IsZero() && now.Sub(p.LaunchDate) < 24*time.Hour:
		return 0.30, fmt.Sprintf("%s launched %s", p.Name, humanize.RelTime(p.LaunchDate, now, "ago", "from now"))
	default:
		return 0.60, fmt.Sprintf("%s is idle", p.Name)
	}
}

func sizeFactor(size int64) (float64, string) {
	why := "Uses " + humanize.IBytes(uint64(max(size, 0)))

	switch {
	case size < utils.MB:
		return 0.10, why
	case size < 10*utils.MB:
		return 0.30, why
	case size < 100*utils.MB:
		return 0.50, why
	case size < utils.GB:
		return 0.75, why
	default:
		return 1.0, why
	}
}

func duplicateFactor(c *scanner.Candidate, dup *scanner.DuplicateContext) (float64, string) {
	switch {
	case dup == nil:
		return 0.40, "No duplicate found"
	case dup.IsPrimary:
		return 0.10, fmt.Sprintf("Newest of %d identical copies", dup.GroupSize)
	default:
		if detail, ok := c.Reason(scanner.ReasonDuplicateCopy); ok {
			return 1.0, detail
		}
		return 1.0, "Duplicate of " + dup.PrimaryPath
	}
}
