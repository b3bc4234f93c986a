package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Decision is the guard's verdict on a single path
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionExcluded
	DecisionRestricted
)

// String returns the decision name
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionExcluded:
		return "excluded"
	case DecisionRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// ExclusionList is the user's keep-list
type ExclusionList interface {
	IsExcluded(path string) bool
}

// DescendantExclusions is implemented by exclusion lists that can tell
// whether something strictly below a directory is kept. Without it the
// guard cannot protect kept items inside a directory removed as a whole.
type DescendantExclusions interface {
	HasExcludedDescendant(dir string) bool
}

// Guard is the single authority deciding whether a path may be deleted.
// For a given path, exclusion list and policy it always returns the same
// decision. Restriction wins over exclusion.
type Guard struct {
	policy     *Policy
	exclusions ExclusionList
}

// NewGuard creates a guard; exclusions may be nil
func NewGuard(policy *Policy, exclusions ExclusionList) *Guard {
	return &Guard{policy: policy, exclusions: exclusions}
}

// Classify returns the decision for path
func (g *Guard) Classify(path string) Decision {
	decision, _ := g.Explain(path)
	return decision
}

// Explain returns the decision for path and, for restricted paths, the
// rule that matched.
func (g *Guard) Explain(path string) (Decision, error) {
	if err := g.policy.Check(path); err != nil {
		return DecisionRestricted, err
	}
	if g.exclusions != nil && g.exclusions.IsExcluded(filepath.Clean(path)) {
		return DecisionExcluded, nil
	}
	return DecisionAllow, nil
}

// HasProtectedDescendant reports whether anything strictly below dir is
// excluded or restricted. Such a directory must not be removed as a whole.
func (g *Guard) HasProtectedDescendant(dir string) bool {
	dir = filepath.Clean(dir)
	if g.policy.HasProtectedDescendant(dir) {
		return true
	}
	if d, ok := g.exclusions.(DescendantExclusions); ok {
		return d.HasExcludedDescendant(dir)
	}
	return false
}

// Check returns nil only when path may be removed recursively: it is
// allowed and nothing below it is excluded or restricted.
func (g *Guard) Check(path string) error {
	decision, err := g.Explain(path)
	switch decision {
	case DecisionRestricted:
		return err
	case DecisionExcluded:
		return fmt.Errorf("path is on the exclusion list: %s", path)
	}
	if g.HasProtectedDescendant(path) {
		return fmt.Errorf("path contains excluded or protected items: %s", path)
	}
	return nil
}

// Forget drops anything cached about path, e.g. after it was deleted
func (g *Guard) Forget(path string) {
	g.policy.Forget(path)
}

// IsSystemProtected reports whether a permission failure on path is
// permanent (SIP-style) rather than fixable by escalation.
func (g *Guard) IsSystemProtected(path string) bool {
	return g.policy.IsSystemProtected(path)
}

// BatchResult partitions a selection that contains no restricted path
type BatchResult struct {
	Permitted []string
	Excluded  []string
}

// RestrictedError reports the restricted paths of a rejected batch
type RestrictedError struct {
	Paths   []string
	Reasons map[string]string
}

func (e *RestrictedError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("selection contains a restricted path: %s", e.Paths[0])
	}
	shown := e.Paths
	if len(shown) > 3 {
		shown = shown[:3]
	}
	return fmt.Sprintf("selection contains %d restricted paths: %s", len(e.Paths), strings.Join(shown, ", "))
}

// FilterBatch classifies every path. If any path is restricted the whole
// batch is rejected with a *RestrictedError and no partial result, so the
// caller cannot proceed with a subset by accident.
func (g *Guard) FilterBatch(paths []string) (*BatchResult, error) {
	result := &BatchResult{}
	var restricted *RestrictedError

	for _, path := range paths {
		decision, reason := g.Explain(path)
		switch decision {
		case DecisionRestricted:
			if restricted == nil {
				restricted = &RestrictedError{Reasons: make(map[string]string)}
			}
			restricted.Paths = append(restricted.Paths, path)
			if reason != nil {
				restricted.Reasons[path] = reason.Error()
			}
		case DecisionExcluded:
			result.Excluded = append(result.Excluded, path)
		default:
			result.Permitted = append(result.Permitted, path)
		}
	}

	if restricted != nil {
		return nil, restricted
	}
	return result, nil
}
