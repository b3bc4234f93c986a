package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/fenilsonani/reclaim/internal/inventory"
)

// Category identifies the discovery routine that produced a candidate
type Category int

const (
	CategoryBrowserCache Category = iota
	CategoryOrphanedAppSupport
	CategoryOrphanedPreference
	CategorySharedInstaller
)

// AllCategories lists every category in discovery order
var AllCategories = []Category{
	CategoryBrowserCache,
	CategoryOrphanedAppSupport,
	CategoryOrphanedPreference,
	CategorySharedInstaller,
}

// String returns the config name of the category
func (c Category) String() string {
	switch c {
	case CategoryBrowserCache:
		return "browser-cache"
	case CategoryOrphanedAppSupport:
		return "orphaned-app-support"
	case CategoryOrphanedPreference:
		return "orphaned-preference"
	case CategorySharedInstaller:
		return "shared-installer"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Label returns a human-readable category title
func (c Category) Label() string {
	switch c {
	case CategoryBrowserCache:
		return "Browser Caches"
	case CategoryOrphanedAppSupport:
		return "Orphaned App Support"
	case CategoryOrphanedPreference:
		return "Orphaned Preferences"
	case CategorySharedInstaller:
		return "Shared Installers"
	default:
		return c.String()
	}
}

// ParseCategory parses a config name such as "browser-cache"
func ParseCategory(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range AllCategories {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", name)
}

// ParseCategories parses a list of category names, dropping repeats
func ParseCategories(names []string) ([]Category, error) {
	var result []Category
	seen := make(map[Category]bool)
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			result = append(result, c)
		}
	}
	return result, nil
}

// ReasonCode tags why a candidate was flagged
type ReasonCode int

const (
	ReasonBrowserCache ReasonCode = iota
	ReasonNoInstalledOwner
	ReasonStalePreference
	ReasonSharedInstaller
	ReasonDuplicateCopy
	ReasonSizeTruncated
)

// String returns the short tag for the reason
func (r ReasonCode) String() string {
	switch r {
	case ReasonBrowserCache:
		return "browser-cache"
	case ReasonNoInstalledOwner:
		return "no-installed-owner"
	case ReasonStalePreference:
		return "stale-preference"
	case ReasonSharedInstaller:
		return "shared-installer"
	case ReasonDuplicateCopy:
		return "duplicate-copy"
	case ReasonSizeTruncated:
		return "size-truncated"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Reason is one justification attached to a candidate
type Reason struct {
	Code   ReasonCode
	Detail string
}

// ResourceSnapshot is the filesystem metadata captured at discovery time
type ResourceSnapshot struct {
	IsDir       bool
	AccessedAt  time.Time
	ModifiedAt  time.Time
	CreatedAt   time.Time
	ContentType string
}

// LastRelevantDate returns the access time, else the modification time,
// else the creation time. The zero time means nothing is known.
func (r ResourceSnapshot) LastRelevantDate() time.Time {
	switch {
	case !r.AccessedAt.IsZero():
		return r.AccessedAt
	case !r.ModifiedAt.IsZero():
		return r.ModifiedAt
	default:
		return r.CreatedAt
	}
}

// Candidate is a discovered filesystem object eligible for deletion.
// Path is absolute and canonical and identifies the candidate within one
// discovery result.
type Candidate struct {
	Path          string
	DisplayName   string
	Category      Category
	EstimatedSize int64
	SizeTruncated bool // directory walk hit the inspection cap
	Resource      ResourceSnapshot

	// Empty when no installed owner was found
	AssociatedBundleID   string
	AssociatedBundlePath string

	// Nil when the owner is not running
	RecentProcess *inventory.Process

	Reasons []Reason
}

// AddReason appends a reason unless one with the same code is already
// present. It reports whether the reason was added.
func (c *Candidate) AddReason(code ReasonCode, detail string) bool {
	if c.HasReason(code) {
		return false
	}
	c.Reasons = append(c.Reasons, Reason{Code: code, Detail: detail})
	return true
}

// HasReason reports whether a reason with code is attached
func (c *Candidate) HasReason(code ReasonCode) bool {
	for _, r := range c.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// Reason returns the detail of the reason with code, if present
func (c *Candidate) Reason(code ReasonCode) (string, bool) {
	for _, r := range c.Reasons {
		if r.Code == code {
			return r.Detail, true
		}
	}
	return "", false
}

// IsOwned reports whether an installed application owns the candidate
func (c *Candidate) IsOwned() bool {
	return c.AssociatedBundlePath != ""
}

// DiscoveryResult is the output of one discovery pass
type DiscoveryResult struct {
	Candidates       []*Candidate
	PermissionDenied []string
}

// TotalSize sums the estimated sizes of all candidates
func (r *DiscoveryResult) TotalSize() int64 {
	var total int64
	for _, c := range r.Candidates {
		total += c.EstimatedSize
	}
	return total
}

// GroupByCategory groups candidates by their category, keeping order
func (r *DiscoveryResult) GroupByCategory() map[Category][]*Candidate {
	grouped := make(map[Category][]*Candidate)
	for _, c := range r.Candidates {
		grouped[c.Category] = append(grouped[c.Category], c)
	}
	return grouped
}
