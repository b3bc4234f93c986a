package security

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Policy decides which paths are restricted: never deletable, regardless of
// what the user selected. A restricted path is a system location, a
// SIP-style protected item, or something owned by root outside the user's
// own directories.
type Policy struct {
	// protectedRoots are restricted themselves and one level below
	protectedRoots []string
	// protectedTrees are restricted with everything below them
	protectedTrees []string
	// allowedTrees carve exceptions out of protectedTrees
	allowedTrees []string
	// protectedLocations are restricted only on exact match
	protectedLocations []string
	// userRoots are where root-owned items may still be escalated
	userRoots []string

	inspector AttributeInspector
	uid       int
}

// NewPolicy creates a Policy with the built-in system locations. homeDir is
// treated as a user root and protected on exact match.
func NewPolicy(homeDir string) *Policy {
	p := &Policy{
		protectedRoots: []string{
			// Unix system directories
			"/",
			"/bin",
			"/boot",
			"/dev",
			"/etc",
			"/home",
			"/lib",
			"/lib64",
			"/opt",
			"/proc",
			"/root",
			"/sbin",
			"/sys",
			"/usr",
			"/var",
			"/private",
			"/private/var",
			// macOS system directories
			"/System",
			"/Applications",
			"/Library",
			"/Users",
			"/Volumes",
			"/cores",
		},
		protectedTrees: []string{
			"/System",
			"/bin",
			"/sbin",
			"/usr",
			"/etc",
			"/private/etc",
			"/var/db",
			"/private/var/db",
			"/Library/Apple",
			"/boot",
			"/dev",
			"/proc",
			"/sys",
			"/lib",
			"/lib64",
		},
		allowedTrees: []string{
			"/usr/local",
		},
		inspector: NewAttributeCache(SystemInspector{}, 10000, defaultAttributeTTL),
		uid:       os.Geteuid(),
	}

	if homeDir != "" {
		p.AddProtectedLocation(homeDir)
		p.AddUserRoot(homeDir)
	}

	return p
}

// AddProtectedPath restricts path and everything below it
func (p *Policy) AddProtectedPath(path string) {
	p.protectedTrees = append(p.protectedTrees, filepath.Clean(path))
}

// AddProtectedLocation restricts path itself but not its contents. Used for
// the well-known library folders whose children are deletable.
func (p *Policy) AddProtectedLocation(path string) {
	p.protectedLocations = append(p.protectedLocations, filepath.Clean(path))
}

// AddUserRoot marks a directory whose root-owned items are escalatable
// rather than restricted.
func (p *Policy) AddUserRoot(path string) {
	p.userRoots = append(p.userRoots, filepath.Clean(path))
}

// SetInspector replaces the attribute inspector
func (p *Policy) SetInspector(inspector AttributeInspector) {
	p.inspector = inspector
}

// Check returns nil when path is not restricted, or an error naming the
// rule that restricts it.
func (p *Policy) Check(path string) error {
	if path == "" || !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %q", path)
	}

	if filepath.Clean(path) != path {
		return fmt.Errorf("path contains suspicious elements: %s", path)
	}

	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("path contains control characters: %q", path)
	}

	// Check both the path as given and with parent symlinks resolved, so a
	// link like ~/x -> /System cannot smuggle a protected target through.
	for _, candidate := range p.forms(path) {
		if err := p.checkLocations(candidate); err != nil {
			return err
		}
	}

	return p.checkAttributes(path)
}

// IsRestricted reports whether Check rejects path
func (p *Policy) IsRestricted(path string) bool {
	return p.Check(path) != nil
}

// Forget drops cached attributes of path when the inspector caches them
func (p *Policy) Forget(path string) {
	if c, ok := p.inspector.(interface{ Invalidate(path string) }); ok {
		c.Invalidate(path)
	}
}

// HasProtectedDescendant reports whether a protected location, tree or
// root lies strictly below dir. Root-owned descendants are not detected;
// removing them needs escalation, which checks again.
func (p *Policy) HasProtectedDescendant(dir string) bool {
	for _, candidate := range p.forms(filepath.Clean(dir)) {
		for _, list := range [][]string{p.protectedRoots, p.protectedTrees, p.protectedLocations} {
			for _, protected := range list {
				if protected != candidate && within(protected, candidate) {
					return true
				}
			}
		}
		// Per-user temp folders may hold system-owned items at any depth
		if within(candidate, "/var/folders") || within(candidate, "/private/var/folders") {
			return true
		}
	}
	return false
}

// IsSystemProtected reports whether path is protected by the operating
// system itself (SIP-style). Such items cannot be removed even with
// administrator rights.
func (p *Policy) IsSystemProtected(path string) bool {
	for _, candidate := range p.forms(filepath.Clean(path)) {
		if matchSIPShape(candidate) || within(candidate, "/System") {
			return true
		}
	}

	if p.inspector == nil {
		return false
	}
	attrs, err := p.inspector.Inspect(path)
	return err == nil && attrs.Restricted
}

func (p *Policy) forms(path string) []string {
	forms := []string{path}

	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return forms
	}
	if resolved := filepath.Join(parent, filepath.Base(path)); resolved != path {
		forms = append(forms, resolved)
	}
	return forms
}

func (p *Policy) checkLocations(path string) error {
	if slices.Contains(p.protectedLocations, path) {
		return fmt.Errorf("refusing to delete protected location: %s", path)
	}

	for _, protected := range p.protectedRoots {
		if path == protected {
			return fmt.Errorf("refusing to delete protected path: %s", path)
		}

		// Only one level deep: /usr/foo vs /usr/local/cache/foo
		if parent := filepath.Dir(path); parent == protected {
			return fmt.Errorf("refusing to delete critical system path: %s", path)
		}
	}

	for _, tree := range p.protectedTrees {
		if !within(path, tree) {
			continue
		}
		allowed := false
		for _, carve := range p.allowedTrees {
			if within(path, carve) && carve != path && within(carve, tree) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("refusing to delete inside protected tree %s: %s", tree, path)
		}
	}

	if matchSIPShape(path) {
		return fmt.Errorf("refusing to delete system-protected item: %s", path)
	}

	return nil
}

func (p *Policy) checkAttributes(path string) error {
	if p.inspector == nil {
		return nil
	}

	attrs, err := p.inspector.Inspect(path)
	if err != nil {
		// Missing or unreadable items are judged by location only
		return nil
	}

	if attrs.Restricted {
		return fmt.Errorf("refusing to delete system-restricted item: %s", path)
	}

	if attrs.UID == 0 && p.uid != 0 {
		for _, root := range p.userRoots {
			if within(path, root) && path != root {
				return nil
			}
		}
		return fmt.Errorf("refusing to delete root-owned item outside user folders: %s", path)
	}

	return nil
}

// matchSIPShape matches per-user temp and cache folders that the system
// owns, such as /var/folders/xy/abc123/T/com.apple.something and anything
// below them.
func matchSIPShape(path string) bool {
	for _, prefix := range []string{"/var/folders/", "/private/var/folders/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		segs := strings.Split(rest, "/")
		for i := 0; i < len(segs)-1; i++ {
			if (segs[i] == "T" || segs[i] == "C") && strings.HasPrefix(segs[i+1], "com.apple.") {
				return true
			}
		}
	}
	return false
}

// within reports whether path equals root or lies below it
func within(path, root string) bool {
	if root == "/" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// ValidateGlobPattern validates that a glob pattern is safe
func ValidateGlobPattern(pattern string) error {
	if strings.Contains(pattern, "..") {
		return fmt.Errorf("glob pattern contains directory traversal: %s", pattern)
	}

	if _, err := filepath.Match(pattern, "test"); err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}

	return nil
}
