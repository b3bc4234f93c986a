// Package inventory builds the read-only lookup tables of installed
// applications and running processes that discovery consults to decide
// whether an artifact still has an owner.
package inventory

import (
	"strings"
	"time"
	"unicode"
)

// Application is an installed application bundle.
type Application struct {
	BundleID   string
	Name       string
	BundlePath string
}

// Process is a running (or recently running) process.
type Process struct {
	PID        int32
	BundleID   string
	Name       string
	LaunchDate time.Time
	IsActive   bool
}

// Normalize lowercases s and keeps only letters and digits, so that
// "Google Chrome", "google-chrome" and "GoogleChrome" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AppIndex answers ownership questions about installed applications.
type AppIndex struct {
	byBundleID map[string]Application
	byName     map[string]Application
	count      int
}

// NewAppIndex indexes apps by normalized bundle id and normalized name.
// The first application wins when two normalize to the same key.
func NewAppIndex(apps []Application) *AppIndex {
	ix := &AppIndex{
		byBundleID: make(map[string]Application, len(apps)),
		byName:     make(map[string]Application, len(apps)),
		count:      len(apps),
	}
	for _, app := range apps {
		if key := Normalize(app.BundleID); key != "" {
			if _, ok := ix.byBundleID[key]; !ok {
				ix.byBundleID[key] = app
			}
		}
		if key := Normalize(app.Name); key != "" {
			if _, ok := ix.byName[key]; !ok {
				ix.byName[key] = app
			}
		}
	}
	return ix
}

// Len returns the number of indexed applications.
func (ix *AppIndex) Len() int {
	if ix == nil {
		return 0
	}
	return ix.count
}

// LookupBundleID finds an installed application by bundle identifier.
func (ix *AppIndex) LookupBundleID(bundleID string) (Application, bool) {
	if ix == nil {
		return Application{}, false
	}
	app, ok := ix.byBundleID[Normalize(bundleID)]
	return app, ok
}

// Match finds an installed application whose normalized name or bundle
// identifier equals the normalized key.
func (ix *AppIndex) Match(key string) (Application, bool) {
	if ix == nil {
		return Application{}, false
	}
	norm := Normalize(key)
	if norm == "" {
		return Application{}, false
	}
	if app, ok := ix.byName[norm]; ok {
		return app, true
	}
	app, ok := ix.byBundleID[norm]
	return app, ok
}

// ProcessIndex answers "is the owner running" questions.
type ProcessIndex struct {
	byBundleID map[string]Process
	byName     map[string]Process
}

// NewProcessIndex indexes processes by normalized bundle id and name. When
// several processes share a key the active one wins, then the most recently
// launched.
func NewProcessIndex(procs []Process) *ProcessIndex {
	ix := &ProcessIndex{
		byBundleID: make(map[string]Process, len(procs)),
		byName:     make(map[string]Process, len(procs)),
	}
	for _, p := range procs {
		if key := Normalize(p.BundleID); key != "" {
			ix.byBundleID[key] = preferProcess(ix.byBundleID[key], p)
		}
		if key := Normalize(p.Name); key != "" {
			ix.byName[key] = preferProcess(ix.byName[key], p)
		}
	}
	return ix
}

func preferProcess(current, candidate Process) Process {
	if current.PID == 0 && current.Name == "" && current.BundleID == "" {
		return candidate
	}
	if candidate.IsActive != current.IsActive {
		if candidate.IsActive {
			return candidate
		}
		return current
	}
	if candidate.LaunchDate.After(current.LaunchDate) {
		return candidate
	}
	return current
}

// LookupBundleID finds a process by the bundle identifier of its executable.
func (ix *ProcessIndex) LookupBundleID(bundleID string) (Process, bool) {
	if ix == nil {
		return Process{}, false
	}
	p, ok := ix.byBundleID[Normalize(bundleID)]
	return p, ok
}

// Match finds a process whose normalized name or bundle id equals key.
func (ix *ProcessIndex) Match(key string) (Process, bool) {
	if ix == nil {
		return Process{}, false
	}
	norm := Normalize(key)
	if norm == "" {
		return Process{}, false
	}
	if p, ok := ix.byName[norm]; ok {
		return p, true
	}
	p, ok := ix.byBundleID[norm]
	return p, ok
}
