package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/inventory"
	"github.com/fenilsonani/reclaim/internal/platform"
	"github.com/fenilsonani/reclaim/internal/progress"
	"github.com/rs/zerolog"
)

func init() {
	// Installer and preference types missing from most system mime tables
	mime.AddExtensionType(".dmg", "application/x-apple-diskimage")
	mime.AddExtensionType(".pkg", "application/vnd.apple.installer+xml")
	mime.AddExtensionType(".plist", "application/x-plist")
}

// browserTarget is a known browser cache location relative to the caches dir
type browserTarget struct {
	RelPath     string
	DisplayName string
	BundleID    string
}

var darwinBrowserTargets = []browserTarget{
	{"Google/Chrome", "Google Chrome", "com.google.Chrome"},
	{"com.google.Chrome", "Google Chrome", "com.google.Chrome"},
	{"com.apple.Safari", "Safari", "com.apple.Safari"},
	{"Firefox", "Firefox", "org.mozilla.firefox"},
	{"Microsoft Edge", "Microsoft Edge", "com.microsoft.edgemac"},
	{"BraveSoftware/Brave-Browser", "Brave", "com.brave.Browser"},
	{"Arc", "Arc", "company.thebrowser.Browser"},
	{"com.operasoftware.Opera", "Opera", "com.operasoftware.Opera"},
	{"com.vivaldi.Vivaldi", "Vivaldi", "com.vivaldi.Vivaldi"},
}

var linuxBrowserTargets = []browserTarget{
	{"google-chrome", "Google Chrome", "google-chrome"},
	{"chromium", "Chromium", "chromium"},
	{"mozilla/firefox", "Firefox", "firefox"},
	{"microsoft-edge", "Microsoft Edge", "microsoft-edge"},
	{"BraveSoftware/Brave-Browser", "Brave", "brave-browser"},
	{"opera", "Opera", "opera"},
	{"vivaldi", "Vivaldi", "vivaldi-stable"},
}

func browserTargets(p platform.Platform) []browserTarget {
	if p == platform.Linux {
		return linuxBrowserTargets
	}
	return darwinBrowserTargets
}

// reservedSupportNames are Application Support (or XDG data) entries that
// belong to the system even though they are not com.apple.* named.
var reservedSupportNames = map[string]bool{
	// macOS
	"accounts":       true,
	"addressbook":    true,
	"animoji":        true,
	"callhistorydb":  true,
	"clouddocs":      true,
	"crashreporter":  true,
	"dock":           true,
	"familysettings": true,
	"fileprovider":   true,
	"icloud":         true,
	"knowledge":      true,
	"mobilesync":     true,
	"photos":         true,
	"quicklook":      true,
	"syncservices":   true,
	// XDG data home
	"applications": true,
	"backgrounds":  true,
	"flatpak":      true,
	"fonts":        true,
	"gvfsmetadata": true,
	"icons":        true,
	"keyrings":     true,
	"mime":         true,
	"sounds":       true,
	"systemd":      true,
	"themes":       true,
	"trash":        true,
}

// Engine discovers cleanup candidates. Each category runs in its own
// goroutine; a failing category never aborts the others.
type Engine struct {
	config           *config.Config
	platformInfo     *platform.Info
	apps             *inventory.AppIndex
	procs            *inventory.ProcessIndex
	progressReporter *progress.ProgressReporter
	logger           zerolog.Logger
	now              func() time.Time
}

// NewEngine creates a discovery engine. apps and procs may be nil, in
// which case nothing is considered installed or running.
func NewEngine(cfg *config.Config, info *platform.Info, apps *inventory.AppIndex, procs *inventory.ProcessIndex) *Engine {
	return &Engine{
		config:           cfg,
		platformInfo:     info,
		apps:             apps,
		procs:            procs,
		progressReporter: progress.NewProgressReporter(),
		logger:           zerolog.Nop(),
		now:              time.Now,
	}
}

// SetLogger sets the engine logger
func (e *Engine) SetLogger(logger zerolog.Logger) {
	e.logger = logger.With().Str("component", "discovery").Logger()
}

// SetProgressReporter sets a custom progress reporter
func (e *Engine) SetProgressReporter(pr *progress.ProgressReporter) {
	e.progressReporter = pr
}

// partial is the output of one category routine
type partial struct {
	candidates []*Candidate
	denied     []string
}

func (p *partial) add(c *Candidate) {
	p.candidates = append(p.candidates, c)
}

// Discover runs the requested categories (all when empty) and merges their
// results in the requested order. A path found by two categories becomes
// one candidate: descriptive fields come from the first, reasons from both.
func (e *Engine) Discover(ctx context.Context, categories []Category) *DiscoveryResult {
	if len(categories) == 0 {
		categories = AllCategories
	}
	categories = uniqueCategories(categories)

	startTime := time.Now()
	partials := make([]*partial, len(categories))

	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		categoriesDone int
		found          int
		foundSize      int64
	)

	e.reportScanProgress(progress.PhaseDiscovering, "", 0, 0, len(categories), 0, startTime)

	for i, category := range categories {
		wg.Add(1)
		go func() {
			defer wg.Done()

			p := e.discoverCategory(ctx, category)
			partials[i] = p

			mu.Lock()
			categoriesDone++
			found += len(p.candidates)
			for _, c := range p.candidates {
				foundSize += c.EstimatedSize
			}
			e.reportScanProgress(progress.PhaseDiscovering, category.String(), found, foundSize, len(categories), categoriesDone, startTime)
			mu.Unlock()
		}()
	}
	wg.Wait()

	result := mergePartials(partials)

	e.logger.Debug().
		Int("candidates", len(result.Candidates)).
		Int("permission_denied", len(result.PermissionDenied)).
		Dur("elapsed", time.Since(startTime)).
		Msg("discovery finished")
	e.reportScanProgress(progress.PhaseComplete, "", len(result.Candidates), result.TotalSize(), len(categories), len(categories), startTime)

	return result
}

// discoverCategory runs one routine. A panic inside a routine is logged
// and keeps whatever the routine found so far.
func (e *Engine) discoverCategory(ctx context.Context, category Category) (p *partial) {
	p = &partial{}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("category", category.String()).Interface("panic", r).Msg("discovery routine failed")
		}
	}()

	switch category {
	case CategoryBrowserCache:
		e.discoverBrowserCaches(ctx, p)
	case CategoryOrphanedAppSupport:
		e.discoverOrphanedAppSupport(ctx, p)
	case CategoryOrphanedPreference:
		e.discoverOrphanedPreferences(ctx, p)
	case CategorySharedInstaller:
		e.discoverSharedInstallers(ctx, p)
	}
	return p
}

func (e *Engine) discoverBrowserCaches(ctx context.Context, p *partial) {
	for _, target := range browserTargets(e.platformInfo.OS) {
		if ctx.Err() != nil {
			return
		}

		path := filepath.Join(e.platformInfo.CachesDir, target.RelPath)
		c, err := e.newCandidate(ctx, p, path, target.DisplayName, CategoryBrowserCache)
		if err != nil {
			e.softFail(p, path, err)
			continue
		}

		e.correlateOwner(c, target.BundleID, target.DisplayName)
		c.AddReason(ReasonBrowserCache, fmt.Sprintf("%s cache, rebuilt automatically when needed", target.DisplayName))
		p.add(c)
	}
}

func (e *Engine) discoverOrphanedAppSupport(ctx context.Context, p *partial) {
	root := e.platformInfo.AppSupportDir
	entries, err := os.ReadDir(root)
	if err != nil {
		e.softFail(p, root, err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") || isAppleNamespaced(name) || reservedSupportNames[inventory.Normalize(name)] {
			continue
		}
		if _, ok := e.apps.Match(name); ok {
			continue
		}
		if _, ok := e.procs.Match(name); ok {
			continue
		}

		path := filepath.Join(root, name)
		c, err := e.newCandidate(ctx, p, path, name, CategoryOrphanedAppSupport)
		if err != nil {
			e.softFail(p, path, err)
			continue
		}

		c.AddReason(ReasonNoInstalledOwner, fmt.Sprintf("No installed application or running process matches %q", name))
		p.add(c)
	}
}

func (e *Engine) discoverOrphanedPreferences(ctx context.Context, p *partial) {
	root := e.platformInfo.PreferencesDir
	entries, err := os.ReadDir(root)
	if err != nil {
		e.softFail(p, root, err)
		return
	}

	minAge := time.Duration(e.config.Discovery.PreferenceMinAgeDays) * 24 * time.Hour
	now := e.now()

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".plist") {
			continue
		}

		bundleID := strings.TrimSuffix(name, filepath.Ext(name))
		if bundleID == "" || isAppleNamespaced(bundleID) {
			continue
		}
		if _, ok := e.apps.LookupBundleID(bundleID); ok {
			continue
		}
		if _, ok := e.procs.LookupBundleID(bundleID); ok {
			continue
		}

		path := filepath.Join(root, name)
		c, err := e.newCandidate(ctx, p, path, bundleID, CategoryOrphanedPreference)
		if err != nil {
			e.softFail(p, path, err)
			continue
		}

		modified := c.Resource.ModifiedAt
		if modified.IsZero() || now.Sub(modified) < minAge {
			continue
		}

		c.AddReason(ReasonStalePreference, fmt.Sprintf("No installed application uses %s; last modified %s", bundleID, humanize.RelTime(modified, now, "ago", "from now")))
		p.add(c)
	}
}

func (e *Engine) discoverSharedInstallers(ctx context.Context, p *partial) {
	root := e.platformInfo.SharedInstallerDir
	if root == "" {
		return
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		e.softFail(p, root, err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !e.isInstallerExtension(ext) {
			continue
		}

		path := filepath.Join(root, name)
		c, err := e.newCandidate(ctx, p, path, name, CategorySharedInstaller)
		if err != nil {
			e.softFail(p, path, err)
			continue
		}

		c.AddReason(ReasonSharedInstaller, fmt.Sprintf("%s installer left in %s", strings.ToUpper(strings.TrimPrefix(ext, ".")), root))
		p.add(c)
	}
}

func (e *Engine) isInstallerExtension(ext string) bool {
	for _, allowed := range e.config.Discovery.InstallerExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// newCandidate stats path and fills in the resource snapshot and size
func (e *Engine) newCandidate(ctx context.Context, p *partial, path, name string, category Category) (*Candidate, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(canonical)
	if err != nil {
		return nil, err
	}

	c := &Candidate{
		Path:        canonical,
		DisplayName: name,
		Category:    category,
		Resource:    snapshot(canonical, info),
	}

	if info.IsDir() {
		size, truncated, denied := e.estimateDirSize(ctx, canonical)
		c.EstimatedSize = size
		c.SizeTruncated = truncated
		p.denied = append(p.denied, denied...)
		if truncated {
			c.AddReason(ReasonSizeTruncated, fmt.Sprintf("Size estimate stopped after %d entries", e.config.Discovery.MaxInspectedChildren))
		}
	} else {
		c.EstimatedSize = info.Size()
	}

	return c, nil
}

// estimateDirSize sums regular file sizes below root, inspecting at most
// MaxInspectedChildren entries.
func (e *Engine) estimateDirSize(ctx context.Context, root string) (size int64, truncated bool, denied []string) {
	limit := e.config.Discovery.MaxInspectedChildren
	inspected := 0

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied = append(denied, path)
			}
			return nil
		}
		if path == root {
			return nil
		}
		if ctx.Err() != nil {
			return fs.SkipAll
		}

		inspected++
		if limit > 0 && inspected > limit {
			truncated = true
			return fs.SkipAll
		}

		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})

	return size, truncated, denied
}

// correlateOwner attaches the installed owner and its process, looked up by
// bundle id first and display name second
func (e *Engine) correlateOwner(c *Candidate, bundleID, name string) {
	app, ok := e.apps.LookupBundleID(bundleID)
	if !ok {
		app, ok = e.apps.Match(name)
	}
	if ok {
		c.AssociatedBundleID = app.BundleID
		if c.AssociatedBundleID == "" {
			c.AssociatedBundleID = bundleID
		}
		c.AssociatedBundlePath = app.BundlePath
	}

	proc, ok := e.procs.LookupBundleID(bundleID)
	if !ok {
		proc, ok = e.procs.Match(name)
	}
	if ok {
		c.RecentProcess = &proc
	}
}

// softFail records permission failures and ignores missing entries
func (e *Engine) softFail(p *partial, path string, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, fs.ErrPermission):
		p.denied = append(p.denied, path)
	default:
		e.logger.Debug().Err(err).Str("path", path).Msg("skipping entry")
	}
}

func (e *Engine) reportScanProgress(phase progress.Phase, category string, found int, size int64, categoriesTotal, categoriesDone int, startTime time.Time) {
	if e.progressReporter == nil {
		return
	}

	e.progressReporter.UpdateScanProgress(&progress.ScanProgress{
		Phase:           phase,
		Category:        category,
		CandidatesFound: found,
		TotalSize:       size,
		CategoriesTotal: categoriesTotal,
		CategoriesDone:  categoriesDone,
		StartTime:       startTime,
	})
}

func mergePartials(partials []*partial) *DiscoveryResult {
	result := &DiscoveryResult{
		Candidates:       []*Candidate{},
		PermissionDenied: []string{},
	}
	byPath := make(map[string]*Candidate)
	deniedSeen := make(map[string]bool)

	for _, p := range partials {
		if p == nil {
			continue
		}
		for _, c := range p.candidates {
			if existing, ok := byPath[c.Path]; ok {
				for _, r := range c.Reasons {
					existing.AddReason(r.Code, r.Detail)
				}
				continue
			}
			byPath[c.Path] = c
			result.Candidates = append(result.Candidates, c)
		}
		for _, path := range p.denied {
			if !deniedSeen[path] {
				deniedSeen[path] = true
				result.PermissionDenied = append(result.PermissionDenied, path)
			}
		}
	}

	return result
}

func uniqueCategories(categories []Category) []Category {
	seen := make(map[Category]bool, len(categories))
	result := make([]Category, 0, len(categories))
	for _, c := range categories {
		if !seen[c] {
			seen[c] = true
			result = append(result, c)
		}
	}
	return result
}

func snapshot(path string, info fs.FileInfo) ResourceSnapshot {
	r := ResourceSnapshot{
		IsDir:       info.IsDir(),
		ModifiedAt:  info.ModTime(),
		ContentType: contentType(path, info),
	}
	if accessed, modified, created, err := statTimes(path); err == nil {
		r.AccessedAt = accessed
		r.ModifiedAt = modified
		r.CreatedAt = created
	}
	return r
}

func contentType(path string, info fs.FileInfo) string {
	switch {
	case info.IsDir():
		return "inode/directory"
	case info.Mode()&fs.ModeSymlink != 0:
		return "inode/symlink"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func isAppleNamespaced(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "com.apple.")
}

// CanonicalPath makes path absolute and clean and resolves symlinks in its
// parent directories. The final component is never followed, so a symlink
// candidate is deleted as a link rather than through it.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to make path absolute: %w", err)
	}

	dir, base := filepath.Split(abs)
	if base == "" {
		return abs, nil
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return abs, nil
	}
	return filepath.Join(resolved, base), nil
}
