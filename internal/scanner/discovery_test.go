package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/inventory"
	"github.com/fenilsonani/reclaim/internal/progress"
	"github.com/fenilsonani/reclaim/internal/testutil"
)

const day = 24 * time.Hour

func newTestEngine(t *testing.T, f *testutil.TestFixture, procs []inventory.Process) *Engine {
	t.Helper()

	apps, err := inventory.LoadApplications([]string{f.AppsDir})
	if err != nil {
		t.Fatalf("LoadApplications() error = %v", err)
	}

	return NewEngine(config.GetDefault(), f.Info(), inventory.NewAppIndex(apps), inventory.NewProcessIndex(procs))
}

func lookup(result *DiscoveryResult, path string) (*Candidate, bool) {
	for _, c := range result.Candidates {
		if c.Path == path {
			return c, true
		}
	}
	return nil, false
}

func candidateNames(result *DiscoveryResult) map[string]*Candidate {
	byName := make(map[string]*Candidate)
	for _, c := range result.Candidates {
		byName[c.DisplayName+"|"+filepath.Base(c.Path)] = c
	}
	return byName
}

// =============================================================================
// Category Tests
// =============================================================================

func TestParseCategory(t *testing.T) {
	for _, c := range AllCategories {
		got, err := ParseCategory(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), got, err)
		}
	}

	if _, err := ParseCategory("downloads"); err == nil {
		t.Error("expected error for unknown category")
	}

	cats, err := ParseCategories([]string{"shared-installer", " Browser-Cache ", "shared-installer"})
	if err != nil {
		t.Fatalf("ParseCategories() error = %v", err)
	}
	if len(cats) != 2 || cats[0] != CategorySharedInstaller || cats[1] != CategoryBrowserCache {
		t.Errorf("ParseCategories() = %v", cats)
	}

	for _, name := range config.CategoryNames {
		if _, err := ParseCategory(name); err != nil {
			t.Errorf("config category %q not parseable: %v", name, err)
		}
	}
}

func TestCandidateReasons(t *testing.T) {
	c := &Candidate{Path: "/x"}

	if !c.AddReason(ReasonNoInstalledOwner, "first") {
		t.Error("first reason should be added")
	}
	if c.AddReason(ReasonNoInstalledOwner, "second") {
		t.Error("same code should not be added twice")
	}
	c.AddReason(ReasonDuplicateCopy, "Duplicate of /y")

	if len(c.Reasons) != 2 {
		t.Fatalf("Reasons = %+v", c.Reasons)
	}
	if detail, ok := c.Reason(ReasonNoInstalledOwner); !ok || detail != "first" {
		t.Errorf("Reason() = %q, %v; want first detail kept", detail, ok)
	}
}

func TestLastRelevantDate(t *testing.T) {
	accessed := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	modified := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		r    ResourceSnapshot
		want time.Time
	}{
		{"access wins", ResourceSnapshot{AccessedAt: accessed, ModifiedAt: modified, CreatedAt: created}, accessed},
		{"modification next", ResourceSnapshot{ModifiedAt: modified, CreatedAt: created}, modified},
		{"creation last", ResourceSnapshot{CreatedAt: created}, created},
		{"unknown", ResourceSnapshot{}, time.Time{}},
	}

	for _, tt := range tests {
		if got := tt.r.LastRelevantDate(); !got.Equal(tt.want) {
			t.Errorf("%s: LastRelevantDate() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// =============================================================================
// Discovery Tests
// =============================================================================

func TestDiscoverBrowserCaches(t *testing.T) {
	f := testutil.NewFixture(t)
	chromeApp := f.CreateApp("Google Chrome", "com.google.Chrome")
	chrome := f.CreateCache("Google/Chrome", 2048)
	firefox := f.CreateCache("Firefox", 100)

	engine := newTestEngine(t, f, []inventory.Process{
		{PID: 42, Name: "firefox", BundleID: "org.mozilla.firefox", IsActive: true},
	})

	result := engine.Discover(context.Background(), []Category{CategoryBrowserCache})
	if len(result.Candidates) != 2 {
		t.Fatalf("Discover() = %d candidates, want 2", len(result.Candidates))
	}

	c, ok := lookup(result, chrome)
	if !ok {
		t.Fatalf("chrome cache %s not discovered", chrome)
	}
	if c.Category != CategoryBrowserCache || c.DisplayName != "Google Chrome" {
		t.Errorf("chrome candidate = %+v", c)
	}
	if c.EstimatedSize != 2048 || !c.Resource.IsDir {
		t.Errorf("chrome size = %d, dir = %v", c.EstimatedSize, c.Resource.IsDir)
	}
	if c.AssociatedBundlePath != chromeApp || c.AssociatedBundleID != "com.google.Chrome" {
		t.Errorf("chrome owner = %q %q, want %q", c.AssociatedBundleID, c.AssociatedBundlePath, chromeApp)
	}
	if c.RecentProcess != nil {
		t.Error("chrome is not running")
	}
	if !c.HasReason(ReasonBrowserCache) {
		t.Error("missing browser-cache reason")
	}

	ff, ok := lookup(result, firefox)
	if !ok {
		t.Fatal("firefox cache not discovered")
	}
	if ff.IsOwned() {
		t.Error("firefox is not installed")
	}
	if ff.RecentProcess == nil || ff.RecentProcess.PID != 42 {
		t.Errorf("firefox process = %+v", ff.RecentProcess)
	}
}

func TestDiscoverOrphanedAppSupport(t *testing.T) {
	f := testutil.NewFixture(t)
	f.CreateApp("Slack", "com.tinyspeck.slackmacgap")

	for _, name := range []string{"Slack", "OldTool", "com.apple.sharedfilelist", ".hidden", "Zoom", "CrashReporter"} {
		f.CreateFile(filepath.Join(f.RelPath(f.AppSupportDir), name, "state.db"), []byte("data"))
	}

	engine := newTestEngine(t, f, []inventory.Process{{PID: 7, Name: "zoom.us ", IsActive: true}, {PID: 8, Name: "Zoom", IsActive: true}})
	result := engine.Discover(context.Background(), []Category{CategoryOrphanedAppSupport})

	if len(result.Candidates) != 1 {
		for _, c := range result.Candidates {
			t.Logf("candidate: %s", c.Path)
		}
		t.Fatalf("Discover() = %d candidates, want only OldTool", len(result.Candidates))
	}

	c := result.Candidates[0]
	if c.DisplayName != "OldTool" || c.Category != CategoryOrphanedAppSupport {
		t.Errorf("candidate = %+v", c)
	}
	if !c.HasReason(ReasonNoInstalledOwner) {
		t.Error("missing no-installed-owner reason")
	}
	if c.EstimatedSize != 4 {
		t.Errorf("EstimatedSize = %d, want 4", c.EstimatedSize)
	}
}

func TestDiscoverOrphanedPreferences(t *testing.T) {
	f := testutil.NewFixture(t)
	f.CreateApp("Installed", "com.installed.app")

	old := f.CreatePreference("com.old.app", 200*day)
	f.CreatePreference("com.fresh.app", 10*day)
	f.CreatePreference("com.apple.finder", 200*day)
	f.CreatePreference("com.installed.app", 200*day)
	f.CreatePreference("com.running.app", 200*day)
	f.CreateFileWithAge(filepath.Join(f.RelPath(f.PreferencesDir), "notes.txt"), []byte("x"), 200*day)

	engine := newTestEngine(t, f, []inventory.Process{{PID: 9, Name: "Runner", BundleID: "com.running.app", IsActive: true}})
	result := engine.Discover(context.Background(), []Category{CategoryOrphanedPreference})

	if len(result.Candidates) != 1 || result.Candidates[0].Path != old {
		for _, c := range result.Candidates {
			t.Logf("candidate: %s", c.Path)
		}
		t.Fatalf("Discover() should find only %s", old)
	}

	c := result.Candidates[0]
	if c.DisplayName != "com.old.app" || c.Resource.ContentType != "application/x-plist" {
		t.Errorf("candidate = %+v", c)
	}
	if !c.HasReason(ReasonStalePreference) {
		t.Error("missing stale-preference reason")
	}
}

func TestDiscoverOrphanedPreferencesMinAge(t *testing.T) {
	f := testutil.NewFixture(t)
	f.CreatePreference("com.fresh.app", 10*day)

	engine := newTestEngine(t, f, nil)
	engine.config.Discovery.PreferenceMinAgeDays = 5

	result := engine.Discover(context.Background(), []Category{CategoryOrphanedPreference})
	if len(result.Candidates) != 1 {
		t.Errorf("Discover() = %d candidates, want 1 with lowered min age", len(result.Candidates))
	}
}

func TestDiscoverSharedInstallers(t *testing.T) {
	f := testutil.NewFixture(t)
	shared := f.RelPath(f.SharedDir)

	dmg := f.CreateFile(filepath.Join(shared, "Setup.DMG"), make([]byte, 300))
	f.CreateFile(filepath.Join(shared, "tool.pkg"), make([]byte, 200))
	f.CreateFile(filepath.Join(shared, "archive.zip"), make([]byte, 100))
	f.CreateFile(filepath.Join(shared, "notes.txt"), []byte("keep"))
	f.CreateFile(filepath.Join(shared, ".hidden.dmg"), []byte("x"))
	f.CreateDir(filepath.Join(shared, "folder.dmg"))

	engine := newTestEngine(t, f, nil)
	result := engine.Discover(context.Background(), []Category{CategorySharedInstaller})

	if len(result.Candidates) != 3 {
		t.Fatalf("Discover() = %d candidates, want 3", len(result.Candidates))
	}
	if result.TotalSize() != 600 {
		t.Errorf("TotalSize() = %d, want 600", result.TotalSize())
	}

	c, ok := lookup(result, dmg)
	if !ok {
		t.Fatal("dmg not discovered")
	}
	if c.Resource.IsDir || c.Resource.ContentType != "application/x-apple-diskimage" {
		t.Errorf("dmg resource = %+v", c.Resource)
	}
	if !c.HasReason(ReasonSharedInstaller) {
		t.Error("missing shared-installer reason")
	}
}

func TestDiscoverSizeTruncated(t *testing.T) {
	f := testutil.NewFixture(t)
	cache := f.CreateCache("Firefox", 10)
	for i := range 10 {
		f.CreateFile(filepath.Join(f.RelPath(cache), "entry", string(rune('a'+i))), make([]byte, 10))
	}

	engine := newTestEngine(t, f, nil)
	engine.config.Discovery.MaxInspectedChildren = 3

	result := engine.Discover(context.Background(), []Category{CategoryBrowserCache})
	c, ok := lookup(result, cache)
	if !ok {
		t.Fatal("cache not discovered")
	}
	if !c.SizeTruncated || !c.HasReason(ReasonSizeTruncated) {
		t.Error("expected truncated size estimate")
	}
	if c.EstimatedSize >= 110 {
		t.Errorf("EstimatedSize = %d, want partial sum", c.EstimatedSize)
	}
}

func TestDiscoverPermissionDenied(t *testing.T) {
	testutil.SkipIfRoot(t)

	f := testutil.NewFixture(t)
	f.CreatePreference("com.old.app", 200*day)
	locked := f.CreateUnreadableDir(filepath.Join(f.RelPath(f.CachesDir), "Firefox"))
	if err := os.Chmod(f.AppSupportDir, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(f.AppSupportDir, 0755) })

	engine := newTestEngine(t, f, nil)
	result := engine.Discover(context.Background(), nil)

	denied := make(map[string]bool)
	for _, p := range result.PermissionDenied {
		denied[p] = true
	}
	if !denied[f.AppSupportDir] {
		t.Errorf("PermissionDenied = %v, want %s", result.PermissionDenied, f.AppSupportDir)
	}
	if !denied[locked] {
		t.Errorf("PermissionDenied = %v, want %s", result.PermissionDenied, locked)
	}

	if _, ok := lookup(result, filepath.Join(f.PreferencesDir, "com.old.app.plist")); !ok {
		t.Error("other categories should still produce candidates")
	}
	if _, ok := lookup(result, locked); !ok {
		t.Error("unreadable cache should still be a candidate")
	}
}

func TestDiscoverPathsAreCanonicalAndUnique(t *testing.T) {
	f := testutil.NewFixture(t)
	f.CreateCache("Google/Chrome", 10)
	f.CreateCache("com.google.Chrome", 10)
	f.CreateFile(filepath.Join(f.RelPath(f.AppSupportDir), "Leftover", "a"), []byte("a"))
	f.CreatePreference("com.old.app", 200*day)
	f.CreateFile(filepath.Join(f.RelPath(f.SharedDir), "x.zip"), []byte("zip"))

	engine := newTestEngine(t, f, nil)
	result := engine.Discover(context.Background(), AllCategories)

	if len(result.Candidates) != 5 {
		t.Errorf("Discover() = %d candidates, want 5", len(result.Candidates))
	}

	seen := make(map[string]bool)
	for _, c := range result.Candidates {
		if !filepath.IsAbs(c.Path) || filepath.Clean(c.Path) != c.Path {
			t.Errorf("path %q is not absolute and clean", c.Path)
		}
		if seen[c.Path] {
			t.Errorf("duplicate path %q", c.Path)
		}
		seen[c.Path] = true
	}

	// Results merge in requested order
	if result.Candidates[0].Category != CategoryBrowserCache {
		t.Errorf("first candidate category = %v", result.Candidates[0].Category)
	}
}

func TestDiscoverReportsProgress(t *testing.T) {
	f := testutil.NewFixture(t)
	f.CreateCache("Firefox", 10)

	engine := newTestEngine(t, f, nil)
	reporter := progress.NewProgressReporter()
	engine.SetProgressReporter(reporter)

	engine.Discover(context.Background(), []Category{CategoryBrowserCache, CategorySharedInstaller})

	p := reporter.GetScanProgress()
	if p == nil || p.Phase != progress.PhaseComplete {
		t.Fatalf("final progress = %+v", p)
	}
	if p.CategoriesDone != 2 || p.CandidatesFound != 1 {
		t.Errorf("final progress = %+v", p)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	f := testutil.NewFixture(t)
	f.CreateCache("Firefox", 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestEngine(t, f, nil).Discover(ctx, nil)
	if len(result.Candidates) != 0 {
		t.Errorf("cancelled discovery returned %d candidates", len(result.Candidates))
	}
}

func TestMergePartials(t *testing.T) {
	first := &Candidate{Path: "/a", DisplayName: "first"}
	first.AddReason(ReasonBrowserCache, "cache")
	second := &Candidate{Path: "/a", DisplayName: "second"}
	second.AddReason(ReasonNoInstalledOwner, "orphan")
	second.AddReason(ReasonBrowserCache, "other")

	result := mergePartials([]*partial{
		{candidates: []*Candidate{first}, denied: []string{"/x"}},
		nil,
		{candidates: []*Candidate{second, {Path: "/b"}}, denied: []string{"/x", "/y"}},
	})

	if len(result.Candidates) != 2 {
		t.Fatalf("merged %d candidates, want 2", len(result.Candidates))
	}
	merged := result.Candidates[0]
	if merged.DisplayName != "first" {
		t.Errorf("DisplayName = %q, want first wins", merged.DisplayName)
	}
	if len(merged.Reasons) != 2 {
		t.Errorf("Reasons = %+v, want accumulated and deduplicated", merged.Reasons)
	}
	if len(result.PermissionDenied) != 2 {
		t.Errorf("PermissionDenied = %v", result.PermissionDenied)
	}
}

func TestCanonicalPath(t *testing.T) {
	f := testutil.NewFixture(t)
	realDir := f.CreateDir("real")
	f.CreateFile("real/file", []byte("x"))
	f.CreateSymlink(realDir, "link")
	finalLink := f.CreateSymlink(filepath.Join(realDir, "file"), "real/alias")

	got, err := CanonicalPath(f.Path("link/file"))
	if err != nil {
		t.Fatalf("CanonicalPath() error = %v", err)
	}
	if got != filepath.Join(realDir, "file") {
		t.Errorf("CanonicalPath() = %q, want parent symlink resolved", got)
	}

	got, _ = CanonicalPath(finalLink)
	if got != finalLink {
		t.Errorf("CanonicalPath() = %q, final component must not be followed", got)
	}

	got, _ = CanonicalPath(f.Path("real/../real/file"))
	if got != filepath.Join(realDir, "file") {
		t.Errorf("CanonicalPath() = %q, want cleaned path", got)
	}
}

func TestDiscoveryResultGroupByCategory(t *testing.T) {
	result := &DiscoveryResult{Candidates: []*Candidate{
		{Path: "/a.dmg", Category: CategorySharedInstaller},
		{Path: "/chrome", Category: CategoryBrowserCache},
		{Path: "/b.pkg", Category: CategorySharedInstaller},
	}}

	grouped := result.GroupByCategory()
	installers := grouped[CategorySharedInstaller]
	if len(installers) != 2 || installers[0].Path != "/a.dmg" || installers[1].Path != "/b.pkg" {
		t.Errorf("installers = %v, want discovery order kept", installers)
	}
	if len(grouped[CategoryBrowserCache]) != 1 || len(grouped[CategoryOrphanedPreference]) != 0 {
		t.Errorf("grouped = %v", grouped)
	}
}
