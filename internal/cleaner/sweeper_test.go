package cleaner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/internal/store"
	"github.com/fenilsonani/reclaim/internal/testutil"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeGuard struct {
	restricted map[string]bool
	excluded   map[string]bool
	sip        map[string]bool
}

func (g *fakeGuard) Classify(path string) security.Decision {
	switch {
	case g.restricted[path]:
		return security.DecisionRestricted
	case g.excluded[path]:
		return security.DecisionExcluded
	default:
		return security.DecisionAllow
	}
}

func (g *fakeGuard) FilterBatch(paths []string) (*security.BatchResult, error) {
	result := &security.BatchResult{}
	var restricted []string
	for _, p := range paths {
		switch g.Classify(p) {
		case security.DecisionRestricted:
			restricted = append(restricted, p)
		case security.DecisionExcluded:
			result.Excluded = append(result.Excluded, p)
		default:
			result.Permitted = append(result.Permitted, p)
		}
	}
	if len(restricted) > 0 {
		return nil, &security.RestrictedError{Paths: restricted}
	}
	return result, nil
}

func (g *fakeGuard) IsSystemProtected(path string) bool {
	return g.sip[path]
}

func (g *fakeGuard) HasProtectedDescendant(dir string) bool {
	for _, set := range []map[string]bool{g.restricted, g.excluded} {
		for p := range set {
			if strings.HasPrefix(p, dir+"/") {
				return true
			}
		}
	}
	return false
}

// fakeRemover deletes for real unless the path has a scripted error
type fakeRemover struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (r *fakeRemover) do(path string, remove func(string) error) error {
	r.mu.Lock()
	r.calls = append(r.calls, path)
	err := r.fail[path]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return remove(path)
}

func (r *fakeRemover) Remove(path string) error    { return r.do(path, os.Remove) }
func (r *fakeRemover) RemoveAll(path string) error { return r.do(path, os.RemoveAll) }

func (r *fakeRemover) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// panicRemover fails the test on any call
type panicRemover struct{ t *testing.T }

func (r panicRemover) Remove(path string) error {
	r.t.Errorf("Remove(%s) called", path)
	return nil
}

func (r panicRemover) RemoveAll(path string) error {
	r.t.Errorf("RemoveAll(%s) called", path)
	return nil
}

type fakeElevator struct {
	result ElevationResult
	remove bool
	// removeFirst paths are removed before the scripted result is returned,
	// like earlier batches succeeding before a later one fails
	removeFirst int
	calls       [][]string
}

func (e *fakeElevator) ElevateAndRemove(_ context.Context, paths []string) ElevationResult {
	e.calls = append(e.calls, slices.Clone(paths))
	if e.remove && e.result.Status == ElevationSucceeded {
		for _, p := range paths {
			os.RemoveAll(p)
		}
	}
	for _, p := range paths[:min(e.removeFirst, len(paths))] {
		os.RemoveAll(p)
	}
	return e.result
}

func eperm(path string) error {
	return &os.PathError{Op: "remove", Path: path, Err: syscall.EPERM}
}

func createFiles(f *testutil.TestFixture, dir string, n int) []string {
	paths := make([]string, n)
	for i := range n {
		paths[i] = f.CreateFile(filepath.Join(dir, fmt.Sprintf("file_%02d.bin", i)), []byte("payload"))
	}
	return paths
}

func newTestSweeper(guard Guard, elevator Elevator, remover Remover) *Sweeper {
	s := NewSweeper(guard, elevator)
	if remover != nil {
		s.SetRemover(remover)
	}
	return s
}

// =============================================================================
// Sweep Outcome Tests
// =============================================================================

func TestSweepEscalatesPermissionFailure(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 10)

	remover := &fakeRemover{fail: map[string]error{paths[3]: eperm(paths[3])}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}, remove: true}
	s := newTestSweeper(&fakeGuard{}, elevator, remover)

	out := s.Sweep(context.Background(), paths, Options{Workers: 3})

	if !out.Success {
		t.Fatalf("Sweep() success = false: %s", out.Message)
	}
	if out.Stats.Removed != 10 || out.Stats.Failed != 0 || out.Stats.Escalated != 1 {
		t.Errorf("Stats = %+v, want removed=10 failed=0 escalated=1", out.Stats)
	}
	if len(elevator.calls) != 1 || !slices.Equal(elevator.calls[0], []string{paths[3]}) {
		t.Errorf("elevator calls = %v, want one call for %s", elevator.calls, paths[3])
	}
	for _, p := range paths {
		f.AssertFileNotExists(p)
	}
	if !strings.Contains(out.Message, "Removed 10 of 10 items") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestSweepRestrictedBatchDeletesNothing(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Shared", 9)
	restricted := "/System/Library/CoreServices"
	selection := append(slices.Clone(paths), restricted)

	remover := &fakeRemover{}
	guard := &fakeGuard{restricted: map[string]bool{restricted: true}}
	s := newTestSweeper(guard, nil, remover)

	out := s.Sweep(context.Background(), selection, Options{})

	if out.Success {
		t.Fatal("restricted batch must not succeed")
	}
	var re *security.RestrictedError
	if !errors.As(out.Err, &re) || len(re.Paths) != 1 {
		t.Errorf("Err = %v, want *RestrictedError for one path", out.Err)
	}
	if remover.callCount() != 0 {
		t.Errorf("remover called %d times", remover.callCount())
	}
	if out.Stats.Removed != 0 || !slices.Equal(out.Stats.Restricted, []string{restricted}) {
		t.Errorf("Stats = %+v", out.Stats)
	}
	for _, p := range paths {
		f.AssertFileExists(p)
	}
	if !strings.Contains(out.Message, "Nothing was deleted") || !strings.Contains(out.RecoverySuggestion, restricted) {
		t.Errorf("Message = %q, suggestion = %q", out.Message, out.RecoverySuggestion)
	}
}

func TestSweepRealGuardBlocksSystemPath(t *testing.T) {
	f := testutil.NewFixture(t)
	file := f.CreateFile("Downloads/setup.pkg", []byte("pkg"))

	guard := security.NewGuard(security.NewPolicy(f.HomeDir), nil)
	s := newTestSweeper(guard, nil, panicRemover{t})

	out := s.Sweep(context.Background(), []string{file, "/usr/bin"}, Options{})
	if out.Success || out.Err == nil {
		t.Fatalf("Sweep() = %+v, want blocked", out)
	}
	f.AssertFileExists(file)
}

func TestSweepCancelledElevation(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 3)

	remover := &fakeRemover{fail: map[string]error{paths[0]: eperm(paths[0])}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationCancelled}}
	s := newTestSweeper(&fakeGuard{}, elevator, remover)

	out := s.Sweep(context.Background(), paths, Options{})

	if out.Success {
		t.Fatal("cancelled elevation must not report success")
	}
	if !out.Stats.ElevationCancelled || out.Stats.Failed != 1 || out.Stats.Removed != 2 {
		t.Errorf("Stats = %+v", out.Stats)
	}
	if out.Stats.Failures[0].Reason != ErrorElevationCancelled {
		t.Errorf("failure reason = %v", out.Stats.Failures[0].Reason)
	}
	if !strings.Contains(out.Message, "declined") || !strings.Contains(out.RecoverySuggestion, "approve") {
		t.Errorf("Message = %q, suggestion = %q", out.Message, out.RecoverySuggestion)
	}
	f.AssertFileExists(paths[0])
}

func TestSweepFailedElevationSurfacesMessage(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 2)

	remover := &fakeRemover{fail: map[string]error{paths[1]: eperm(paths[1])}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationFailed, Message: "helper crashed"}}
	s := newTestSweeper(&fakeGuard{}, elevator, remover)

	out := s.Sweep(context.Background(), paths, Options{})

	if out.Success || out.Stats.Failed != 1 {
		t.Fatalf("Outcome = %+v", out)
	}
	if out.Stats.ElevationMessage != "helper crashed" || !strings.Contains(out.Message, "helper crashed") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestSweepFailedElevationCountsRemovedBatches(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 3)

	fail := make(map[string]error)
	for _, p := range paths {
		fail[p] = eperm(p)
	}
	elevator := &fakeElevator{
		result:      ElevationResult{Status: ElevationFailed, Message: "sudo rm exited with status 1"},
		removeFirst: 2,
	}
	out := newTestSweeper(&fakeGuard{}, elevator, &fakeRemover{fail: fail}).Sweep(context.Background(), paths, Options{})

	if out.Success {
		t.Fatal("failed elevation must not succeed")
	}
	if out.Stats.Removed != 2 || out.Stats.Failed != 1 {
		t.Errorf("Stats = %+v, want 2 removed by earlier batches and 1 failed", out.Stats)
	}
	if out.Stats.Failures[0].Path != paths[2] || out.Stats.Failures[0].Reason != ErrorElevationFailed {
		t.Errorf("Failures = %v", out.Stats.Failures)
	}
}

func TestSweepWithoutElevator(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 1)

	remover := &fakeRemover{fail: map[string]error{paths[0]: eperm(paths[0])}}
	out := newTestSweeper(&fakeGuard{}, nil, remover).Sweep(context.Background(), paths, Options{})

	if out.Success || out.Stats.Failures[0].Reason != ErrorElevationFailed {
		t.Errorf("Outcome = %+v", out)
	}
}

func TestSweepSystemProtectedOnly(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 4)

	remover := &fakeRemover{fail: map[string]error{paths[2]: eperm(paths[2])}}
	guard := &fakeGuard{sip: map[string]bool{paths[2]: true}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}}
	s := newTestSweeper(guard, elevator, remover)

	out := s.Sweep(context.Background(), paths, Options{})

	if out.Success {
		t.Fatal("system protected failure must be reported")
	}
	if len(elevator.calls) != 0 {
		t.Error("system protected paths must never be escalated")
	}
	if out.Stats.SystemProtected != 1 || out.Stats.Failed != 1 || out.Stats.Removed != 3 {
		t.Errorf("Stats = %+v", out.Stats)
	}
	if !strings.Contains(out.Message, "protected by the operating system") {
		t.Errorf("Message = %q", out.Message)
	}
	if !strings.Contains(out.RecoverySuggestion, "Full Disk Access") {
		t.Errorf("RecoverySuggestion = %q", out.RecoverySuggestion)
	}
}

func TestSweepOutcomePriority(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 4)

	remover := &fakeRemover{fail: map[string]error{
		paths[0]: eperm(paths[0]),
		paths[1]: eperm(paths[1]),
		paths[2]: &os.PathError{Op: "remove", Path: paths[2], Err: syscall.EBUSY},
	}}
	guard := &fakeGuard{sip: map[string]bool{paths[1]: true}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationCancelled}}

	out := newTestSweeper(guard, elevator, remover).Sweep(context.Background(), paths, Options{})

	// cancelled elevation outranks system protected and generic failures
	if !strings.Contains(out.Message, "declined") {
		t.Errorf("Message = %q, want cancelled elevation reported", out.Message)
	}
	if out.Stats.Failed != 3 || out.Stats.SystemProtected != 1 || out.Stats.Removed != 1 {
		t.Errorf("Stats = %+v", out.Stats)
	}

	// without the escalation, the busy file makes it a generic failure
	f2 := testutil.NewFixture(t)
	paths2 := createFiles(f2, "Caches/app", 3)
	remover2 := &fakeRemover{fail: map[string]error{
		paths2[0]: eperm(paths2[0]),
		paths2[1]: &os.PathError{Op: "remove", Path: paths2[1], Err: syscall.EBUSY},
	}}
	guard2 := &fakeGuard{sip: map[string]bool{paths2[0]: true}}
	out2 := newTestSweeper(guard2, nil, remover2).Sweep(context.Background(), paths2, Options{})

	if strings.Contains(out2.Message, "protected by the operating system") {
		t.Errorf("mixed failures reported as system protected only: %q", out2.Message)
	}
	if !strings.Contains(out2.RecoverySuggestion, "Close the applications") {
		t.Errorf("RecoverySuggestion = %q", out2.RecoverySuggestion)
	}
}

func TestSweepEmptySelection(t *testing.T) {
	elevator := &fakeElevator{}
	s := newTestSweeper(&fakeGuard{}, elevator, panicRemover{t})

	progressCalls := 0
	out := s.Sweep(context.Background(), nil, Options{OnProgress: func(int, int) { progressCalls++ }})

	if !out.Success || out.Message != "Nothing selected." {
		t.Errorf("Outcome = %+v", out)
	}
	if progressCalls != 0 || len(elevator.calls) != 0 {
		t.Error("empty selection must not start any work")
	}
}

func TestSweepAllExcluded(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Shared", 2)
	guard := &fakeGuard{excluded: map[string]bool{paths[0]: true, paths[1]: true}}

	live := newTestSweeper(guard, nil, panicRemover{t}).Sweep(context.Background(), paths, Options{})
	if !live.Success || !strings.HasPrefix(live.Message, "Nothing to remove") || live.Stats.Skipped != 2 {
		t.Errorf("live outcome = %+v", live)
	}

	dry := newTestSweeper(guard, nil, panicRemover{t}).Sweep(context.Background(), paths, Options{DryRun: true})
	if !dry.Success || !strings.HasPrefix(dry.Message, "Dry run: nothing would be removed") {
		t.Errorf("dry-run outcome = %+v", dry)
	}
	if dry.Message == live.Message {
		t.Error("dry-run and live messages should differ")
	}
}

func TestSweepCancelledContext(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Shared", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestSweeper(&fakeGuard{}, nil, panicRemover{t}).Sweep(ctx, paths, Options{})
	if out.Success || !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Outcome = %+v", out)
	}
	for _, p := range paths {
		f.AssertFileExists(p)
	}
}

// =============================================================================
// Dry Run Tests
// =============================================================================

func TestSweepDryRunNeverDeletes(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 5)
	dir := f.CreateCache("com.example.cache", 64)
	selection := append(slices.Clone(paths), dir)

	guard := &fakeGuard{excluded: map[string]bool{paths[4]: true}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}}
	out := newTestSweeper(guard, elevator, panicRemover{t}).Sweep(context.Background(), selection, Options{DryRun: true})

	if !out.Success || !out.DryRun {
		t.Fatalf("Outcome = %+v", out)
	}
	if !strings.HasPrefix(out.Message, "Dry run: selected 5 of 5 items") {
		t.Errorf("Message = %q", out.Message)
	}
	if len(elevator.calls) != 0 {
		t.Error("dry run must not call the elevator")
	}
	for _, p := range selection {
		f.AssertFileExists(p)
	}
	f.AssertFileExists(filepath.Join(dir, "data_0"))
}

func TestSweepDryRunMatchesLivePartition(t *testing.T) {
	testutil.SkipIfRoot(t)

	build := func() (*testutil.TestFixture, []string, *fakeGuard) {
		f := testutil.NewFixture(t)
		paths := createFiles(f, "Caches/app", 3)
		locked := f.CreateReadOnlyDir("Caches/locked")
		guard := &fakeGuard{excluded: map[string]bool{paths[0]: true}}
		return f, append(paths, locked), guard
	}

	_, dryPaths, dryGuard := build()
	dry := newTestSweeper(dryGuard, nil, panicRemover{t}).Sweep(context.Background(), dryPaths, Options{DryRun: true})

	liveFixture, livePaths, liveGuard := build()
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}}
	live := newTestSweeper(liveGuard, elevator, nil).Sweep(context.Background(), livePaths, Options{})

	if dry.Stats.Units != live.Stats.Units || dry.Stats.Skipped != live.Stats.Skipped ||
		dry.Stats.Escalated != live.Stats.Escalated || dry.Stats.Removed != live.Stats.Removed {
		t.Errorf("dry-run stats %+v differ from live %+v", dry.Stats, live.Stats)
	}
	if live.Stats.Escalated != 1 {
		t.Errorf("Escalated = %d, want the read-only entry escalated", live.Stats.Escalated)
	}
	if !strings.Contains(dry.Message, "would need administrator approval") {
		t.Errorf("dry-run Message = %q", dry.Message)
	}
	liveFixture.AssertFileExists(livePaths[0])
}

func TestSweepDryRunPredictsNestedPermissionFailure(t *testing.T) {
	testutil.SkipIfRoot(t)

	build := func() string {
		f := testutil.NewFixture(t)
		dir := f.CreateDir("Caches/app")
		f.CreateFile("Caches/app/top.log", []byte("t"))
		f.CreateReadOnlyDir("Caches/app/sub/inner")
		return dir
	}

	dry := newTestSweeper(&fakeGuard{}, nil, panicRemover{t}).Sweep(context.Background(), []string{build()}, Options{DryRun: true})

	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}}
	live := newTestSweeper(&fakeGuard{}, elevator, nil).Sweep(context.Background(), []string{build()}, Options{})

	if dry.Stats.Escalated != 1 || live.Stats.Escalated != 1 {
		t.Errorf("escalated dry=%d live=%d, want the sub directory escalated in both", dry.Stats.Escalated, live.Stats.Escalated)
	}
	if !strings.Contains(dry.Message, "would need administrator approval") {
		t.Errorf("dry-run Message = %q", dry.Message)
	}
}

// =============================================================================
// Enumeration Tests
// =============================================================================

func TestSweepDirectoryChildrenAreUnits(t *testing.T) {
	f := testutil.NewFixture(t)
	dir := f.CreateDir("Library/Application Support/OldApp")
	keep := f.CreateFile("Library/Application Support/OldApp/keep.db", []byte("k"))
	f.CreateFile("Library/Application Support/OldApp/a.log", []byte("a"))
	f.CreateFile("Library/Application Support/OldApp/nested/b.log", []byte("b"))

	guard := &fakeGuard{excluded: map[string]bool{keep: true}}
	out := newTestSweeper(guard, nil, nil).Sweep(context.Background(), []string{dir}, Options{})

	if !out.Success {
		t.Fatalf("Sweep() = %+v", out)
	}
	if out.Stats.Units != 3 || out.Stats.Removed != 2 || out.Stats.Skipped != 1 {
		t.Errorf("Stats = %+v, want 3 units, 2 removed, 1 skipped", out.Stats)
	}
	f.AssertFileExists(keep)
	f.AssertFileNotExists(filepath.Join(dir, "nested"))
	f.AssertFileExists(dir)
}

func TestSweepKeepsExcludedDescendant(t *testing.T) {
	f := testutil.NewFixture(t)
	chrome := f.CreateDir("home/Library/Caches/Chrome")
	keep := f.CreateFile("home/Library/Caches/Chrome/Default/keep.db", []byte("keep"))
	history := f.CreateFile("home/Library/Caches/Chrome/Default/History", []byte("h"))
	f.CreateFile("home/Library/Caches/Chrome/Default/Cache/data_0", []byte("d"))
	f.CreateFile("home/Library/Caches/Chrome/GPUCache/index", []byte("g"))

	exclusions := config.NewExclusionStore([]string{"~/Library/Caches/Chrome/Default/keep.db"}, f.HomeDir)
	guard := security.NewGuard(security.NewPolicy(f.HomeDir), exclusions)
	if guard.Classify(keep) != security.DecisionExcluded {
		t.Fatalf("Classify(%s) = %v, want excluded", keep, guard.Classify(keep))
	}

	out := newTestSweeper(guard, nil, nil).Sweep(context.Background(), []string{chrome}, Options{})

	if !out.Success {
		t.Fatalf("Sweep() = %+v", out)
	}
	if out.Stats.Units != 4 || out.Stats.Removed != 3 || out.Stats.Skipped != 1 {
		t.Errorf("Stats = %+v, want 4 units, 3 removed, 1 skipped", out.Stats)
	}
	f.AssertFileExists(keep)
	f.AssertFileNotExists(history)
	f.AssertFileNotExists(filepath.Join(chrome, "Default", "Cache"))
	f.AssertFileNotExists(filepath.Join(chrome, "GPUCache"))
}

func TestSweepPrunesNestedContainersDeepestFirst(t *testing.T) {
	f := testutil.NewFixture(t)
	app := f.CreateDir("home/Library/Application Support/OldApp")
	f.CreateFile("home/Library/Application Support/OldApp/state/session.json", []byte("s"))
	f.CreateFile("home/Library/Application Support/OldApp/app.log", []byte("l"))

	// The kept item no longer exists, so everything around it goes
	exclusions := config.NewExclusionStore([]string{"~/Library/Application Support/OldApp/state/keep.db"}, f.HomeDir)
	guard := security.NewGuard(security.NewPolicy(f.HomeDir), exclusions)

	out := newTestSweeper(guard, nil, nil).Sweep(context.Background(), []string{app}, Options{})

	if !out.Success || out.Stats.Units != 2 || out.Stats.Removed != 2 {
		t.Fatalf("Outcome = %+v", out)
	}
	f.AssertFileNotExists(app)
}

func TestSweepUnreadableProtectedDirectoryIsNotEscalated(t *testing.T) {
	testutil.SkipIfRoot(t)

	f := testutil.NewFixture(t)
	dir := f.CreateDir("Library/Caches/Chrome")
	locked := f.CreateUnreadableDir("Library/Caches/Chrome/Default")
	keep := filepath.Join(locked, "keep.db")

	guard := &fakeGuard{excluded: map[string]bool{keep: true}}
	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}, remove: true}
	out := newTestSweeper(guard, elevator, nil).Sweep(context.Background(), []string{dir}, Options{})

	if len(elevator.calls) != 0 {
		t.Errorf("elevator calls = %v, a directory holding kept items must not be removed recursively", elevator.calls)
	}
	if out.Success || out.Stats.Failed != 1 {
		t.Errorf("Outcome = %+v, want the unreadable directory failed", out)
	}
	f.AssertFileExists(locked)
}

func TestSweepPrunesEmptiedContainer(t *testing.T) {
	f := testutil.NewFixture(t)
	dir := f.CreateCache("com.google.Chrome", 128)
	f.CreateFile(f.RelPath(filepath.Join(dir, "Cache_Data", "index")), []byte("i"))

	out := newTestSweeper(&fakeGuard{}, nil, nil).Sweep(context.Background(), []string{dir}, Options{})

	if !out.Success || out.Stats.Units != 2 || out.Stats.Removed != 2 {
		t.Fatalf("Outcome = %+v", out)
	}
	f.AssertFileNotExists(dir)
}

func TestSweepEmptyDirectoryIsUnit(t *testing.T) {
	f := testutil.NewFixture(t)
	dir := f.CreateDir("Library/Application Support/Empty")

	out := newTestSweeper(&fakeGuard{}, nil, nil).Sweep(context.Background(), []string{dir}, Options{})
	if !out.Success || out.Stats.Units != 1 || out.Stats.Removed != 1 {
		t.Errorf("Outcome = %+v", out)
	}
	f.AssertFileNotExists(dir)
}

func TestSweepMissingFileCountsAsRemoved(t *testing.T) {
	f := testutil.NewFixture(t)
	gone := f.Path("Shared/already-gone.dmg")

	out := newTestSweeper(&fakeGuard{}, nil, nil).Sweep(context.Background(), []string{gone}, Options{})
	if !out.Success || out.Stats.Removed != 1 || out.Stats.Failed != 0 {
		t.Errorf("Outcome = %+v", out)
	}
}

func TestSweepUnreadableDirectoryEscalates(t *testing.T) {
	testutil.SkipIfRoot(t)

	f := testutil.NewFixture(t)
	dir := f.CreateUnreadableDir("Library/Application Support/Locked")

	elevator := &fakeElevator{result: ElevationResult{Status: ElevationSucceeded}}
	out := newTestSweeper(&fakeGuard{}, elevator, panicRemover{t}).Sweep(context.Background(), []string{dir}, Options{})

	if len(elevator.calls) != 1 || !slices.Equal(elevator.calls[0], []string{dir}) {
		t.Errorf("elevator calls = %v, want the unreadable directory", elevator.calls)
	}
	if !out.Success || out.Stats.Removed != 1 {
		t.Errorf("Outcome = %+v", out)
	}
}

func TestSweepRefusesSpecialFiles(t *testing.T) {
	f := testutil.NewFixture(t)
	fifo := f.Path("Shared/pipe")
	if err := os.MkdirAll(filepath.Dir(fifo), 0755); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Mkfifo(fifo, 0644); err != nil {
		t.Skipf("mkfifo not supported: %v", err)
	}

	out := newTestSweeper(&fakeGuard{}, nil, panicRemover{t}).Sweep(context.Background(), []string{fifo}, Options{})
	if out.Success || out.Stats.Failed != 1 || out.Stats.Failures[0].Reason != ErrorInvalidPath {
		t.Errorf("Outcome = %+v", out)
	}
	f.AssertFileExists(fifo)
}

func TestSweepPerUnitRestrictionSkips(t *testing.T) {
	f := testutil.NewFixture(t)
	dir := f.CreateDir("Caches/mixed")
	bad := f.CreateFile("Caches/mixed/owned-by-root", []byte("r"))
	f.CreateFile("Caches/mixed/ok", []byte("o"))

	guard := &fakeGuard{restricted: map[string]bool{bad: true}}
	out := newTestSweeper(guard, nil, nil).Sweep(context.Background(), []string{dir}, Options{})

	if !out.Success || out.Stats.Skipped != 1 || out.Stats.Removed != 1 {
		t.Errorf("Outcome = %+v, want per-unit restriction skipped without abort", out)
	}
	if !slices.Equal(out.Stats.Restricted, []string{bad}) {
		t.Errorf("Restricted = %v, want %s", out.Stats.Restricted, bad)
	}
	if !strings.Contains(out.Message, "1 skipped (1 protected)") {
		t.Errorf("Message = %q", out.Message)
	}
	f.AssertFileExists(bad)
}

func TestSweepExcludedOnlySkipsAreNotProtected(t *testing.T) {
	f := testutil.NewFixture(t)
	dir := f.CreateDir("Caches/mixed")
	keep := f.CreateFile("Caches/mixed/keep", []byte("k"))
	f.CreateFile("Caches/mixed/ok", []byte("o"))

	guard := &fakeGuard{excluded: map[string]bool{keep: true}}
	out := newTestSweeper(guard, nil, nil).Sweep(context.Background(), []string{dir}, Options{})

	if len(out.Stats.Restricted) != 0 || strings.Contains(out.Message, "protected") {
		t.Errorf("Outcome = %+v, excluded items are not protected items", out)
	}
}

// =============================================================================
// Progress and Journal Tests
// =============================================================================

func TestSweepReportsProgress(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 6)
	dir := f.CreateCache("com.example", 8)
	f.CreateFile(f.RelPath(filepath.Join(dir, "extra")), []byte("x"))

	var mu sync.Mutex
	var lastCompleted, lastTotal, calls int
	opts := Options{Workers: 2, OnProgress: func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if completed > total {
			t.Errorf("completed %d > total %d", completed, total)
		}
		if completed >= lastCompleted {
			lastCompleted, lastTotal = completed, total
		}
	}}

	out := newTestSweeper(&fakeGuard{}, nil, nil).Sweep(context.Background(), append(paths, dir), opts)

	if !out.Success || out.Stats.Units != 8 {
		t.Fatalf("Outcome = %+v", out)
	}
	if calls == 0 || lastCompleted != 8 || lastTotal != 8 {
		t.Errorf("progress final = %d/%d after %d calls, want 8/8", lastCompleted, lastTotal, calls)
	}
}

func TestSweepWritesJournal(t *testing.T) {
	f := testutil.NewFixture(t)
	paths := createFiles(f, "Caches/app", 2)

	journal, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	remover := &fakeRemover{fail: map[string]error{
		paths[1]: &os.PathError{Op: "remove", Path: paths[1], Err: syscall.EBUSY},
	}}
	s := newTestSweeper(&fakeGuard{}, nil, remover)
	s.SetJournal(journal)

	out := s.Sweep(context.Background(), paths, Options{SelectedBytes: 14})

	records, err := journal.ListSweeps(0)
	if err != nil || len(records) != 1 {
		t.Fatalf("ListSweeps() = %v, %v", records, err)
	}
	rec, err := journal.GetSweep(records[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Message != out.Message || rec.Removed != 1 || rec.Failed != 1 || rec.BytesSelected != 14 {
		t.Errorf("journal record = %+v", rec)
	}
	if len(rec.Failures) != 1 || rec.Failures[0].Path != paths[1] || rec.Failures[0].Reason != ErrorFileInUse.String() {
		t.Errorf("journal failures = %+v", rec.Failures)
	}
}

func TestDefaultWorkers(t *testing.T) {
	if DefaultWorkers() < 2 {
		t.Errorf("DefaultWorkers() = %d, want at least 2", DefaultWorkers())
	}
}
