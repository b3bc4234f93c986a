// Package cleaner executes approved sweeps: it routes every deletable unit
// through the deletion guard, removes units on a bounded worker pool,
// escalates permission failures once per sweep and reports a single
// outcome.
package cleaner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fenilsonani/reclaim/internal/progress"
	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Guard is the part of *security.Guard a sweep depends on
type Guard interface {
	Classify(path string) security.Decision
	FilterBatch(paths []string) (*security.BatchResult, error)
	IsSystemProtected(path string) bool
	HasProtectedDescendant(dir string) bool
}

// forgetter is implemented by guards that cache per-path lookups
type forgetter interface {
	Forget(path string)
}

// Remover performs deletions. The default uses os.Remove and os.RemoveAll.
type Remover interface {
	Remove(path string) error
	RemoveAll(path string) error
}

type osRemover struct{}

func (osRemover) Remove(path string) error    { return os.Remove(path) }
func (osRemover) RemoveAll(path string) error { return os.RemoveAll(path) }

// Journal records finished sweeps
type Journal interface {
	RecordSweep(rec *store.SweepRecord) (string, error)
}

// Options control a single sweep
type Options struct {
	DryRun  bool
	Workers int // 0 means DefaultWorkers()
	// OnProgress calls are serialized and never report fewer completed
	// units than an earlier call.
	OnProgress    progress.Callback
	SelectedBytes int64 // journaled only
}

// Stats are the final counters of a sweep
type Stats struct {
	Selected           int
	Units              int
	Removed            int
	Skipped            int
	Failed             int
	Escalated          int
	SystemProtected    int
	ElevationCancelled bool
	ElevationMessage   string
	// Restricted lists the restricted paths: the ones that blocked the
	// batch, or units skipped because they are restricted.
	Restricted []string
	Failures           []*DeletionError
}

// Outcome is the one result a sweep produces
type Outcome struct {
	Success            bool
	DryRun             bool
	Message            string
	RecoverySuggestion string
	Stats              Stats
	Err                error
}

// DefaultWorkers is the pool size used when Options.Workers is zero
func DefaultWorkers() int {
	return max(2, runtime.NumCPU())
}

// Sweeper deletes approved selections
type Sweeper struct {
	guard            Guard
	elevator         Elevator
	remover          Remover
	perms            *PermissionManager
	journal          Journal
	progressReporter *progress.ProgressReporter
	logger           zerolog.Logger
	now              func() time.Time
}

// NewSweeper creates a sweeper. elevator may be nil, in which case
// permission failures that need administrator rights are reported as
// failures.
func NewSweeper(guard Guard, elevator Elevator) *Sweeper {
	return &Sweeper{
		guard:    guard,
		elevator: elevator,
		remover:  osRemover{},
		perms:    NewPermissionManager(),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
}

// SetRemover replaces the filesystem remover
func (s *Sweeper) SetRemover(r Remover) {
	s.remover = r
}

// SetJournal sets where finished sweeps are recorded
func (s *Sweeper) SetJournal(j Journal) {
	s.journal = j
}

// SetLogger sets the sweep logger
func (s *Sweeper) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "sweep").Logger()
}

// SetProgressReporter sets the reporter that receives sweep phases
func (s *Sweeper) SetProgressReporter(pr *progress.ProgressReporter) {
	s.progressReporter = pr
}

// unit is one deletable entry. container is the selected directory it was
// enumerated from, empty for top-level units.
type unit struct {
	path      string
	container string
	isDir     bool
}

// sweepState holds every accumulator shared by the workers
type sweepState struct {
	mu        sync.Mutex
	units     int
	removed   int
	skipped   int
	restrict  []string
	escalate  []unit
	failures  []*DeletionError
	remaining map[string]int
}

func newSweepState() *sweepState {
	return &sweepState{remaining: make(map[string]int)}
}

// track adds n units; units enumerated from container are counted
// against it for pruning
func (st *sweepState) track(container string, n int) {
	st.mu.Lock()
	st.units += n
	if container != "" {
		st.remaining[container] += n
	}
	st.mu.Unlock()
}

func (st *sweepState) markRemoved(u unit) {
	st.mu.Lock()
	st.removed++
	if u.container != "" {
		st.remaining[u.container]--
	}
	st.mu.Unlock()
}

func (st *sweepState) markSkipped() {
	st.mu.Lock()
	st.skipped++
	st.mu.Unlock()
}

func (st *sweepState) markRestricted(path string) {
	st.mu.Lock()
	st.skipped++
	st.restrict = append(st.restrict, path)
	st.mu.Unlock()
}

func (st *sweepState) markEscalate(u unit) {
	st.mu.Lock()
	st.escalate = append(st.escalate, u)
	st.mu.Unlock()
}

func (st *sweepState) markFailed(err *DeletionError) {
	st.mu.Lock()
	st.failures = append(st.failures, err)
	st.mu.Unlock()
}

// Sweep removes selected (or, in dry-run mode, predicts the removal).
// It always returns exactly one outcome. ctx is honored only before
// deletion starts; a started sweep runs to completion.
func (s *Sweeper) Sweep(ctx context.Context, selected []string, opts Options) *Outcome {
	start := s.now()

	out := s.run(ctx, selected, opts)
	out.DryRun = opts.DryRun

	s.reportPhase(progress.PhaseComplete, out.Stats.Units, out.Stats.Units, opts.DryRun, start)
	s.record(start, selected, opts, out)

	s.logger.Info().
		Bool("dry_run", opts.DryRun).
		Bool("success", out.Success).
		Int("selected", out.Stats.Selected).
		Int("removed", out.Stats.Removed).
		Int("skipped", out.Stats.Skipped).
		Int("failed", out.Stats.Failed).
		Int("escalated", out.Stats.Escalated).
		Dur("elapsed", s.now().Sub(start)).
		Msg(out.Message)

	return out
}

func (s *Sweeper) run(ctx context.Context, selected []string, opts Options) *Outcome {
	if len(selected) == 0 {
		return &Outcome{Success: true, Message: "Nothing selected."}
	}

	start := s.now()
	stats := Stats{Selected: len(selected)}

	// Filtering
	s.reportPhase(progress.PhaseFiltering, 0, 0, opts.DryRun, start)
	batch, err := s.guard.FilterBatch(selected)
	if err != nil {
		var restricted *security.RestrictedError
		if errors.As(err, &restricted) {
			return restrictedOutcome(restricted, stats, opts.DryRun)
		}
		return &Outcome{
			Message: fmt.Sprintf("Sweep could not start: %v", err),
			Stats:   stats,
			Err:     err,
		}
	}

	stats.Skipped = len(batch.Excluded)
	if len(batch.Permitted) == 0 {
		return nothingToDo(stats, opts.DryRun)
	}

	if err := ctx.Err(); err != nil {
		return &Outcome{
			Message:            "Sweep cancelled before anything was deleted.",
			RecoverySuggestion: "Run the sweep again to remove the selected items.",
			Stats:              stats,
			Err:                err,
		}
	}

	var phase atomic.Value
	phase.Store(progress.PhaseEnumerating)
	tracker := progress.NewTracker(progress.Ordered(func(completed, total int) {
		if opts.OnProgress != nil {
			opts.OnProgress(completed, total)
		}
		s.reportPhase(phase.Load().(progress.Phase), completed, total, opts.DryRun, start)
	}))

	st := newSweepState()

	// Enumerating
	units := s.enumerate(batch.Permitted, st, tracker)

	// Deleting
	phase.Store(progress.PhaseDeleting)
	s.deleteUnits(units, st, tracker, opts)

	// Escalating
	phase.Store(progress.PhaseEscalating)
	s.escalate(ctx, st, &stats, opts.DryRun)

	if !opts.DryRun {
		s.pruneContainers(st)
	}

	// Aggregating
	return aggregate(st, stats, opts.DryRun)
}

// enumerate expands each selected path into units. A directory's immediate
// children become units so each entry gets its own guard decision; an
// empty directory is a unit itself.
func (s *Sweeper) enumerate(paths []string, st *sweepState, tracker *progress.Tracker) []unit {
	var units []unit

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil || !info.IsDir() {
			// Missing entries become units too; they count as removed
			units = append(units, unit{path: path})
			st.track("", 1)
			tracker.AddTotal(1)
			continue
		}

		units = s.expand(path, "", units, st, tracker)
	}

	return units
}

// expand appends the units of dir, which was enumerated from container.
// A child directory holding excluded or restricted items further down is
// never removed as a whole: it is expanded in turn, so only its
// unprotected entries become units.
func (s *Sweeper) expand(dir, container string, units []unit, st *sweepState, tracker *progress.Tracker) []unit {
	entries, err := os.ReadDir(dir)
	if err != nil {
		u := unit{path: dir, container: container, isDir: true}
		st.track(container, 1)
		tracker.AddTotal(1)
		if s.guard.HasProtectedDescendant(dir) {
			// Escalation removes recursively, which would reach the protected items
			delErr := CategorizeError(dir, err)
			delErr.NeedsSudo = false
			st.markFailed(delErr)
		} else {
			s.handleError(st, u, err)
		}
		tracker.Advance(1)
		return units
	}

	if len(entries) == 0 {
		st.track(container, 1)
		tracker.AddTotal(1)
		return append(units, unit{path: dir, container: container, isDir: true})
	}

	n := 0
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() && s.guard.Classify(child) == security.DecisionAllow && s.guard.HasProtectedDescendant(child) {
			units = s.expand(child, dir, units, st, tracker)
			continue
		}
		units = append(units, unit{path: child, container: dir, isDir: entry.IsDir()})
		n++
	}
	st.track(dir, n)
	tracker.AddTotal(n)

	return units
}

func (s *Sweeper) deleteUnits(units []unit, st *sweepState, tracker *progress.Tracker, opts Options) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for _, u := range units {
		// Background never cancels, so Acquire only blocks until a slot frees
		_ = sem.Acquire(context.Background(), 1)
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer tracker.Advance(1)
			defer func() {
				if r := recover(); r != nil {
					st.markFailed(&DeletionError{
						Path:     u.path,
						Reason:   ErrorUnknown,
						Original: fmt.Errorf("panic while deleting: %v", r),
					})
				}
			}()

			s.processUnit(st, u, opts.DryRun)
		}()
	}

	wg.Wait()
}

func (s *Sweeper) processUnit(st *sweepState, u unit, dryRun bool) {
	switch s.guard.Classify(u.path) {
	case security.DecisionRestricted:
		s.logger.Debug().Str("path", u.path).Msg("skipped: restricted")
		st.markRestricted(u.path)
		return
	case security.DecisionExcluded:
		s.logger.Debug().Str("path", u.path).Msg("skipped: excluded")
		st.markSkipped()
		return
	}

	if special, err := IsSpecialFile(u.path); special {
		st.markFailed(&DeletionError{
			Path:     u.path,
			Reason:   ErrorInvalidPath,
			Original: fmt.Errorf("refusing to delete special file: %w", err),
		})
		return
	}

	if dryRun {
		if err := s.predictRemoval(u); err != nil {
			s.handleError(st, u, err)
			return
		}
		st.markRemoved(u)
		return
	}

	var err error
	if u.isDir {
		err = s.remover.RemoveAll(u.path)
	} else {
		err = s.remover.Remove(u.path)
	}
	if err != nil {
		s.handleError(st, u, err)
		return
	}
	s.forget(u.path)
	st.markRemoved(u)
}

// predictRemoval reports the error a live removal of u would most likely
// hit. A directory is removed entry by entry, so every entry below it must
// be removable too.
func (s *Sweeper) predictRemoval(u unit) error {
	denied := func(path string) error {
		return &os.PathError{Op: "remove", Path: path, Err: syscall.EACCES}
	}

	if !u.isDir {
		if _, err := os.Lstat(u.path); err != nil {
			return err
		}
		if s.perms.RequiresElevation(u.path) {
			return denied(u.path)
		}
		return nil
	}

	return filepath.WalkDir(u.path, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if s.perms.RequiresElevation(path) {
			return denied(path)
		}
		return nil
	})
}

func (s *Sweeper) forget(path string) {
	if f, ok := s.guard.(forgetter); ok {
		f.Forget(path)
	}
}

// handleError sorts a unit failure into removed (already gone), the
// escalation set, or the failure set.
func (s *Sweeper) handleError(st *sweepState, u unit, err error) {
	delErr := CategorizeError(u.path, err)

	switch delErr.Reason {
	case ErrorFileNotFound:
		st.markRemoved(u)
	case ErrorPermissionDenied:
		if s.guard.IsSystemProtected(u.path) {
			delErr.Reason = ErrorSystemProtected
			delErr.NeedsSudo = false
			st.markFailed(delErr)
			return
		}
		st.markEscalate(u)
	default:
		s.logger.Debug().Err(err).Str("path", u.path).Msg("delete failed")
		st.markFailed(delErr)
	}
}

// escalate issues one elevation request for every escalatable unit
func (s *Sweeper) escalate(ctx context.Context, st *sweepState, stats *Stats, dryRun bool) {
	st.mu.Lock()
	pending := slices.Clone(st.escalate)
	st.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	stats.Escalated = len(pending)

	if dryRun {
		for _, u := range pending {
			st.markRemoved(u)
		}
		return
	}

	slices.SortFunc(pending, func(a, b unit) int { return cmp.Compare(a.path, b.path) })
	paths := make([]string, len(pending))
	for i, u := range pending {
		paths[i] = u.path
	}

	start := s.now()
	s.reportPhase(progress.PhaseEscalating, 0, len(paths), false, start)

	result := ElevationResult{Status: ElevationFailed, Message: "no privileged deletion helper is available"}
	if s.elevator != nil {
		result = s.elevator.ElevateAndRemove(context.WithoutCancel(ctx), paths)
	}

	s.logger.Info().
		Int("paths", len(paths)).
		Stringer("status", result.Status).
		Str("message", result.Message).
		Msg("elevation finished")

	switch result.Status {
	case ElevationSucceeded:
		for _, u := range pending {
			st.markRemoved(u)
		}
	case ElevationCancelled:
		stats.ElevationCancelled = true
		for _, u := range s.stillPresent(st, pending) {
			st.markFailed(&DeletionError{
				Path:     u.path,
				Reason:   ErrorElevationCancelled,
				Original: errors.New("administrator approval declined"),
			})
		}
	default:
		stats.ElevationMessage = result.Message
		for _, u := range s.stillPresent(st, pending) {
			st.markFailed(&DeletionError{
				Path:      u.path,
				Reason:    ErrorElevationFailed,
				Original:  errors.New(result.Message),
				NeedsSudo: true,
			})
		}
	}
}

// stillPresent marks the units a failed elevation removed anyway (batches
// before the failing one) as removed and returns the rest
func (s *Sweeper) stillPresent(st *sweepState, pending []unit) []unit {
	var left []unit
	for _, u := range pending {
		if _, err := os.Lstat(u.path); errors.Is(err, fs.ErrNotExist) {
			s.forget(u.path)
			st.markRemoved(u)
			continue
		}
		left = append(left, u)
	}
	return left
}

// pruneContainers removes enumerated directories whose every unit was
// removed, deepest first. It is best effort and does not affect the counts.
func (s *Sweeper) pruneContainers(st *sweepState) {
	st.mu.Lock()
	var emptied []string
	for container, left := range st.remaining {
		if left <= 0 {
			emptied = append(emptied, container)
		}
	}
	st.mu.Unlock()

	slices.SortFunc(emptied, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), cmp.Compare(a, b))
	})

	for _, container := range emptied {
		if s.guard.Classify(container) != security.DecisionAllow {
			continue
		}
		if err := s.remover.Remove(container); err != nil {
			s.logger.Debug().Err(err).Str("path", container).Msg("container not pruned")
		}
	}
}

func aggregate(st *sweepState, stats Stats, dryRun bool) *Outcome {
	st.mu.Lock()
	stats.Units = st.units
	stats.Removed = st.removed
	stats.Skipped += st.skipped
	stats.Restricted = slices.Clone(st.restrict)
	stats.Failures = slices.Clone(st.failures)
	st.mu.Unlock()

	slices.Sort(stats.Restricted)

	slices.SortFunc(stats.Failures, func(a, b *DeletionError) int { return cmp.Compare(a.Path, b.Path) })
	stats.Failed = len(stats.Failures)

	inUse := false
	for _, f := range stats.Failures {
		switch f.Reason {
		case ErrorSystemProtected:
			stats.SystemProtected++
		case ErrorFileInUse:
			inUse = true
		}
	}

	summary := countSummary(stats, dryRun)
	out := &Outcome{Stats: stats}

	switch {
	case stats.ElevationCancelled:
		declined := countReason(stats.Failures, ErrorElevationCancelled)
		out.Message = fmt.Sprintf("%s Administrator approval was declined for %s.", summary, items(declined))
		out.RecoverySuggestion = "Run the sweep again and approve the administrator prompt, or add these items to the exclusion list."

	case stats.Failed > 0 && stats.SystemProtected == stats.Failed:
		out.Message = fmt.Sprintf("%s %s protected by the operating system and cannot be removed.",
			summary, isAre(stats.SystemProtected))
		out.RecoverySuggestion = "Grant Full Disk Access to your terminal in System Settings > Privacy & Security, or add these items to the exclusion list."

	case stats.Failed > 0:
		out.Message = summary
		if stats.ElevationMessage != "" {
			out.Message += " Privileged removal failed: " + stats.ElevationMessage + "."
		}
		switch {
		case inUse:
			out.RecoverySuggestion = "Close the applications using these files and try again."
		case stats.ElevationMessage != "":
			out.RecoverySuggestion = "Make sure sudo or pkexec is available, then run the sweep again."
		default:
			out.RecoverySuggestion = "Review the failed paths, then try again or add them to the exclusion list."
		}

	default:
		out.Success = true
		out.Message = summary
		if dryRun && stats.Escalated > 0 {
			out.Message += fmt.Sprintf(" %s would need administrator approval.", items(stats.Escalated))
		}
	}

	return out
}

func restrictedOutcome(err *security.RestrictedError, stats Stats, dryRun bool) *Outcome {
	stats.Restricted = slices.Clone(err.Paths)

	msg := fmt.Sprintf("Sweep blocked: %s protected and cannot be removed. Nothing was deleted.",
		selectedIsAre(len(err.Paths)))
	if dryRun {
		msg = "Dry run: " + msg
	}

	suggestion := fmt.Sprintf("Deselect %s and try again.", err.Paths[0])
	if n := len(err.Paths) - 1; n > 0 {
		suggestion = fmt.Sprintf("Deselect %s and %d other protected %s, then try again.", err.Paths[0], n, plural(n, "item"))
	}

	return &Outcome{
		Message:            msg,
		RecoverySuggestion: suggestion,
		Stats:              stats,
		Err:                err,
	}
}

func nothingToDo(stats Stats, dryRun bool) *Outcome {
	msg := fmt.Sprintf("Nothing to remove: all %s on the exclusion list.", selectedIsAre(stats.Selected))
	if dryRun {
		msg = fmt.Sprintf("Dry run: nothing would be removed, all %s on the exclusion list.", selectedIsAre(stats.Selected))
	}
	return &Outcome{
		Success:            true,
		Message:            msg,
		RecoverySuggestion: "Edit the exclusion list to allow these items to be removed.",
		Stats:              stats,
	}
}

func countSummary(stats Stats, dryRun bool) string {
	skipped := fmt.Sprintf("%d skipped", stats.Skipped)
	if n := len(stats.Restricted); n > 0 {
		skipped += fmt.Sprintf(" (%d protected)", n)
	}
	if dryRun {
		return fmt.Sprintf("Dry run: selected %d of %s, %s, %d failed.",
			stats.Removed, items(stats.Units), skipped, stats.Failed)
	}
	return fmt.Sprintf("Removed %d of %s, %s, %d failed.",
		stats.Removed, items(stats.Units), skipped, stats.Failed)
}

func countReason(errs []*DeletionError, reason ErrorReason) int {
	n := 0
	for _, e := range errs {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func items(n int) string {
	return fmt.Sprintf("%d %s", n, plural(n, "item"))
}

func isAre(n int) string {
	if n == 1 {
		return "1 item is"
	}
	return fmt.Sprintf("%d items are", n)
}

func selectedIsAre(n int) string {
	if n == 1 {
		return "1 selected item is"
	}
	return fmt.Sprintf("%d selected items are", n)
}

func (s *Sweeper) reportPhase(phase progress.Phase, completed, total int, dryRun bool, start time.Time) {
	if s.progressReporter == nil {
		return
	}
	s.progressReporter.UpdateSweepProgress(&progress.SweepProgress{
		Phase:     phase,
		Completed: completed,
		Total:     total,
		DryRun:    dryRun,
		StartTime: start,
	})
}

func (s *Sweeper) record(start time.Time, selected []string, opts Options, out *Outcome) {
	if s.journal == nil {
		return
	}

	rec := &store.SweepRecord{
		StartedAt:          start,
		FinishedAt:         s.now(),
		DryRun:             opts.DryRun,
		Success:            out.Success,
		Message:            out.Message,
		RecoverySuggestion: out.RecoverySuggestion,
		Selected:           len(selected),
		Removed:            out.Stats.Removed,
		Skipped:            out.Stats.Skipped,
		Failed:             out.Stats.Failed,
		Escalated:          out.Stats.Escalated,
		BytesSelected:      opts.SelectedBytes,
		Paths:              selected,
	}
	for _, f := range out.Stats.Failures {
		detail := ""
		if f.Original != nil {
			detail = f.Original.Error()
		}
		rec.Failures = append(rec.Failures, store.FailureRecord{Path: f.Path, Reason: f.Reason.String(), Detail: detail})
	}
	for _, p := range out.Stats.Restricted {
		rec.Failures = append(rec.Failures, store.FailureRecord{Path: p, Reason: "Restricted"})
	}

	if _, err := s.journal.RecordSweep(rec); err != nil {
		s.logger.Warn().Err(err).Msg("failed to journal sweep")
	}
}
