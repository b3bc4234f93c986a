package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fenilsonani/reclaim/internal/analyzer"
	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/inventory"
	"github.com/fenilsonani/reclaim/internal/logging"
	"github.com/fenilsonani/reclaim/internal/platform"
	"github.com/fenilsonani/reclaim/internal/progress"
	"github.com/fenilsonani/reclaim/internal/reporter"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/internal/store"
	"github.com/fenilsonani/reclaim/internal/ui"
	"github.com/fenilsonani/reclaim/pkg/utils"
	"github.com/mattn/go-isatty"
)

// app holds everything a command needs, built once from the config file
type app struct {
	cfg        *config.Config
	cfgPath    string
	info       *platform.Info
	logger     *logging.Logger
	exclusions *config.ExclusionStore
	policy     *security.Policy
	guard      *security.Guard
}

func newApp() (*app, error) {
	cfgPath, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	info, err := platform.GetInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get platform info: %w", err)
	}
	if dir := cfg.Discovery.SharedInstallerDir; dir != "" {
		info.WithSharedInstallerDir(config.ExpandPath(dir, info.HomeDir))
	}

	logCfg := cfg.Log
	logCfg.File = config.ExpandPath(logCfg.File, info.HomeDir)
	logger, err := logging.New(logCfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	exclusions, err := config.LoadExclusionStore(cfgPath, info.HomeDir)
	if err != nil {
		logger.Close()
		return nil, err
	}
	exclusions.SetLogger(logger.Logger)

	policy := buildPolicy(info, cfg)

	return &app{
		cfg:        cfg,
		cfgPath:    cfgPath,
		info:       info,
		logger:     logger,
		exclusions: exclusions,
		policy:     policy,
		guard:      security.NewGuard(policy, exclusions),
	}, nil
}

func (a *app) Close() {
	a.logger.Close()
}

// buildPolicy protects the well-known folders themselves, the application
// folders entirely, and whatever the config adds
func buildPolicy(info *platform.Info, cfg *config.Config) *security.Policy {
	policy := security.NewPolicy(info.HomeDir)

	for _, dir := range []string{info.LibraryDir, info.CachesDir, info.AppSupportDir, info.PreferencesDir, info.SharedInstallerDir} {
		if dir != "" {
			policy.AddProtectedLocation(dir)
		}
	}
	for _, dir := range info.ApplicationDirs {
		policy.AddProtectedPath(dir)
	}
	for _, path := range cfg.ProtectedPaths {
		policy.AddProtectedPath(config.ExpandPath(path, info.HomeDir))
	}

	return policy
}

// watchExclusions keeps the exclusion list in sync with the config file
// while a long command runs
func (a *app) watchExclusions(ctx context.Context) {
	if _, err := os.Stat(a.cfgPath); err != nil {
		return
	}
	if err := a.exclusions.Watch(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("exclusions will not reload while running")
	}
}

// scan runs discovery and scoring for categories (config categories when
// empty)
func (a *app) scan(ctx context.Context, categories []scanner.Category) (*reporter.ScanReport, error) {
	if len(categories) == 0 {
		parsed, err := scanner.ParseCategories(a.cfg.Categories)
		if err != nil {
			return nil, err
		}
		categories = parsed
	}

	apps, err := inventory.LoadApplications(a.info.ApplicationDirs)
	if err != nil {
		// Without the app list every support folder would look orphaned
		return nil, fmt.Errorf("failed to list installed applications: %w", err)
	}

	var procIndex *inventory.ProcessIndex
	procs, err := inventory.LoadProcesses(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("process list unavailable, treating every owner as idle")
	} else {
		procIndex = inventory.NewProcessIndex(procs)
	}

	engine := scanner.NewEngine(a.cfg, a.info, inventory.NewAppIndex(apps), procIndex)
	engine.SetLogger(a.logger.Logger)

	az, err := analyzer.NewFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	az.SetLogger(a.logger.Logger)

	pr := progress.NewProgressReporter()
	engine.SetProgressReporter(pr)
	az.SetProgressReporter(pr)

	if isatty.IsTerminal(os.Stderr.Fd()) {
		live := ui.NewLiveProgress(os.Stderr)
		live.Watch(pr)
		defer live.Stop()
	}

	result := engine.Discover(ctx, categories)
	for category, found := range result.GroupByCategory() {
		a.logger.Debug().Stringer("category", category).Int("candidates", len(found)).Msg("discovered")
	}
	scored := az.Analyze(ctx, result)

	// Excluded paths are never offered
	visible := scored[:0]
	for _, s := range scored {
		if a.guard.Classify(s.Candidate.Path) == security.DecisionAllow {
			visible = append(visible, s)
		}
	}

	return &reporter.ScanReport{
		Candidates:       visible,
		PermissionDenied: result.PermissionDenied,
		GeneratedAt:      time.Now(),
	}, nil
}

func (a *app) journalPath() (string, error) {
	if p := a.cfg.Sweep.JournalPath; p != "" {
		return config.ExpandPath(p, a.info.HomeDir), nil
	}
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func (a *app) openJournal() (*store.Store, error) {
	path, err := a.journalPath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sweep journal: %w", err)
	}
	return db, nil
}

// newSweeper wires the guard, the elevator and the journal. The returned
// TerminalElevator must be handed to ui.RunSweep when the progress view is
// used.
func (a *app) newSweeper(journal cleaner.Journal) (*cleaner.Sweeper, *ui.TerminalElevator) {
	sudo := cleaner.NewSudoElevator(a.guard)
	sudo.SetLogger(a.logger.Logger)
	terminal := ui.NewTerminalElevator(sudo)

	sweeper := cleaner.NewSweeper(a.guard, terminal)
	sweeper.SetLogger(a.logger.Logger)
	if journal != nil {
		sweeper.SetJournal(journal)
	}
	return sweeper, terminal
}

// selectionFromArgs canonicalizes explicit sweep arguments
func selectionFromArgs(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := scanner.CanonicalPath(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", arg, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func selectedBytes(selection []analyzer.ScoredCandidate) int64 {
	sizes := make([]int64, 0, len(selection))
	for _, s := range selection {
		sizes = append(sizes, max(s.Candidate.EstimatedSize, 0))
	}
	return utils.SumSizes(sizes)
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// explicitSelection describes paths given on the command line for the
// confirmation screen. They carry no score, so they rank as manual-only.
func explicitSelection(paths []string) []analyzer.ScoredCandidate {
	selection := make([]analyzer.ScoredCandidate, 0, len(paths))
	for _, p := range paths {
		c := &scanner.Candidate{Path: p, DisplayName: filepath.Base(p)}
		if fi, err := os.Lstat(p); err == nil {
			c.EstimatedSize = fi.Size()
			c.Resource.IsDir = fi.IsDir()
		}
		selection = append(selection, analyzer.ScoredCandidate{
			Candidate:  c,
			Confidence: analyzer.Confidence{Tier: analyzer.TierManualOnly},
		})
	}
	return selection
}
