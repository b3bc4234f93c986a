package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fenilsonani/reclaim/internal/analyzer"
	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/reporter"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/internal/store"
	"github.com/fenilsonani/reclaim/internal/ui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configPath   string
	verbose      bool
	categories   []string
	outputFmt    string
	outputFile   string
	tierName     string
	dryRun       bool
	assumeYes    bool
	workers      int
	historyLimit int
)

// errSweepFailed makes the process exit non-zero without printing twice
var errSweepFailed = errors.New("sweep did not complete")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSweepFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Find and remove leftover caches, orphaned app data and stale installers",
	Long: `reclaim scans your home folder for browser caches, support files and
preferences left behind by uninstalled applications, and installers sitting in
Downloads. Every finding gets a confidence score; nothing is deleted without
your approval.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List deletion candidates with their confidence",
	Long:  `Scans for candidates and reports them without making any changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := reporter.ParseFormat(outputFmt)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cats, err := scanner.ParseCategories(categories)
		if err != nil {
			return err
		}

		report, err := a.scan(cmd.Context(), cats)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if cmd.Flags().Changed("tier") {
			tier, err := analyzer.ParseTier(tierName)
			if err != nil {
				return err
			}
			report.Candidates = analyzer.FilterByTier(report.Candidates, tier)
		}

		if outputFile != "" {
			if err := reporter.SaveToFile(report, outputFile, format); err != nil {
				return fmt.Errorf("failed to save report: %w", err)
			}
			fmt.Printf("Report saved to: %s\n", outputFile)
			return nil
		}

		return reporter.New(os.Stdout, format).Report(report)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [paths...]",
	Short: "Delete candidates at or above a confidence tier, or the given paths",
	Long: `Deletes the given paths, or when none are given, every candidate whose
tier is at least --tier. Protected paths abort the whole sweep; excluded paths
are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.watchExclusions(ctx)

		if !cmd.Flags().Changed("dry-run") {
			dryRun = a.cfg.Sweep.DryRun
		}
		if !cmd.Flags().Changed("workers") {
			workers = a.cfg.Sweep.Workers
		}

		var paths []string
		var selection []analyzer.ScoredCandidate
		if len(args) > 0 {
			paths, err = selectionFromArgs(args)
			if err != nil {
				return err
			}
		} else {
			tier, err := analyzer.ParseTier(tierName)
			if err != nil {
				return err
			}
			report, err := a.scan(ctx, nil)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			selection = analyzer.MinTier(report.Candidates, tier)
			if len(selection) == 0 {
				fmt.Printf("Nothing at tier %s or safer. Your system is already tidy.\n", tier)
				return nil
			}
			paths = analyzer.Paths(selection)
		}

		interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
		if !assumeYes {
			if !interactive {
				return fmt.Errorf("refusing to sweep %d items without a terminal; pass --yes to confirm", len(paths))
			}
			if selection == nil {
				selection = explicitSelection(paths)
			}
			ok, err := ui.Confirm(selection, dryRun, os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Sweep cancelled")
				return nil
			}
		}

		var j cleaner.Journal
		if journal, err := a.openJournal(); err != nil {
			a.logger.Warn().Err(err).Msg("sweep will not be journaled")
		} else {
			defer journal.Close()
			j = journal
		}
		sweeper, terminal := a.newSweeper(j)

		opts := cleaner.Options{
			DryRun:        dryRun,
			Workers:       workers,
			SelectedBytes: selectedBytes(selection),
		}

		var outcome *cleaner.Outcome
		if interactive {
			outcome, err = ui.RunSweep(ctx, sweeper, terminal, paths, opts, os.Stdin, os.Stdout)
			if err != nil {
				a.logger.Warn().Err(err).Msg("progress view failed")
			}
		} else {
			outcome = sweeper.Sweep(ctx, paths, opts)
		}

		fmt.Println()
		reporter.New(os.Stdout, reporter.FormatSummary).ReportOutcome(outcome)
		if !outcome.Success {
			return errSweepFailed
		}
		return nil
	},
}

var exclusionsCmd = &cobra.Command{
	Use:   "exclusions",
	Short: "Manage paths that are never deleted",
}

var exclusionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the exclusion list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.exclusions.List()
		if len(list) == 0 {
			fmt.Println("No exclusions configured.")
			return nil
		}
		for _, pattern := range list {
			fmt.Println(pattern)
		}
		return nil
	},
}

var exclusionsAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Never delete path or anything below it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.exclusions.Add(args[0]); err != nil {
			return fmt.Errorf("failed to add exclusion: %w", err)
		}
		fmt.Printf("Excluded %s\n", args[0])
		if expanded := config.ExpandPath(args[0], a.info.HomeDir); a.policy.IsRestricted(expanded) {
			fmt.Printf("Note: %s is already protected and is never deleted.\n", expanded)
		}
		return nil
	},
}

var exclusionsRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Remove an exclusion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.exclusions.Remove(args[0])
		if err != nil {
			return fmt.Errorf("failed to remove exclusion: %w", err)
		}
		if !removed {
			return fmt.Errorf("not in the exclusion list: %s", args[0])
		}
		fmt.Printf("Removed exclusion %s\n", args[0])
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show previous sweeps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		journal, err := a.openJournal()
		if err != nil {
			return err
		}
		defer journal.Close()

		records, err := journal.ListSweeps(historyLimit)
		if err != nil && !errors.Is(err, store.ErrNotInitialized) {
			return fmt.Errorf("failed to read sweep history: %w", err)
		}

		reporter.New(os.Stdout, reporter.FormatTable).ReportHistory(records)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Config file already exists: %s\n", path)
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.GetExampleConfig()), 0644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "# %s does not exist, showing defaults\n", path)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	scanCmd.Flags().StringSliceVar(&categories, "category", nil, "scan only these categories (repeatable)")
	scanCmd.Flags().StringVar(&outputFmt, "format", "table", "output format (table, json, yaml, summary)")
	scanCmd.Flags().StringVar(&tierName, "tier", "", "show only this tier (safe, needs-review, manual-only)")
	scanCmd.Flags().StringVar(&outputFile, "output", "", "save report to file")

	sweepCmd.Flags().StringVar(&tierName, "tier", "safe", "sweep candidates at this tier or safer")
	sweepCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting")
	sweepCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation screen")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "parallel deletions (default max(2, CPUs))")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sweeps to show (0 for all)")

	exclusionsCmd.AddCommand(exclusionsListCmd, exclusionsAddCmd, exclusionsRemoveCmd)
	configCmd.AddCommand(configPathCmd, configInitCmd, configShowCmd)
	rootCmd.AddCommand(scanCmd, sweepCmd, exclusionsCmd, historyCmd, configCmd)
}
