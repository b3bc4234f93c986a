package config

// GetDefault returns the default configuration
func GetDefault() *Config {
	return &Config{
		Categories: append([]string(nil), CategoryNames...),
		Exclusions: []string{
			// User can add paths they want to explicitly keep
		},
		ProtectedPaths: []string{},
		Discovery: DiscoveryConfig{
			MaxInspectedChildren: 5000,
			PreferenceMinAgeDays: 90,
			InstallerExtensions:  []string{".dmg", ".pkg", ".zip"},
		},
		Duplicates: DuplicatesConfig{
			MinSize:        "5MB",
			MaxFilesHashed: 2000,
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				Age:       0.26,
				Ownership: 0.24,
				Activity:  0.18,
				Size:      0.17,
				Duplicate: 0.15,
			},
			CategoryBonus: map[string]float64{
				"browser-cache":        0.10,
				"shared-installer":     0.08,
				"orphaned-app-support": 0,
				"orphaned-preference":  -0.10,
			},
			Tiers: []TierConfig{
				{Name: "safe", MinScore: 80},
				{Name: "needs-review", MinScore: 50},
				{Name: "manual-only", MinScore: 0},
			},
		},
		Sweep: SweepConfig{
			Workers:     0, // max(2, NumCPU)
			DryRun:      false,
			JournalPath: "~/.config/reclaim/history.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// GetExampleConfig returns an example configuration with comments
func GetExampleConfig() string {
	return `# reclaim configuration file
# Location: ~/.config/reclaim/config.yaml

# Candidate categories to discover
categories:
  - browser-cache          # Regenerable browser caches under ~/Library/Caches
  - orphaned-app-support   # Application Support folders with no installed owner
  - orphaned-preference    # Stale .plist files with no installed owner
  - shared-installer       # .dmg/.pkg/.zip installers in the shared folder

# Paths (or glob patterns) that are never deleted.
# A directory entry also keeps everything below it.
exclusions:
  - "~/Library/Application Support/MobileSync"

# Extra locations to treat as restricted, on top of the built-in system list
protected_paths: []

discovery:
  max_inspected_children: 5000   # Directory size estimates stop after this many entries
  preference_min_age_days: 90    # Preferences touched more recently are kept
  installer_extensions: [".dmg", ".pkg", ".zip"]
  # shared_installer_dir: "/Users/Shared"

duplicates:
  min_size: "5MB"                # Smaller files are never compared
  max_files_hashed: 2000         # Hashing budget per scan

scoring:
  weights:
    age: 0.26
    ownership: 0.24
    activity: 0.18
    size: 0.17
    duplicate: 0.15
  category_bonus:
    browser-cache: 0.10
    shared-installer: 0.08
    orphaned-app-support: 0
    orphaned-preference: -0.10
  # Highest min_score first; the last tier must start at 0
  tiers:
    - {name: safe, min_score: 80}
    - {name: needs-review, min_score: 50}
    - {name: manual-only, min_score: 0}

sweep:
  workers: 0                     # 0 means max(2, number of CPUs)
  dry_run: false
  journal_path: "~/.config/reclaim/history.db"

log:
  level: info                    # debug, info, warn, error
  # file: "~/.config/reclaim/reclaim.log"
`
}
