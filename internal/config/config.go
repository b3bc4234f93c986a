package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Category names accepted in the categories list
var CategoryNames = []string{
	"browser-cache",
	"orphaned-app-support",
	"orphaned-preference",
	"shared-installer",
}

// Config represents the application configuration
type Config struct {
	Categories     []string         `yaml:"categories"`
	Exclusions     []string         `yaml:"exclusions"`
	ProtectedPaths []string         `yaml:"protected_paths"`
	Discovery      DiscoveryConfig  `yaml:"discovery"`
	Duplicates     DuplicatesConfig `yaml:"duplicates"`
	Scoring        ScoringConfig    `yaml:"scoring"`
	Sweep          SweepConfig      `yaml:"sweep"`
	Log            LogConfig        `yaml:"log"`
}

// DiscoveryConfig tunes candidate discovery
type DiscoveryConfig struct {
	MaxInspectedChildren int      `yaml:"max_inspected_children"`
	PreferenceMinAgeDays int      `yaml:"preference_min_age_days"`
	InstallerExtensions  []string `yaml:"installer_extensions"`
	SharedInstallerDir   string   `yaml:"shared_installer_dir,omitempty"`
}

// DuplicatesConfig tunes duplicate detection
type DuplicatesConfig struct {
	MinSize        string `yaml:"min_size"` // e.g., "5MB"
	MaxFilesHashed int    `yaml:"max_files_hashed"`
}

// ScoringConfig holds the confidence weights and tier table
type ScoringConfig struct {
	Weights       WeightsConfig      `yaml:"weights"`
	CategoryBonus map[string]float64 `yaml:"category_bonus"`
	Tiers         []TierConfig       `yaml:"tiers"`
}

// WeightsConfig holds per-factor weights; they must sum to 1
type WeightsConfig struct {
	Age       float64 `yaml:"age"`
	Ownership float64 `yaml:"ownership"`
	Activity  float64 `yaml:"activity"`
	Size      float64 `yaml:"size"`
	Duplicate float64 `yaml:"duplicate"`
}

// TierConfig maps a minimum score to a tier name
type TierConfig struct {
	Name     string `yaml:"name"`
	MinScore int    `yaml:"min_score"`
}

// SweepConfig holds sweep execution settings
type SweepConfig struct {
	Workers     int    `yaml:"workers"` // 0 means max(2, NumCPU)
	DryRun      bool   `yaml:"dry_run"`
	JournalPath string `yaml:"journal_path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Load loads configuration from a file
func Load(configPath string) (*Config, error) {
	// If config doesn't exist, return default config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefault(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so a partial file keeps the remaining settings
	config := GetDefault()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func Save(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for _, name := range c.Categories {
		if !slices.Contains(CategoryNames, name) {
			return fmt.Errorf("unknown category %q (valid: %s)", name, strings.Join(CategoryNames, ", "))
		}
	}

	for _, pattern := range c.Exclusions {
		if err := security.ValidateGlobPattern(pattern); err != nil {
			return fmt.Errorf("invalid exclusion '%s': %w", pattern, err)
		}
	}

	for _, path := range c.ProtectedPaths {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("protected path must be absolute: %s", path)
		}
	}

	if c.Discovery.MaxInspectedChildren <= 0 {
		return fmt.Errorf("max_inspected_children must be > 0")
	}
	if c.Discovery.PreferenceMinAgeDays < 0 {
		return fmt.Errorf("preference_min_age_days must be >= 0")
	}
	for _, ext := range c.Discovery.InstallerExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("installer extension must start with '.': %s", ext)
		}
	}

	if _, err := utils.ParseSize(c.Duplicates.MinSize); err != nil {
		return fmt.Errorf("invalid duplicates.min_size: %w", err)
	}
	if c.Duplicates.MaxFilesHashed < 0 {
		return fmt.Errorf("max_files_hashed must be >= 0")
	}

	if err := c.Scoring.Validate(); err != nil {
		return err
	}

	if c.Sweep.Workers < 0 {
		return fmt.Errorf("sweep.workers must be >= 0")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}

	return nil
}

// Validate checks the weights and tier table
func (s *ScoringConfig) Validate() error {
	w := s.Weights
	for name, v := range map[string]float64{
		"age": w.Age, "ownership": w.Ownership, "activity": w.Activity, "size": w.Size, "duplicate": w.Duplicate,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be >= 0", name)
		}
	}
	if sum := w.Age + w.Ownership + w.Activity + w.Size + w.Duplicate; math.Abs(sum-1) > 0.001 {
		return fmt.Errorf("scoring weights must sum to 1, got %.3f", sum)
	}

	for name, bonus := range s.CategoryBonus {
		if !slices.Contains(CategoryNames, name) {
			return fmt.Errorf("category_bonus for unknown category %q", name)
		}
		if bonus < -1 || bonus > 1 {
			return fmt.Errorf("category_bonus %s must be within [-1, 1]", name)
		}
	}

	if len(s.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	for i, tier := range s.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("tier %d has no name", i)
		}
		if tier.MinScore < 0 || tier.MinScore > 100 {
			return fmt.Errorf("tier %s min_score must be within [0, 100]", tier.Name)
		}
		if i > 0 && tier.MinScore >= s.Tiers[i-1].MinScore {
			return fmt.Errorf("tiers must be ordered by descending min_score")
		}
	}
	if last := s.Tiers[len(s.Tiers)-1]; last.MinScore != 0 {
		return fmt.Errorf("lowest tier %s must start at 0", last.Name)
	}

	return nil
}

// GetConfigDir returns the directory holding config and journal files
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "reclaim"), nil
}

// GetConfigPath returns the default config path
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigExists creates a default config file if it doesn't exist
func EnsureConfigExists() (string, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(GetDefault(), configPath); err != nil {
			return "", err
		}
	}

	return configPath, nil
}

// ExpandPath replaces a leading ~ with home and cleans the result
func ExpandPath(path, home string) string {
	switch {
	case path == "~":
		return filepath.Clean(home)
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:])
	case path == "":
		return ""
	default:
		return filepath.Clean(path)
	}
}
