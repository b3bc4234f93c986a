package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ExclusionStore is the user's keep-list. It is read by the deletion guard
// on every classification and persisted in the exclusions section of the
// config file. External edits to the file replace the in-memory list
// (last write wins).
type ExclusionStore struct {
	mu         sync.RWMutex
	patterns   []string // expanded
	raw        []string // as written by the user
	home       string
	configPath string
	logger     zerolog.Logger
}

// NewExclusionStore creates an in-memory store. Patterns may start with ~.
func NewExclusionStore(patterns []string, home string) *ExclusionStore {
	s := &ExclusionStore{home: home, logger: zerolog.Nop()}
	s.set(patterns)
	return s
}

// LoadExclusionStore reads the exclusions of the config file at configPath
// and binds the store to it for Add, Remove and Watch.
func LoadExclusionStore(configPath, home string) (*ExclusionStore, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	s := NewExclusionStore(cfg.Exclusions, home)
	s.configPath = configPath
	return s, nil
}

// SetLogger sets the logger used for reload diagnostics
func (s *ExclusionStore) SetLogger(logger zerolog.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *ExclusionStore) set(patterns []string) {
	raw := make([]string, 0, len(patterns))
	expanded := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(raw, p) {
			continue
		}
		raw = append(raw, p)
		expanded = append(expanded, ExpandPath(p, s.home))
	}

	s.mu.Lock()
	s.raw = raw
	s.patterns = expanded
	s.mu.Unlock()
}

// IsExcluded reports whether path, or any directory above it, is on the
// keep-list. Glob patterns are matched against the path and its ancestors.
func (s *ExclusionStore) IsExcluded(path string) bool {
	path = filepath.Clean(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pattern := range s.patterns {
		if matchExclusion(pattern, path) {
			return true
		}
	}
	return false
}

func matchExclusion(pattern, path string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator))
	}

	for p := path; ; p = filepath.Dir(p) {
		if ok, _ := filepath.Match(pattern, p); ok {
			return true
		}
		if parent := filepath.Dir(p); parent == p {
			return false
		}
	}
}

// HasExcludedDescendant reports whether some path strictly below dir could
// be on the keep-list. Patterns are compared component by component, so a
// glob such as ~/Library/Caches/*/keep.db counts for every cache folder.
func (s *ExclusionStore) HasExcludedDescendant(dir string) bool {
	dirParts := splitPath(filepath.Clean(dir))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pattern := range s.patterns {
		parts := splitPath(filepath.Clean(pattern))
		if len(parts) <= len(dirParts) {
			continue
		}
		if prefixMatches(parts[:len(dirParts)], dirParts) {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	if path == string(filepath.Separator) {
		return []string{""}
	}
	return strings.Split(path, string(filepath.Separator))
}

func prefixMatches(patternParts, pathParts []string) bool {
	for i, part := range patternParts {
		if ok, err := filepath.Match(part, pathParts[i]); err != nil || !ok {
			return false
		}
	}
	return true
}

// List returns the patterns as the user wrote them
func (s *ExclusionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.raw...)
}

// Add appends a pattern and persists the list. Adding an existing pattern
// is a no-op.
func (s *ExclusionStore) Add(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("exclusion must not be empty")
	}
	if err := security.ValidateGlobPattern(pattern); err != nil {
		return err
	}
	if !strings.HasPrefix(pattern, "~") && !filepath.IsAbs(pattern) {
		return fmt.Errorf("exclusion must be absolute or start with ~: %s", pattern)
	}

	current := s.List()
	if slices.Contains(current, pattern) {
		return nil
	}

	s.set(append(current, pattern))
	return s.persist()
}

// Remove deletes a pattern and persists the list. It reports whether the
// pattern was present.
func (s *ExclusionStore) Remove(pattern string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	current := s.List()

	idx := slices.Index(current, pattern)
	if idx < 0 {
		return false, nil
	}

	s.set(slices.Delete(current, idx, idx+1))
	return true, s.persist()
}

func (s *ExclusionStore) persist() error {
	if s.configPath == "" {
		return nil
	}

	cfg, err := Load(s.configPath)
	if err != nil {
		return err
	}
	cfg.Exclusions = s.List()
	return Save(cfg, s.configPath)
}

// Reload re-reads the exclusions from the bound config file. A file that
// fails to parse leaves the current list untouched.
func (s *ExclusionStore) Reload() error {
	if s.configPath == "" {
		return nil
	}

	cfg, err := Load(s.configPath)
	if err != nil {
		return err
	}
	s.set(cfg.Exclusions)
	return nil
}

// Watch reloads the store whenever the bound config file changes. It
// returns once the watch is established; watching stops when ctx is done.
func (s *ExclusionStore) Watch(ctx context.Context) error {
	if s.configPath == "" {
		return fmt.Errorf("exclusion store is not bound to a config file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace files, so watch the directory and filter by name
	if err := watcher.Add(filepath.Dir(s.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.configPath), err)
	}

	target := filepath.Clean(s.configPath)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				s.mu.RLock()
				logger := s.logger
				s.mu.RUnlock()
				if err := s.Reload(); err != nil {
					logger.Warn().Err(err).Str("path", target).Msg("exclusions: reload failed, keeping previous list")
					continue
				}
				logger.Debug().Int("patterns", len(s.List())).Msg("exclusions: reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.mu.RLock()
				logger := s.logger
				s.mu.RUnlock()
				logger.Warn().Err(err).Msg("exclusions: watcher error")
			}
		}
	}()

	return nil
}
