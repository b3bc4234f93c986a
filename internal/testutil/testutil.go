// Package testutil provides test helpers and fixtures for reclaim tests.
// All file operations use t.TempDir() for safe, isolated testing.
package testutil

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fenilsonani/reclaim/internal/platform"
)

// TestFixture holds a fake home directory laid out like ~/Library
type TestFixture struct {
	T       *testing.T
	RootDir string // Root temp directory (auto-cleaned, symlinks resolved)

	HomeDir        string
	LibraryDir     string
	CachesDir      string
	AppSupportDir  string
	PreferencesDir string
	SharedDir      string
	AppsDir        string
}

// NewFixture creates a new test fixture with the standard directory structure
func NewFixture(t *testing.T) *TestFixture {
	t.Helper()

	// Resolve the temp dir so paths compare equal to canonicalized ones
	// (on macOS /var is a symlink to /private/var)
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}

	home := filepath.Join(root, "home")
	library := filepath.Join(home, "Library")

	f := &TestFixture{
		T:              t,
		RootDir:        root,
		HomeDir:        home,
		LibraryDir:     library,
		CachesDir:      filepath.Join(library, "Caches"),
		AppSupportDir:  filepath.Join(library, "Application Support"),
		PreferencesDir: filepath.Join(library, "Preferences"),
		SharedDir:      filepath.Join(root, "Shared"),
		AppsDir:        filepath.Join(root, "Applications"),
	}

	dirs := []string{
		f.CachesDir,
		f.AppSupportDir,
		f.PreferencesDir,
		f.SharedDir,
		f.AppsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	return f
}

// Info returns macOS-shaped platform info rooted at the fixture
func (f *TestFixture) Info() *platform.Info {
	f.T.Helper()

	info, err := platform.ForHome(platform.MacOS, f.HomeDir)
	if err != nil {
		f.T.Fatalf("failed to build platform info: %v", err)
	}
	info.WithSharedInstallerDir(f.SharedDir)
	info.ApplicationDirs = []string{f.AppsDir}
	return info
}

// =============================================================================
// File Creation Helpers
// =============================================================================

// CreateFile creates a file with specified content and returns its path.
// relPath is relative to the fixture root.
func (f *TestFixture) CreateFile(relPath string, content []byte) string {
	f.T.Helper()

	fullPath := filepath.Join(f.RootDir, relPath)
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		f.T.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		f.T.Fatalf("failed to create file %s: %v", fullPath, err)
	}

	return fullPath
}

// CreateFileWithAge creates a file and sets its access and modification
// times to the past
func (f *TestFixture) CreateFileWithAge(relPath string, content []byte, age time.Duration) string {
	f.T.Helper()

	fullPath := f.CreateFile(relPath, content)
	f.SetAge(fullPath, age)
	return fullPath
}

// CreateSizedFile creates a file of size bytes filled with a repeating byte
func (f *TestFixture) CreateSizedFile(relPath string, size int, fill byte) string {
	f.T.Helper()

	content := make([]byte, size)
	for i := range content {
		content[i] = fill
	}
	return f.CreateFile(relPath, content)
}

// CreateRandomFile creates a file with random content
func (f *TestFixture) CreateRandomFile(relPath string, size int) string {
	f.T.Helper()
	content := make([]byte, size)
	rand.Read(content)
	return f.CreateFile(relPath, content)
}

// SetAge moves both timestamps of path age into the past
func (f *TestFixture) SetAge(path string, age time.Duration) {
	f.T.Helper()

	oldTime := time.Now().Add(-age)
	if err := os.Chtimes(path, oldTime, oldTime); err != nil {
		f.T.Fatalf("failed to set time for %s: %v", path, err)
	}
}

// =============================================================================
// Directory Helpers
// =============================================================================

// CreateDir creates a directory and returns its path
func (f *TestFixture) CreateDir(relPath string) string {
	f.T.Helper()

	fullPath := filepath.Join(f.RootDir, relPath)
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		f.T.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// CreateReadOnlyDir creates a directory holding one file and removes write
// permission, so the file inside cannot be deleted
func (f *TestFixture) CreateReadOnlyDir(relPath string) string {
	f.T.Helper()

	dirPath := f.CreateDir(relPath)
	f.CreateFile(filepath.Join(relPath, "trapped.txt"), []byte("trapped"))
	if err := os.Chmod(dirPath, 0555); err != nil {
		f.T.Fatalf("failed to chmod directory %s: %v", dirPath, err)
	}

	// Restore permissions so TempDir cleanup works
	f.T.Cleanup(func() {
		os.Chmod(dirPath, 0755)
	})

	return dirPath
}

// CreateUnreadableDir creates a directory that cannot be listed
func (f *TestFixture) CreateUnreadableDir(relPath string) string {
	f.T.Helper()

	dirPath := f.CreateDir(relPath)
	f.CreateFile(filepath.Join(relPath, "hidden.txt"), []byte("hidden"))
	if err := os.Chmod(dirPath, 0000); err != nil {
		f.T.Fatalf("failed to chmod directory %s: %v", dirPath, err)
	}

	f.T.Cleanup(func() {
		os.Chmod(dirPath, 0755)
	})

	return dirPath
}

// CreateSymlink creates a symbolic link at linkPath (relative to the root)
func (f *TestFixture) CreateSymlink(target, linkPath string) string {
	f.T.Helper()

	fullLinkPath := filepath.Join(f.RootDir, linkPath)
	if err := os.MkdirAll(filepath.Dir(fullLinkPath), 0755); err != nil {
		f.T.Fatalf("failed to create directory for %s: %v", fullLinkPath, err)
	}

	if err := os.Symlink(target, fullLinkPath); err != nil {
		f.T.Fatalf("failed to create symlink %s -> %s: %v", fullLinkPath, target, err)
	}

	return fullLinkPath
}

// =============================================================================
// Library Helpers
// =============================================================================

// CreateApp creates an application bundle with an Info.plist in AppsDir
func (f *TestFixture) CreateApp(name, bundleID string) string {
	f.T.Helper()

	bundle := filepath.Join(f.AppsDir, name+".app")
	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>%s</string>
	<key>CFBundleName</key>
	<string>%s</string>
</dict>
</plist>
`, bundleID, name)

	rel, _ := filepath.Rel(f.RootDir, filepath.Join(bundle, "Contents", "Info.plist"))
	f.CreateFile(rel, []byte(plist))
	return bundle
}

// CreateCache creates a cache directory under Caches with one file of size
// bytes and returns the directory
func (f *TestFixture) CreateCache(relPath string, size int) string {
	f.T.Helper()

	dir := filepath.Join(f.CachesDir, relPath)
	rel, _ := filepath.Rel(f.RootDir, filepath.Join(dir, "data_0"))
	f.CreateFile(rel, make([]byte, size))
	return dir
}

// CreatePreference creates a plist under Preferences aged by age
func (f *TestFixture) CreatePreference(bundleID string, age time.Duration) string {
	f.T.Helper()

	rel, _ := filepath.Rel(f.RootDir, filepath.Join(f.PreferencesDir, bundleID+".plist"))
	return f.CreateFileWithAge(rel, []byte("<plist/>"), age)
}

// =============================================================================
// Path Helpers
// =============================================================================

// Path returns the full path for a relative path within the fixture
func (f *TestFixture) Path(relPath string) string {
	return filepath.Join(f.RootDir, relPath)
}

// RelPath returns the relative path from the fixture root
func (f *TestFixture) RelPath(fullPath string) string {
	rel, _ := filepath.Rel(f.RootDir, fullPath)
	return rel
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// FileExists checks if a file exists without following a final symlink
func (f *TestFixture) FileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// AssertFileExists fails the test if the file doesn't exist
func (f *TestFixture) AssertFileExists(path string) {
	f.T.Helper()
	if !f.FileExists(path) {
		f.T.Errorf("expected file to exist: %s", path)
	}
}

// AssertFileNotExists fails the test if the file exists
func (f *TestFixture) AssertFileNotExists(path string) {
	f.T.Helper()
	if f.FileExists(path) {
		f.T.Errorf("expected file to not exist: %s", path)
	}
}

// CountFiles counts regular files below path
func CountFiles(path string) (int, error) {
	count := 0
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			count++
		}
		return nil
	})
	return count, err
}

// =============================================================================
// Environment Helpers
// =============================================================================

// IsRoot reports whether tests run as root
func IsRoot() bool {
	return os.Geteuid() == 0
}

// SkipIfRoot skips tests that rely on permission denials
func SkipIfRoot(t *testing.T) {
	t.Helper()
	if IsRoot() {
		t.Skip("skipping test when running as root")
	}
}

// IsMacOS reports whether tests run on macOS
func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}
