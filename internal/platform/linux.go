package platform

import (
	"os"
	"path/filepath"
)

// getLinuxInfo maps the macOS library roles onto XDG base directories
func getLinuxInfo(homeDir string) *Info {
	dataHome := xdgDir("XDG_DATA_HOME", filepath.Join(homeDir, ".local", "share"))

	return &Info{
		OS:                 Linux,
		HomeDir:            homeDir,
		LibraryDir:         dataHome,
		CachesDir:          xdgDir("XDG_CACHE_HOME", filepath.Join(homeDir, ".cache")),
		AppSupportDir:      dataHome,
		PreferencesDir:     xdgDir("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config")),
		SharedInstallerDir: filepath.Join(homeDir, "Downloads"),
		ApplicationDirs: []string{
			"/usr/share/applications",
			filepath.Join(dataHome, "applications"),
		},
	}
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" && filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return fallback
}
