package platform

import "path/filepath"

// getMacOSInfo returns the ~/Library layout used on macOS
func getMacOSInfo(homeDir string) *Info {
	library := filepath.Join(homeDir, "Library")

	return &Info{
		OS:                 MacOS,
		HomeDir:            homeDir,
		LibraryDir:         library,
		CachesDir:          filepath.Join(library, "Caches"),
		AppSupportDir:      filepath.Join(library, "Application Support"),
		PreferencesDir:     filepath.Join(library, "Preferences"),
		SharedInstallerDir: "/Users/Shared",
		ApplicationDirs: []string{
			"/Applications",
			"/Applications/Utilities",
			"/System/Applications",
			filepath.Join(homeDir, "Applications"),
		},
	}
}
