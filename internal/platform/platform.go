package platform

import (
	"os/user"
	"path/filepath"
	"runtime"
)

// Platform represents the operating system platform
type Platform string

const (
	MacOS   Platform = "darwin"
	Linux   Platform = "linux"
	Unknown Platform = "unknown"
)

// Info contains the well-known locations reclaim scans and protects.
// Every path is absolute and resolved for the current user.
type Info struct {
	OS       Platform
	HomeDir  string
	Username string

	LibraryDir         string
	CachesDir          string
	AppSupportDir      string
	PreferencesDir     string
	SharedInstallerDir string

	// ApplicationDirs are searched for installed application bundles.
	ApplicationDirs []string
}

// Detect returns the current platform
func Detect() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "linux":
		return Linux
	default:
		return Unknown
	}
}

// GetInfo resolves the locations for the current user
func GetInfo() (*Info, error) {
	currentUser, err := user.Current()
	if err != nil {
		return nil, err
	}

	info, err := ForHome(Detect(), currentUser.HomeDir)
	if err != nil {
		return nil, err
	}
	info.Username = currentUser.Username

	return info, nil
}

// ForHome resolves the locations of p for an arbitrary home directory.
func ForHome(p Platform, homeDir string) (*Info, error) {
	homeDir = filepath.Clean(homeDir)

	switch p {
	case MacOS:
		return getMacOSInfo(homeDir), nil
	case Linux:
		return getLinuxInfo(homeDir), nil
	default:
		return nil, ErrUnsupportedPlatform
	}
}

// WithSharedInstallerDir overrides the shared installer location.
func (i *Info) WithSharedInstallerDir(dir string) *Info {
	if dir != "" {
		i.SharedInstallerDir = filepath.Clean(dir)
	}
	return i
}

// Errors
var (
	ErrUnsupportedPlatform = &PlatformError{"unsupported platform"}
)

// PlatformError represents a platform-related error
type PlatformError struct {
	Message string
}

func (e *PlatformError) Error() string {
	return e.Message
}
