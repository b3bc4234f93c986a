package inventory

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

type bundleInfo struct {
	Identifier  string `plist:"CFBundleIdentifier"`
	Name        string `plist:"CFBundleName"`
	DisplayName string `plist:"CFBundleDisplayName"`
}

// ReadBundle reads Contents/Info.plist of an application bundle. The name
// falls back to the bundle directory name when the plist does not carry one.
func ReadBundle(bundlePath string) (Application, error) {
	app := Application{
		BundlePath: bundlePath,
		Name:       strings.TrimSuffix(filepath.Base(bundlePath), ".app"),
	}

	data, err := os.ReadFile(filepath.Join(bundlePath, "Contents", "Info.plist"))
	if err != nil {
		return app, fmt.Errorf("failed to read bundle info: %w", err)
	}

	var info bundleInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return app, fmt.Errorf("failed to parse bundle info %s: %w", bundlePath, err)
	}

	app.BundleID = info.Identifier
	switch {
	case info.DisplayName != "":
		app.Name = info.DisplayName
	case info.Name != "":
		app.Name = info.Name
	}

	return app, nil
}

// ReadDesktopEntry reads a freedesktop .desktop file. The file stem acts as
// the bundle identifier, e.g. org.mozilla.firefox.desktop.
func ReadDesktopEntry(path string) (Application, error) {
	app := Application{
		BundlePath: path,
		BundleID:   strings.TrimSuffix(filepath.Base(path), ".desktop"),
	}
	app.Name = app.BundleID

	f, err := os.Open(path)
	if err != nil {
		return app, fmt.Errorf("failed to read desktop entry: %w", err)
	}
	defer f.Close()

	inEntry := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		if name, ok := strings.CutPrefix(line, "Name="); ok && name != "" {
			app.Name = name
			break
		}
	}

	return app, scanner.Err()
}

// LoadApplications lists the .app bundles (and .desktop entries on Linux)
// directly inside dirs. Missing directories are skipped; an unreadable
// Info.plist still yields the application under its directory name so the
// owner is never lost.
func LoadApplications(dirs []string) ([]Application, error) {
	var apps []Application
	seen := make(map[string]bool)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if os.IsPermission(err) {
				continue
			}
			return apps, fmt.Errorf("failed to read %s: %w", dir, err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}

			bundlePath := filepath.Join(dir, name)
			if seen[bundlePath] {
				continue
			}

			switch {
			case strings.HasSuffix(name, ".app"):
				app, _ := ReadBundle(bundlePath)
				apps = append(apps, app)
			case strings.HasSuffix(name, ".desktop") && !entry.IsDir():
				app, _ := ReadDesktopEntry(bundlePath)
				apps = append(apps, app)
			default:
				continue
			}
			seen[bundlePath] = true
		}
	}

	return apps, nil
}

// bundleForExecutable returns the enclosing .app bundle of an executable
// path such as /Applications/Slack.app/Contents/MacOS/Slack.
func bundleForExecutable(exe string) (string, bool) {
	idx := strings.Index(exe, ".app/Contents/")
	if idx < 0 {
		return "", false
	}
	return exe[:idx+len(".app")], true
}
