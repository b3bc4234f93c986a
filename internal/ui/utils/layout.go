package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fenilsonani/reclaim/internal/ui/styles"
)

const (
	// MinTerminalWidth is the minimum recommended terminal width
	MinTerminalWidth = 80
	// MinTerminalHeight is the minimum recommended terminal height
	MinTerminalHeight = 24
)

// TruncatePath shortens path to maxWidth, keeping the file name and as much
// of the trailing directory as fits
func TruncatePath(path string, maxWidth int) string {
	if len(path) <= maxWidth {
		return path
	}
	if maxWidth < 10 {
		return "..."
	}

	dir, file := filepath.Split(path)
	if len(file) > maxWidth-4 {
		return "..." + file[len(file)-(maxWidth-4):]
	}

	available := maxWidth - len(file) - 3
	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if available <= 1 {
		return "..." + file
	}
	return "..." + dir[len(dir)-(available-1):] + string(filepath.Separator) + file
}

// CalculatePageSize returns how many list rows fit below the header and
// above the footer
func CalculatePageSize(terminalHeight int) int {
	const reservedLines = 12
	return max(terminalHeight-reservedLines, 5)
}

// IsTerminalTooSmall checks if the terminal is below minimum recommended size
func IsTerminalTooSmall(width, height int) bool {
	return width < MinTerminalWidth || height < MinTerminalHeight
}

// GetSizeWarningBanner returns a warning banner if terminal is too small
func GetSizeWarningBanner(width, height int) string {
	if width == 0 && height == 0 {
		return ""
	}
	if !IsTerminalTooSmall(width, height) {
		return ""
	}

	warning := "Terminal too small! Recommended: 80x24 or larger" +
		styles.DimStyle.Render(fmt.Sprintf(" (current: %dx%d)", width, height))
	return styles.WarningStyle.Render(warning) + "\n\n"
}

// TruncateString truncates a string to maxLen, adding ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
