//go:build !darwin && !linux

package scanner

import (
	"os"
	"time"
)

func statTimes(path string) (accessed, modified, created time.Time, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	modified = info.ModTime()
	return
}
