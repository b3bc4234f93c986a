//go:build linux

package scanner

import (
	"time"

	"golang.org/x/sys/unix"
)

// statTimes returns access, modification and birth times without
// following a final symlink. Birth time is zero when the filesystem does
// not record it.
func statTimes(path string) (accessed, modified, created time.Time, err error) {
	var stx unix.Statx_t
	mask := unix.STATX_ATIME | unix.STATX_MTIME | unix.STATX_BTIME
	if err = unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, mask, &stx); err != nil {
		return
	}
	accessed = time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
	modified = time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec))
	if stx.Mask&unix.STATX_BTIME != 0 {
		created = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
	return
}
