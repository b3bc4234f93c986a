//go:build darwin

package scanner

import (
	"time"

	"golang.org/x/sys/unix"
)

// statTimes returns access, modification and birth times without
// following a final symlink
func statTimes(path string) (accessed, modified, created time.Time, err error) {
	var st unix.Stat_t
	if err = unix.Lstat(path, &st); err != nil {
		return
	}
	accessed = time.Unix(st.Atim.Unix())
	modified = time.Unix(st.Mtim.Unix())
	created = time.Unix(st.Btim.Unix())
	return
}
