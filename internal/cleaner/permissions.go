package cleaner

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// PermissionManager predicts whether the current user can remove a path.
// Dry-run sweeps use it in place of an actual remove call.
type PermissionManager struct {
	uid    int
	groups map[int]bool
}

// NewPermissionManager creates a PermissionManager for the current process
func NewPermissionManager() *PermissionManager {
	pm := &PermissionManager{
		uid:    os.Geteuid(),
		groups: map[int]bool{os.Getegid(): true},
	}
	if gids, err := os.Getgroups(); err == nil {
		for _, gid := range gids {
			pm.groups[gid] = true
		}
	}
	return pm
}

// CanDelete reports whether path can be unlinked without elevation. The
// path itself must exist; removal depends on write and search permission
// on the parent directory, plus ownership when the parent is sticky.
func (pm *PermissionManager) CanDelete(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	if pm.uid == 0 {
		return true, nil
	}

	parent := filepath.Dir(path)
	var pst unix.Stat_t
	if err := unix.Stat(parent, &pst); err != nil {
		return false, &os.PathError{Op: "stat", Path: parent, Err: err}
	}

	var bits uint32
	switch {
	case int(pst.Uid) == pm.uid:
		bits = (uint32(pst.Mode) >> 6) & 07
	case pm.groups[int(pst.Gid)]:
		bits = (uint32(pst.Mode) >> 3) & 07
	default:
		bits = uint32(pst.Mode) & 07
	}
	// write + search on the parent
	if bits&03 != 03 {
		return false, nil
	}

	if uint32(pst.Mode)&unix.S_ISVTX != 0 {
		return int(st.Uid) == pm.uid || int(pst.Uid) == pm.uid, nil
	}
	return true, nil
}

// RequiresElevation checks if a path requires elevated permissions to delete
func (pm *PermissionManager) RequiresElevation(path string) bool {
	canDelete, err := pm.CanDelete(path)
	if err != nil {
		return !os.IsNotExist(err)
	}
	return !canDelete
}

// IsSpecialFile reports device, socket and pipe entries. Symlinks are not
// followed: the link itself is what a sweep removes.
func IsSpecialFile(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeCharDevice != 0:
		return true, fmt.Errorf("is a character device")
	case mode&os.ModeDevice != 0:
		return true, fmt.Errorf("is a device file")
	case mode&os.ModeSocket != 0:
		return true, fmt.Errorf("is a socket")
	case mode&os.ModeNamedPipe != 0:
		return true, fmt.Errorf("is a named pipe (FIFO)")
	}

	return false, nil
}
