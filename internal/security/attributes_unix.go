//go:build unix && !darwin

package security

import "golang.org/x/sys/unix"

// Inspect implements AttributeInspector. Linux has no restricted flag.
func (SystemInspector) Inspect(path string) (Attributes, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Attributes{}, err
	}
	return Attributes{UID: st.Uid}, nil
}
