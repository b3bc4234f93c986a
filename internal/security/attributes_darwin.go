//go:build darwin

package security

import "golang.org/x/sys/unix"

// sfRestricted is SF_RESTRICTED from <sys/stat.h>
const sfRestricted = 0x00080000

// Inspect implements AttributeInspector
func (SystemInspector) Inspect(path string) (Attributes, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Attributes{}, err
	}
	return Attributes{
		UID:        st.Uid,
		Restricted: st.Flags&sfRestricted != 0,
	}, nil
}
