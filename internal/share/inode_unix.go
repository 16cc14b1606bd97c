//go:build !windows

package share

import (
	"os"
	"syscall"
)

// platformInode extracts the filesystem inode number, the low half of the
// composite Inode identifier (spec.md §3). Grounded on
// backend/local/stat_unix.go's use of syscall.Stat_t.
func platformInode(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Ino)
	}
	return 0
}
