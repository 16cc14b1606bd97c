//go:build windows

package share

import "os"

// Windows file IDs aren't exposed through os.FileInfo without a separate
// GetFileInformationByHandle call (see backend/local/stat_windows.go); we
// fall back to 0, which still lets size-change invalidation work via the
// high 32 bits of the composite Inode.
func platformInode(info os.FileInfo) uint64 {
	return 0
}
