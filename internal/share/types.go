package share

import "time"

// FileType mirrors the coarse type tag carried in filelists and search
// responses.
type FileType int

const (
	FileTypeAny FileType = iota
	FileTypeRegular
	FileTypeDirectory
)

// ScanState tracks whether a mountpoint is idle, queued for a scan, or
// actively being walked by the cooperative scan worker.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanQueued
	ScanRunning
)

// MountpointHandle is an opaque, process-lifetime-scoped arena index; never
// a pointer, per the "intrusive lists" design note (SPEC_FULL.md §9).
type MountpointHandle int

// Mountpoint is a locally rooted shared directory with a unique
// user-visible virtual name (spec.md §3 "Share mountpoint").
type Mountpoint struct {
	LocalRoot  string
	VirtualRoot string
	ScanState  ScanState
	Stats      MountStats

	pendingRemove bool // remove-path arrived while ScanRunning
	isRescan      bool // add-path re-added an existing mountpoint
}

// MountStats are the aggregate counters exposed over the control channel.
type MountStats struct {
	NumFiles      int
	NumHashed     int
	TotalBytes    int64
	NumDuplicates int
}

// Inode is the composite 64-bit identifier from spec.md §3: high 32 bits
// the file size, low 32 bits the filesystem inode number. Composing the
// size in invalidates any cached TTH the instant a file's size changes,
// without needing a separate "dirty" flag.
type Inode uint64

// MakeInode builds the composite identifier.
func MakeInode(size int64, ino uint64) Inode {
	return Inode(uint64(uint32(size))<<32 | uint64(uint32(ino)))
}

// Size extracts the high 32 bits.
func (i Inode) Size() int64 { return int64(uint32(i >> 32)) }

// Ino extracts the low 32 bits.
func (i Inode) Ino() uint64 { return uint64(uint32(i)) }

// ShareFile is a tuple (mountpoint, partial_path, file_type, size, inode)
// per spec.md §3. Identity is (Mountpoint, PartialPath).
type ShareFile struct {
	Mountpoint  MountpointHandle
	PartialPath string // begins with "/"
	FileType    FileType
	Size        int64
	Inode       Inode
	ModTime     time.Time
	Hashed      bool
}
