// Package queue implements the persistent download queue: an append-only
// log of target/source/filelist/directory mutations plus in-memory indices
// (spec.md §4.4).
//
// Grounded on backend/cache/storage_persistent.go's append-only journal +
// atomic-rename compaction shape (there built on bbolt buckets; here a flat
// tab-separated record log, since spec.md standardizes on "append-only
// logs with periodic compaction" per the design note in §9 rather than a DB
// environment). The in-memory maps are rebuilt from the log on startup, the
// same way the teacher rebuilds its maps from the bolt root bucket in
// connect(). Priority+sequence ordering is computed with a
// github.com/aalpar/deheap heap built fresh from those maps on each
// selection call (candidates.go).
package queue

// TargetFlags are bit flags on a queue target.
type TargetFlags int

const (
	FlagActive TargetFlags = 1 << iota
	FlagAutoMatched
	FlagResolved
)

// Target is a (target_filename, tth, target_directory, size, flags, ctime,
// priority, sequence) tuple (spec.md §3 "Queue target"). Identity is
// TargetFilename.
type Target struct {
	TargetFilename  string
	TTH             string
	TargetDirectory string // empty if not part of a directory download
	Size            int64
	Flags           TargetFlags
	Ctime           int64
	Priority        int // 0..5; 0 means paused
	Sequence        int64
}

func (t *Target) active() bool  { return t.Flags&FlagActive != 0 }
func (t *Target) setActive(v bool) {
	if v {
		t.Flags |= FlagActive
	} else {
		t.Flags &^= FlagActive
	}
}

// Source is a (target_filename, nick, source_filename) tuple. Identity is
// (Nick, TargetFilename).
type Source struct {
	TargetFilename string
	Nick           string
	SourceFilename string
}

// Filelist is a (nick, flags, priority) tuple. Identity is Nick.
type Filelist struct {
	Nick     string
	Flags    TargetFlags
	Priority int
}

// Directory is a (target_directory, nick, source_directory, flags, nfiles,
// nleft) tuple. Identity is (TargetDirectory, Nick).
type Directory struct {
	TargetDirectory string
	Nick            string
	SourceDirectory string
	Flags           TargetFlags
	NFiles          int
	NLeft           int
}

func (d *Directory) resolved() bool { return d.Flags&FlagResolved != 0 }

// SourceForNick is what get_next_source_for_nick returns: a self-contained
// description of the next thing to fetch from nick.
type SourceForNick struct {
	IsFilelist     bool
	IsDirectory    bool
	TargetFilename string
	TTH            string
	Size           int64
	Offset         int64
	SourceFilename string
	TargetDirectory string
}
