package share

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/config"
)

// batchSize is the number of directories the cooperative scanner walks per
// tick, so the reactor stays responsive (spec.md §4.1, §5: "cooperative
// scan step (0 s)").
const batchSize = 5

// scanJob is the per-mountpoint scan state carried between ticks.
type scanJob struct {
	mount  MountpointHandle
	queue  []string // directories still to visit, FIFO
	result Mountpoint
}

// Scanner drives one or more mountpoint scans a few directories at a time.
type Scanner struct {
	idx    *Index
	events *bus.Topics
	active []*scanJob
}

// NewScanner builds a scanner bound to idx.
func NewScanner(idx *Index, events *bus.Topics) *Scanner {
	return &Scanner{idx: idx, events: events}
}

// Enqueue starts (or resumes) a scan of mountpoint h.
func (s *Scanner) Enqueue(h MountpointHandle) {
	s.idx.mu.Lock()
	mp := s.idx.mountpoints[h]
	if mp == nil || mp.ScanState == ScanRunning {
		s.idx.mu.Unlock()
		return
	}
	mp.ScanState = ScanRunning
	root := mp.LocalRoot
	s.idx.mu.Unlock()
	s.active = append(s.active, &scanJob{mount: h, queue: []string{root}})
}

// Tick processes up to batchSize directories across all active scans and
// reports whether any scan is still in progress (MyINFO coalescing is
// suppressed while this is true, per spec.md §4.5).
func (s *Scanner) Tick(tth TTHLookup) bool {
	budget := batchSize
	remaining := s.active[:0]
	for _, job := range s.active {
		for budget > 0 && len(job.queue) > 0 {
			dir := job.queue[0]
			job.queue = job.queue[1:]
			s.visitDir(job, dir, tth)
			budget--
		}
		if len(job.queue) == 0 {
			s.finish(job)
		} else {
			remaining = append(remaining, job)
		}
	}
	s.active = remaining
	return len(s.active) > 0
}

func (s *Scanner) visitDir(job *scanJob, dir string, tth TTHLookup) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		config.Errorf(dir, "readdir: %v", err)
		return
	}
	s.idx.mu.Lock()
	mp := s.idx.mountpoints[job.mount]
	s.idx.mu.Unlock()
	if mp == nil {
		return
	}
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasPrefix(name, ".") || strings.ContainsAny(name, "$|") {
			continue
		}
		full := dir + "/" + name
		if ent.IsDir() {
			job.queue = append(job.queue, full)
			continue
		}
		if !ent.Type().IsRegular() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			config.Errorf(full, "stat: %v", err)
			continue
		}
		if info.Size() == 0 {
			continue
		}
		s.visitFile(job, mp, full, info, tth)
	}
}

func (s *Scanner) visitFile(job *scanJob, mp *Mountpoint, full string, info os.FileInfo, tth TTHLookup) {
	ino := platformInode(info)
	composite := MakeInode(info.Size(), ino)
	partial := strings.TrimPrefix(full, mp.LocalRoot)
	if !strings.HasPrefix(partial, "/") {
		partial = "/" + partial
	}

	sf := &ShareFile{
		Mountpoint:  job.mount,
		PartialPath: partial,
		FileType:    FileTypeRegular,
		Size:        info.Size(),
		Inode:       composite,
		ModTime:     info.ModTime(),
	}

	recordTTH, mtime, hasRecord := tth.LookupInodeRecord(composite)
	switch {
	case !hasRecord:
		// (a) no inode record -> unhashed
		sf.Hashed = false
	case mtime != info.ModTime().Unix():
		// (b) stale mtime -> repair, unhashed
		_ = tth.RemoveInodeRecord(composite)
		sf.Hashed = false
	default:
		activeInode, hasEntry := tth.LookupTTHEntry(recordTTH)
		switch {
		case !hasEntry:
			// (c) valid inode record, missing TTH entry -> repair
			_ = tth.RemoveInodeRecord(composite)
			sf.Hashed = false
		case activeInode != composite:
			// (d) two live inodes claim the same TTH: first wins
			if activeInode == 0 {
				_ = tth.SetActiveInode(recordTTH, composite)
				sf.Hashed = true
				s.index(job, filepath.Clean(full), sf)
				return
			}
			mp.Stats.NumDuplicates++
			s.events.DuplicateFound.Publish(bus.DuplicateFound{
				Mountpoint:  mp.VirtualRoot,
				PartialPath: sf.PartialPath,
				TTH:         recordTTH,
			})
			return // not exposed in the filelist
		default:
			// (e) valid and consistent
			sf.Hashed = true
		}
	}
	s.index(job, filepath.Clean(full), sf)
}

func (s *Scanner) index(job *scanJob, _ string, sf *ShareFile) {
	s.idx.mu.Lock()
	defer s.idx.mu.Unlock()
	key := fileKey{mount: sf.Mountpoint, path: sf.PartialPath}
	s.idx.files[key] = sf
	s.idx.inodeBucket[sf.Inode] = append(s.idx.inodeBucket[sf.Inode], key)
	// Only the hashed/consistent set feeds the Bloom filter (spec.md §4.1(e)):
	// an unhashed file can't yet answer a search (no TTH to report), so
	// letting it into the filter would only widen false-positive short-
	// circuiting for searches this file can't actually satisfy.
	if sf.Hashed {
		s.idx.filter.Add(strings.ToLower(filepath.Base(sf.PartialPath)))
	}

	mp := s.idx.mountpoints[sf.Mountpoint]
	mp.Stats.NumFiles++
	mp.Stats.TotalBytes += sf.Size
	if sf.Hashed {
		mp.Stats.NumHashed++
	}
}

func (s *Scanner) finish(job *scanJob) {
	s.idx.mu.Lock()
	mp := s.idx.mountpoints[job.mount]
	if mp == nil {
		s.idx.mu.Unlock()
		return
	}
	mp.ScanState = ScanIdle
	deferred := mp.pendingRemove
	stats := mp.Stats
	virtual := mp.VirtualRoot
	s.idx.mu.Unlock()

	s.events.ShareStats.Publish(bus.ShareStats{
		Mountpoint:    virtual,
		NumFiles:      stats.NumFiles,
		NumHashed:     stats.NumHashed,
		TotalBytes:    stats.TotalBytes,
		NumDuplicates: stats.NumDuplicates,
	})

	if deferred {
		_ = s.idx.removeLocked(job.mount, false)
	}
}
