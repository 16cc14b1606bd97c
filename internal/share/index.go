// Package share implements the share index: enumerates shared directories,
// maps virtual<->local paths, and maintains per-file metadata plus a Bloom
// filter of filenames for search short-circuiting (spec.md §4.1).
//
// Grounded on backend/local/local.go's directory-walk and path-translation
// idioms (dotfile/symlink skip rules, decomposed-UTF-8-internal /
// composed-UTF-8-at-serialization-boundary contract) and on
// backend/union/policy's multi-root name resolution for mountpoint
// collision handling.
package share

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/errs"
)

// TTHLookup is the subset of the TTH store the share index needs; kept as
// an interface so the scanner can be tested without a real bbolt-backed
// store. Method names follow spec.md §4.2 exactly.
type TTHLookup interface {
	// LookupInodeRecord returns the (tth, mtime) record for inode, if any.
	LookupInodeRecord(inode Inode) (tth string, mtime int64, ok bool)
	// LookupTTHEntry returns the active_inode claimed by tth, if any entry
	// exists at all (ok==false means no TTH entry, as opposed to an entry
	// with active_inode==0).
	LookupTTHEntry(tth string) (activeInode Inode, ok bool)
	// RemoveInodeRecord deletes a stale inode record (scan-time repair).
	RemoveInodeRecord(inode Inode) error
	// SetActiveInode transitions a TTH entry's active_inode claim.
	SetActiveInode(tth string, inode Inode) error
}

// Index is the process-global (but here, explicitly owned-by-context, per
// SPEC_FULL.md §9 "global singletons") share index.
type Index struct {
	mu sync.Mutex

	mountpoints []*Mountpoint // arena; index == MountpointHandle
	byVirtual   map[string]MountpointHandle

	files map[fileKey]*ShareFile // live set, hashed and unhashed together
	// inodeBucket indexes share files by inode for duplicate detection
	// within a mountpoint's duplicate-candidate set.
	inodeBucket map[Inode][]fileKey

	filter *nameFilter

	tth TTHLookup

	events *bus.Topics
}

type fileKey struct {
	mount MountpointHandle
	path  string
}

// NewIndex constructs an empty share index.
func NewIndex(tth TTHLookup, events *bus.Topics) *Index {
	return &Index{
		byVirtual:   make(map[string]MountpointHandle),
		files:       make(map[fileKey]*ShareFile),
		inodeBucket: make(map[Inode][]fileKey),
		filter:      newNameFilter(4096),
		tth:         tth,
		events:      events,
	}
}

// deriveVirtualRoot turns a local path's basename into a unique virtual
// root: '$' and '|' (protocol-significant in NMDC) become '_', and a
// "-N" suffix is appended on collision with an already-registered name.
func (idx *Index) deriveVirtualRoot(localRoot string) string {
	base := path.Base(filepath_ToSlash(localRoot))
	base = strings.NewReplacer("$", "_", "|", "_").Replace(base)
	if base == "" || base == "." || base == "/" {
		base = "share"
	}
	candidate := base
	for n := 1; ; n++ {
		if _, exists := idx.byVirtual[candidate]; !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// overlaps reports whether a and b are the same path or one is a
// path-component-granular prefix of the other.
func overlaps(a, b string) bool {
	a, b = path.Clean(a), path.Clean(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(a+"/", b+"/") || strings.HasPrefix(b+"/", a+"/")
}

// AddPath adds localRoot as a new mountpoint, or re-adds it (signalling
// is_rescan) if it is already one, per spec.md §4.1 re-scan semantics.
// incompleteDir is refused as a share root (spec.md §4.1 failure semantics).
func (idx *Index) AddPath(localRoot, incompleteDir string) (MountpointHandle, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	localRoot = path.Clean(filepath_ToSlash(localRoot))
	if incompleteDir != "" && overlaps(localRoot, path.Clean(filepath_ToSlash(incompleteDir))) {
		return -1, errs.Wrap(errs.Config, errors.New("cannot share the incomplete-downloads directory"), localRoot)
	}

	if h, ok := idx.findByLocalRoot(localRoot); ok {
		// Already a mountpoint: remove (signalling is_rescan) and re-add.
		mp := idx.mountpoints[h]
		wasRescan := true
		_ = idx.removeLocked(h, wasRescan)
		return idx.addLocked(localRoot, wasRescan, mp.VirtualRoot)
	}

	for _, mp := range idx.mountpoints {
		if mp == nil {
			continue
		}
		if overlaps(mp.LocalRoot, localRoot) {
			return -1, errs.Wrap(errs.Config, errors.Errorf("overlaps existing mountpoint %s", mp.LocalRoot), localRoot)
		}
	}
	return idx.addLocked(localRoot, false, "")
}

func (idx *Index) addLocked(localRoot string, isRescan bool, preferredVirtual string) (MountpointHandle, error) {
	virtual := preferredVirtual
	if virtual == "" || func() bool { _, ok := idx.byVirtual[virtual]; return ok }() {
		virtual = idx.deriveVirtualRoot(localRoot)
	}
	mp := &Mountpoint{LocalRoot: localRoot, VirtualRoot: virtual, ScanState: ScanQueued, isRescan: isRescan}
	h := MountpointHandle(len(idx.mountpoints))
	idx.mountpoints = append(idx.mountpoints, mp)
	idx.byVirtual[virtual] = h
	return h, nil
}

func (idx *Index) findByLocalRoot(localRoot string) (MountpointHandle, bool) {
	for i, mp := range idx.mountpoints {
		if mp != nil && mp.LocalRoot == localRoot {
			return MountpointHandle(i), true
		}
	}
	return -1, false
}

// RemovePath removes a mountpoint. If it is currently scanning, removal is
// deferred until the scan finishes (spec.md §4.1).
func (idx *Index) RemovePath(localRoot string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	localRoot = path.Clean(filepath_ToSlash(localRoot))
	h, ok := idx.findByLocalRoot(localRoot)
	if !ok {
		return errs.Wrap(errs.Unavailable, errors.New("not a mountpoint"), localRoot)
	}
	return idx.removeLocked(h, false)
}

func (idx *Index) removeLocked(h MountpointHandle, isRescan bool) error {
	mp := idx.mountpoints[h]
	if mp == nil {
		return nil
	}
	if mp.ScanState == ScanRunning {
		mp.pendingRemove = true
		return nil
	}
	idx.events.WillRemoveShare.Publish(bus.DuplicateFound{Mountpoint: mp.VirtualRoot})
	for key := range idx.files {
		if key.mount == h {
			f := idx.files[key]
			delete(idx.inodeBucket, f.Inode)
			delete(idx.files, key)
		}
	}
	delete(idx.byVirtual, mp.VirtualRoot)
	idx.mountpoints[h] = nil
	return nil
}

// TranslateToLocal converts "virtual_root\sub\file" to "local_root/sub/file"
// (spec.md §4.1 Path translation). Returns errs.Unavailable if the virtual
// root is not registered.
func (idx *Index) TranslateToLocal(virtualPath string) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	virtualPath = strings.ReplaceAll(virtualPath, `\`, "/")
	virtualPath = strings.TrimPrefix(virtualPath, "/")
	parts := strings.SplitN(virtualPath, "/", 2)
	root := parts[0]
	h, ok := idx.byVirtual[root]
	if !ok {
		return "", errs.Wrap(errs.Unavailable, errors.New("unknown virtual root"), root)
	}
	mp := idx.mountpoints[h]
	if mp == nil {
		return "", errs.Wrap(errs.Unavailable, errors.New("mountpoint gone"), root)
	}
	if len(parts) == 1 {
		return mp.LocalRoot, nil
	}
	return mp.LocalRoot + "/" + parts[1], nil
}

// TranslateToVirtual composes virtual_root + partial_path, converting
// '/'->'\' for NMDC wire use.
func (idx *Index) TranslateToVirtual(h MountpointHandle, partialPath string) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if int(h) < 0 || int(h) >= len(idx.mountpoints) || idx.mountpoints[h] == nil {
		return "", errs.Wrap(errs.Unavailable, errors.New("mountpoint gone"), "")
	}
	mp := idx.mountpoints[h]
	virtual := mp.VirtualRoot + strings.ReplaceAll(partialPath, "/", `\`)
	return virtual, nil
}

// MayContain reports whether a (casefolded) filename might be shared, for
// search short-circuiting.
func (idx *Index) MayContain(lowerName string) bool {
	return idx.filter.MayContain(lowerName)
}

// Handles returns the handle of every registered (non-removed) mountpoint,
// for callers that need to re-enqueue every mountpoint (e.g. a periodic
// rescan).
func (idx *Index) Handles() []MountpointHandle {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var out []MountpointHandle
	for h, mp := range idx.mountpoints {
		if mp != nil {
			out = append(out, MountpointHandle(h))
		}
	}
	return out
}

// Stats returns a snapshot of per-mountpoint statistics.
func (idx *Index) Stats() []bus.ShareStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]bus.ShareStats, 0, len(idx.mountpoints))
	for _, mp := range idx.mountpoints {
		if mp == nil {
			continue
		}
		out = append(out, bus.ShareStats{
			Mountpoint:    mp.VirtualRoot,
			NumFiles:      mp.Stats.NumFiles,
			NumHashed:     mp.Stats.NumHashed,
			TotalBytes:    mp.Stats.TotalBytes,
			NumDuplicates: mp.Stats.NumDuplicates,
		})
	}
	return out
}

// SortedHashedFiles returns every hashed file in lexicographic
// (mountpoint order, then partial_path) order, for filelist serialization.
// Composed-UTF-8 conversion happens at this boundary only, per spec.md
// §4.1's "decomposed internally, composed at serialization" contract.
func (idx *Index) SortedHashedFiles() []ShareFile {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var out []ShareFile
	for _, f := range idx.files {
		if f.Hashed {
			cp := *f
			cp.PartialPath = norm.NFC.String(cp.PartialPath)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mountpoint != out[j].Mountpoint {
			return out[i].Mountpoint < out[j].Mountpoint
		}
		return out[i].PartialPath < out[j].PartialPath
	})
	return out
}

func filepath_ToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// MatchQuery describes one inbound search, translated from its NMDC wire
// form (spec.md §4.7): either an exact TTH or a set of casefolded words
// every one of which must appear as a substring of the candidate's
// filename, optionally constrained by size.
type MatchQuery struct {
	TTH            string // exact match if non-empty; Words ignored
	Words          []string
	SizeRestricted bool
	AtLeast        bool
	Size           int64
}

// SearchMatch is one share file answering a MatchQuery, ready to become an
// outbound $SR.
type SearchMatch struct {
	VirtualPath string // '\'-separated, mountpoint-rooted
	Size        int64
	TTH         string
}

// searchMaxResults bounds how many hits a single search produces, so a
// broad word query against a large share can't flood a passive search
// reply train.
const searchMaxResults = 5

// Search finds hashed share files matching q (spec.md §8 Scenario 1: a TTH
// search matches a single file exactly; a word search requires every term
// to appear, case-insensitively, as a substring of the filename).
func (idx *Index) Search(q MatchQuery) []SearchMatch {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var out []SearchMatch
	for key, f := range idx.files {
		if !f.Hashed {
			continue
		}
		tth, _, ok := idx.tth.LookupInodeRecord(f.Inode)
		if !ok {
			continue
		}
		if q.TTH != "" {
			if tth != q.TTH {
				continue
			}
		} else if !matchesWords(path.Base(f.PartialPath), q.Words) {
			continue
		}
		if q.SizeRestricted {
			if q.AtLeast && f.Size < q.Size {
				continue
			}
			if !q.AtLeast && f.Size > q.Size {
				continue
			}
		}
		mp := idx.mountpoints[key.mount]
		if mp == nil {
			continue
		}
		out = append(out, SearchMatch{
			VirtualPath: mp.VirtualRoot + strings.ReplaceAll(f.PartialPath, "/", `\`),
			Size:        f.Size,
			TTH:         tth,
		})
		if len(out) >= searchMaxResults {
			break
		}
	}
	return out
}

func matchesWords(name string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	for _, w := range words {
		if !strings.Contains(lower, strings.ToLower(w)) {
			return false
		}
	}
	return true
}
