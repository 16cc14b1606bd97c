package queue

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/errs"
)

type sourceKey struct{ nick, target string }
type dirKey struct{ dir, nick string }

// recentSearchCap bounds recentSearched to the last 30 TTHs auto-searched, so the same
// TTH is never re-searched within 30 subsequent cycles (spec.md §4.4, §8).
const recentSearchCap = 30

// Queue is the in-memory, journal-backed download queue (spec.md §4.4).
type Queue struct {
	mu sync.Mutex

	j            *journal
	nextSequence int64

	targets     map[string]*Target          // by target_filename
	sources     map[sourceKey]*Source       // by (nick, target_filename)
	byNick      map[string]map[string]bool  // nick -> set of target_filename
	filelists   map[string]*Filelist        // by nick
	directories map[dirKey]*Directory       // by (target_directory, nick)
	tthIndex    map[string]string           // tth -> target_filename

	recentSearched []string // ring buffer, most recent last

	events *bus.Topics
}

// Open replays the journal at workDir/queue2.db (or creates it) and
// returns a ready Queue.
func Open(workDir string, events *bus.Topics) (*Queue, error) {
	path := defaultJournalPath(workDir)
	q := &Queue{
		targets:     make(map[string]*Target),
		sources:     make(map[sourceKey]*Source),
		byNick:      make(map[string]map[string]bool),
		filelists:   make(map[string]*Filelist),
		directories: make(map[dirKey]*Directory),
		tthIndex:    make(map[string]string),
		events:      events,
	}
	if err := replayInto(path, q.apply); err != nil {
		return nil, err
	}
	j, err := openJournal(path)
	if err != nil {
		return nil, err
	}
	q.j = j
	return q, nil
}

// apply reconstructs in-memory state from one journal record, used both at
// startup replay and (implicitly, via the same mutation paths) at runtime.
func (q *Queue) apply(kind recordKind, f []string) error {
	switch kind {
	case recAddTarget:
		if err := requireFields(f, 7, kind); err != nil {
			return err
		}
		t := &Target{
			TargetFilename:  f[0],
			TTH:             f[1],
			TargetDirectory: f[2],
			Size:            parseInt64(f[3]),
			Priority:        parseInt(f[4]),
			Ctime:           parseInt64(f[5]),
			Sequence:        parseInt64(f[6]),
			Flags:           TargetFlags(parseInt(fieldOr(f, 7, "0"))),
		}
		q.targets[t.TargetFilename] = t
		if t.TTH != "" {
			q.tthIndex[t.TTH] = t.TargetFilename
		}
		if t.Sequence >= q.nextSequence {
			q.nextSequence = t.Sequence + 1
		}
	case recRemoveTarget:
		if t, ok := q.targets[f[0]]; ok {
			delete(q.tthIndex, t.TTH)
			delete(q.targets, f[0])
			for k := range q.sources {
				if k.target == f[0] {
					delete(q.sources, k)
					delete(q.byNick[k.nick], f[0])
				}
			}
		}
	case recAddSource:
		if err := requireFields(f, 3, kind); err != nil {
			return err
		}
		s := &Source{TargetFilename: f[0], Nick: f[1], SourceFilename: f[2]}
		q.sources[sourceKey{nick: s.Nick, target: s.TargetFilename}] = s
		if q.byNick[s.Nick] == nil {
			q.byNick[s.Nick] = make(map[string]bool)
		}
		q.byNick[s.Nick][s.TargetFilename] = true
	case recRemoveSource:
		if err := requireFields(f, 2, kind); err != nil {
			return err
		}
		delete(q.sources, sourceKey{nick: f[1], target: f[0]})
		delete(q.byNick[f[1]], f[0])
	case recAddFilelist:
		if err := requireFields(f, 3, kind); err != nil {
			return err
		}
		q.filelists[f[0]] = &Filelist{Nick: f[0], Priority: parseInt(f[1]), Flags: TargetFlags(parseInt(f[2]))}
	case recRemoveFilelist:
		delete(q.filelists, f[0])
	case recAddDirectory:
		if err := requireFields(f, 5, kind); err != nil {
			return err
		}
		d := &Directory{
			TargetDirectory: f[0], Nick: f[1], SourceDirectory: f[2],
			Flags: TargetFlags(parseInt(f[3])), NFiles: parseInt(f[4]),
		}
		d.NLeft = d.NFiles
		q.directories[dirKey{dir: d.TargetDirectory, nick: d.Nick}] = d
	case recRemoveDirectory:
		delete(q.directories, dirKey{dir: f[0], nick: f[1]})
	case recSetResolved:
		if d, ok := q.directories[dirKey{dir: f[0], nick: f[1]}]; ok {
			d.Flags |= FlagResolved
		}
	case recSetPriority:
		if t, ok := q.targets[f[0]]; ok {
			t.Priority = parseInt(f[1])
		}
	}
	return nil
}

// Close compacts the journal to a snapshot (spec.md §4.4 close()).
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	path := q.j.path
	if err := q.j.close(); err != nil {
		return err
	}
	return compactTo(path, func(w func(kind recordKind, fields ...string) error) error {
		for _, t := range q.targets {
			if err := w(recAddTarget, t.TargetFilename, t.TTH, t.TargetDirectory,
				itoa64(t.Size), itoa(t.Priority), itoa64(t.Ctime), itoa64(t.Sequence), itoa(int(t.Flags))); err != nil {
				return err
			}
		}
		for _, s := range q.sources {
			if err := w(recAddSource, s.TargetFilename, s.Nick, s.SourceFilename); err != nil {
				return err
			}
		}
		for _, fl := range q.filelists {
			if err := w(recAddFilelist, fl.Nick, itoa(fl.Priority), itoa(int(fl.Flags))); err != nil {
				return err
			}
		}
		for _, d := range q.directories {
			if err := w(recAddDirectory, d.TargetDirectory, d.Nick, d.SourceDirectory, itoa(int(d.Flags)), itoa(d.NFiles)); err != nil {
				return err
			}
			if d.resolved() {
				if err := w(recSetResolved, d.TargetDirectory, d.Nick); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }
func itoa(v int) string     { return strconv.FormatInt(int64(v), 10) }

// uniqueTargetName appends "-1", "-2", ... to base until it is unused.
func (q *Queue) uniqueTargetName(base string) string {
	if _, exists := q.targets[base]; !exists {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := stem + "-" + itoa(n) + ext
		if _, exists := q.targets[candidate]; !exists {
			return candidate
		}
	}
}

// Add implements queue_add (spec.md §4.4). size==0 is ignored unless this
// is a filelist add (handled by AddFilelist instead).
func (q *Queue) Add(nick, sourceFilename string, size int64, targetFilename, tth string) (*Target, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if size == 0 {
		return nil, errs.Wrap(errs.Config, errors.New("zero-size downloads are ignored"), targetFilename)
	}

	var target *Target
	if tth != "" {
		if existing, ok := q.tthIndex[tth]; ok {
			target = q.targets[existing]
		}
	}
	if target == nil {
		for _, t := range q.targets {
			if t.TargetFilename == targetFilename && t.Size == size && t.TTH == "" {
				target = t
				break
			}
		}
	}

	if target == nil {
		name := q.uniqueTargetName(targetFilename)
		target = &Target{
			TargetFilename: name,
			TTH:            tth,
			Size:           size,
			Priority:       3,
			Ctime:          time.Now().Unix(),
			Sequence:       q.nextSequence,
		}
		q.nextSequence++
		q.targets[name] = target
		if tth != "" {
			q.tthIndex[tth] = name
		}
		if err := q.j.append(recAddTarget, name, tth, "", itoa64(size), "3", itoa64(target.Ctime), itoa64(target.Sequence), "0"); err != nil {
			return nil, err
		}
		q.events.QueueAddTarget.Publish(bus.QueueAddTarget{TargetFilename: name, TTH: tth, Size: size, Priority: 3})
	}

	key := sourceKey{nick: nick, target: target.TargetFilename}
	if _, exists := q.sources[key]; !exists {
		q.sources[key] = &Source{TargetFilename: target.TargetFilename, Nick: nick, SourceFilename: sourceFilename}
		if q.byNick[nick] == nil {
			q.byNick[nick] = make(map[string]bool)
		}
		q.byNick[nick][target.TargetFilename] = true
		if err := q.j.append(recAddSource, target.TargetFilename, nick, sourceFilename); err != nil {
			return nil, err
		}
		q.events.QueueAddSource.Publish(bus.QueueAddSource{TargetFilename: target.TargetFilename, Nick: nick, SourceFilename: sourceFilename})
	}
	return target, nil
}

// AddFilelist implements queue_add_filelist (spec.md §4.4).
func (q *Queue) AddFilelist(nick string, autoMatched bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	fl, exists := q.filelists[nick]
	if !exists {
		flags := TargetFlags(0)
		if autoMatched {
			flags |= FlagAutoMatched
		}
		q.filelists[nick] = &Filelist{Nick: nick, Priority: 3, Flags: flags}
		return q.j.append(recAddFilelist, nick, "3", itoa(int(flags)))
	}
	if !autoMatched && fl.Flags&FlagAutoMatched != 0 {
		fl.Flags &^= FlagAutoMatched
		return q.j.append(recAddFilelist, nick, itoa(fl.Priority), itoa(int(fl.Flags)))
	}
	return nil
}

// DirectoryFile is one entry the filelist resolver supplies when expanding
// a directory download (spec.md §4.4 queue_add_directory).
type DirectoryFile struct {
	SourceFilename string
	TargetFilename string
	Size           int64
	TTH            string
}

// AddDirectory implements queue_add_directory. If files is non-nil the
// peer's filelist is already parsed and the directory resolves
// immediately; otherwise it is recorded unresolved and a filelist record
// for nick is queued (if absent) so a future ResolveDirectory() call can
// finish the job.
func (q *Queue) AddDirectory(nick, targetDirectory, sourceDirectory string, autoMatched bool, files []DirectoryFile) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	flags := TargetFlags(0)
	if autoMatched {
		flags |= FlagAutoMatched
	}
	d := &Directory{TargetDirectory: targetDirectory, Nick: nick, SourceDirectory: sourceDirectory, Flags: flags, NFiles: len(files), NLeft: len(files)}
	q.directories[dirKey{dir: targetDirectory, nick: nick}] = d
	if err := q.j.append(recAddDirectory, targetDirectory, nick, sourceDirectory, itoa(int(flags)), itoa(len(files))); err != nil {
		return err
	}
	if files != nil {
		return q.resolveLocked(d, files)
	}
	if _, exists := q.filelists[nick]; !exists {
		q.filelists[nick] = &Filelist{Nick: nick, Priority: 3}
		return q.j.append(recAddFilelist, nick, "3", "0")
	}
	return nil
}

// ResolveDirectory finishes a pending directory download once the peer's
// filelist has been parsed (invoked by the queue matcher, spec.md §4.8).
func (q *Queue) ResolveDirectory(nick, targetDirectory string, files []DirectoryFile) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.directories[dirKey{dir: targetDirectory, nick: nick}]
	if !ok || d.resolved() {
		return nil
	}
	return q.resolveLocked(d, files)
}

func (q *Queue) resolveLocked(d *Directory, files []DirectoryFile) error {
	d.NFiles = len(files)
	d.NLeft = len(files)
	for _, file := range files {
		name := q.uniqueTargetName(file.TargetFilename)
		target := &Target{
			TargetFilename:  name,
			TTH:             file.TTH,
			TargetDirectory: d.TargetDirectory,
			Size:            file.Size,
			Priority:        3,
			Ctime:           time.Now().Unix(),
			Sequence:        q.nextSequence,
		}
		q.nextSequence++
		q.targets[name] = target
		if file.TTH != "" {
			q.tthIndex[file.TTH] = name
		}
		if err := q.j.append(recAddTarget, name, file.TTH, d.TargetDirectory, itoa64(file.Size), "3", itoa64(target.Ctime), itoa64(target.Sequence), "0"); err != nil {
			return err
		}
		key := sourceKey{nick: d.Nick, target: name}
		q.sources[key] = &Source{TargetFilename: name, Nick: d.Nick, SourceFilename: file.SourceFilename}
		if q.byNick[d.Nick] == nil {
			q.byNick[d.Nick] = make(map[string]bool)
		}
		q.byNick[d.Nick][name] = true
		if err := q.j.append(recAddSource, name, d.Nick, file.SourceFilename); err != nil {
			return err
		}
	}
	d.Flags |= FlagResolved
	return q.j.append(recSetResolved, d.TargetDirectory, d.Nick)
}

// GetNextSourceForNick implements get_next_source_for_nick (spec.md §4.4):
// first any queued, non-active filelist; else any unresolved directory;
// else the best (priority desc, sequence asc) non-active, priority>0
// target among this nick's sources.
func (q *Queue) GetNextSourceForNick(nick string) (*SourceForNick, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if fl, ok := q.filelists[nick]; ok && fl.Flags&FlagActive == 0 {
		return &SourceForNick{IsFilelist: true, TargetFilename: "files.xml.bz2"}, true
	}
	for key, d := range q.directories {
		if key.nick == nick && !d.resolved() {
			return &SourceForNick{IsDirectory: true, TargetDirectory: d.TargetDirectory, SourceFilename: d.SourceDirectory}, true
		}
	}

	var candidates []*Target
	for target := range q.byNick[nick] {
		t := q.targets[target]
		if t != nil {
			candidates = append(candidates, t)
		}
	}
	best := bestCandidate(candidates)
	if best == nil {
		return nil, false
	}
	key := sourceKey{nick: nick, target: best.TargetFilename}
	src := q.sources[key]
	offset := int64(0)
	return &SourceForNick{
		TargetFilename:  best.TargetFilename,
		TTH:             best.TTH,
		Size:            best.Size,
		Offset:          offset,
		SourceFilename:  src.SourceFilename,
		TargetDirectory: best.TargetDirectory,
	}, true
}

// SetActive marks/unmarks a target ACTIVE (caller's responsibility per
// spec.md's "Returns a copy; caller marks ACTIVE via set_active").
func (q *Queue) SetActive(targetFilename string, active bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.targets[targetFilename]; ok {
		t.setActive(active)
	}
}

// SetPriority implements set-priority; priority 0 pauses the target.
func (q *Queue) SetPriority(targetFilename string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.targets[targetFilename]
	if !ok {
		return errs.Wrap(errs.Unavailable, errors.New("no such target"), targetFilename)
	}
	t.Priority = priority
	return q.j.append(recSetPriority, targetFilename, itoa(priority))
}

// RemoveTarget removes a target and its sources, and removes its owning
// directory record when the last file finishes (spec.md §4.4). movePartial
// is accepted but not acted on: no directory tree is moved in either mode.
func (q *Queue) RemoveTarget(targetFilename string, movePartial bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.targets[targetFilename]
	if !ok {
		return nil
	}
	delete(q.tthIndex, t.TTH)
	delete(q.targets, targetFilename)
	for key := range q.sources {
		if key.target == targetFilename {
			delete(q.sources, key)
			delete(q.byNick[key.nick], targetFilename)
		}
	}
	if err := q.j.append(recRemoveTarget, targetFilename); err != nil {
		return err
	}
	if t.TargetDirectory == "" {
		return nil
	}
	for key, d := range q.directories {
		if key.dir != t.TargetDirectory {
			continue
		}
		d.NLeft--
		if d.NLeft <= 0 {
			delete(q.directories, key)
			if err := q.j.append(recRemoveDirectory, d.TargetDirectory, d.Nick); err != nil {
				return err
			}
			_ = movePartial // no filesystem move is performed here or by callers
		}
	}
	return nil
}

// RemoveSource implements queue-remove-source.
func (q *Queue) RemoveSource(nick, targetFilename string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.sources, sourceKey{nick: nick, target: targetFilename})
	delete(q.byNick[nick], targetFilename)
	return q.j.append(recRemoveSource, targetFilename, nick)
}

// RemoveNick drops every source from nick (queue-remove-nick).
func (q *Queue) RemoveNick(nick string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for target := range q.byNick[nick] {
		delete(q.sources, sourceKey{nick: nick, target: target})
		if err := q.j.append(recRemoveSource, target, nick); err != nil {
			return err
		}
	}
	delete(q.byNick, nick)
	return nil
}

// RemoveFilelist implements queue-remove-filelist.
func (q *Queue) RemoveFilelist(nick string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.filelists, nick)
	return q.j.append(recRemoveFilelist, nick)
}

// RemoveDirectory implements queue-remove-directory.
func (q *Queue) RemoveDirectory(targetDirectory, nick string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.directories, dirKey{dir: targetDirectory, nick: nick})
	return q.j.append(recRemoveDirectory, targetDirectory, nick)
}

// AutoSearchCandidate implements the auto-search picker (spec.md §4.4):
// the single target most in need, excluding TTHs searched in the last 30
// cycles. Returns ok==false if nothing qualifies.
func (q *Queue) AutoSearchCandidate() (tth string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	recent := make(map[string]bool, len(q.recentSearched))
	for _, t := range q.recentSearched {
		recent[t] = true
	}
	var candidates []*Target
	for _, t := range q.targets {
		if t.TTH == "" || recent[t.TTH] {
			continue
		}
		candidates = append(candidates, t)
	}
	best := mostInNeed(candidates)
	if best == nil {
		return "", false
	}
	q.recentSearched = append(q.recentSearched, best.TTH)
	if len(q.recentSearched) > recentSearchCap {
		q.recentSearched = q.recentSearched[len(q.recentSearched)-recentSearchCap:]
	}
	return best.TTH, true
}

// AddSourceForTTH adds nick as a source for whichever target currently
// claims tth, used by both live search-response matching and filelist
// matching (spec.md §4.8). Returns false if no target claims that TTH.
func (q *Queue) AddSourceForTTH(tth, nick, sourceFilename string, size int64) (target string, matched bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	name, ok := q.tthIndex[tth]
	if !ok {
		return "", false
	}
	t := q.targets[name]
	if t.Size != size {
		return "", false
	}
	key := sourceKey{nick: nick, target: name}
	if _, exists := q.sources[key]; !exists {
		q.sources[key] = &Source{TargetFilename: name, Nick: nick, SourceFilename: sourceFilename}
		if q.byNick[nick] == nil {
			q.byNick[nick] = make(map[string]bool)
		}
		q.byNick[nick][name] = true
		_ = q.j.append(recAddSource, name, nick, sourceFilename)
	}
	return name, true
}

// TargetCount returns the number of queued targets.
func (q *Queue) TargetCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.targets)
}

// TargetDirectoryOf reports the owning directory of a target, if any, and
// whether the match came from a directory download (used by the matcher to
// decide whether to auto-queue the peer's filelist).
func (q *Queue) TargetDirectoryOf(targetFilename string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.targets[targetFilename]
	if !ok || t.TargetDirectory == "" {
		return "", false
	}
	return t.TargetDirectory, true
}
