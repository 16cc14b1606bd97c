// Package match implements the queue matcher: turning search responses and
// parsed filelists into queue sources (spec.md §4.8).
//
// Grounded on internal/share's cooperative per-tick scan loop (scan.go),
// reused here for incremental filelist matching instead of filesystem
// walking, and on backend/union's multi-upstream lookup idiom for combining
// a queue's TTH index with a stream of incoming entries.
package match

import (
	"github.com/shakespeer/sphubd/internal/bus"
)

// QueueSource is the subset of *queue.Queue this package depends on, kept
// narrow to avoid an import cycle (queue has no reason to know about
// search or filelists).
type QueueSource interface {
	AddSourceForTTH(tth, nick, sourceFilename string, size int64) (target string, matched bool)
	TargetDirectoryOf(targetFilename string) (string, bool)
}

// FilelistFetcher requests a peer's filelist be downloaded for further
// auto-matching once a directory-download source is found via auto-search.
type FilelistFetcher interface {
	RequestFilelist(nick string, autoMatched bool)
}

// Entry is one file inside a parsed filelist, ready to be matched.
type Entry struct {
	Path string
	TTH  string
	Size int64
}

// Matcher drives both input streams named in spec.md §4.8.
type Matcher struct {
	queue    QueueSource
	fetcher  FilelistFetcher
	events   *bus.Topics
}

// NewMatcher returns a Matcher wired to the queue and filelist fetcher.
func NewMatcher(queue QueueSource, fetcher FilelistFetcher, events *bus.Topics) *Matcher {
	return &Matcher{queue: queue, fetcher: fetcher, events: events}
}

// HandleSearchResponse is stream (a): a live $SR. isAutoSearch distinguishes
// an operator-issued search (never triggers a filelist fetch) from the
// daemon's own auto-search (which may, for directory downloads).
func (m *Matcher) HandleSearchResponse(nick, filename, tth string, size int64, isAutoSearch bool) {
	if tth == "" {
		return
	}
	target, matched := m.queue.AddSourceForTTH(tth, nick, filename, size)
	if !matched {
		return
	}
	if !isAutoSearch {
		return
	}
	if _, inDirectory := m.queue.TargetDirectoryOf(target); inDirectory {
		m.fetcher.RequestFilelist(nick, true)
	}
}

// filelistBatchSize bounds how many entries StreamFilelist consumes per
// call, mirroring internal/share.Scanner's cooperative per-tick batching so
// a large filelist never blocks the event loop for long.
const filelistBatchSize = 50

// FilelistStream is stream (b)'s cooperative cursor over one peer's parsed
// filelist.
type FilelistStream struct {
	nick    string
	entries []Entry
	pos     int
}

// NewFilelistStream returns a cursor over a freshly parsed filelist.
func NewFilelistStream(nick string, entries []Entry) *FilelistStream {
	return &FilelistStream{nick: nick, entries: entries}
}

// Done reports whether every entry has been matched.
func (s *FilelistStream) Done() bool { return s.pos >= len(s.entries) }

// Tick matches up to filelistBatchSize further entries against the queue,
// returning how many were consumed.
func (m *Matcher) Tick(s *FilelistStream) int {
	n := 0
	for n < filelistBatchSize && !s.Done() {
		e := s.entries[s.pos]
		s.pos++
		n++
		if e.TTH == "" {
			continue
		}
		m.queue.AddSourceForTTH(e.TTH, s.nick, e.Path, e.Size)
	}
	return n
}
