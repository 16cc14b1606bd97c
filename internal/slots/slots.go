// Package slots persists per-nick extra-upload-slot grants (spec.md §3
// "Extra-slots record", §4.5 slot accounting "bypasses the counter").
//
// Persistence is not append-only: every Grant rewrites the whole table to
// slots2.db through a tmpfile and an atomic rename (the rename step of
// internal/queue's compaction, itself modeled on
// backend/cache/storage_persistent.go).
package slots

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shakespeer/sphubd/internal/errs"
)

// Store is the extra-slots grant table, backed by slots2.db.
type Store struct {
	mu    sync.Mutex
	path  string
	grant map[string]int // nick -> extra_slots
}

// Open replays the extra-slots log at workDir/slots2.db, if present; a
// missing file yields an empty store and is not created here.
func Open(workDir string) (*Store, error) {
	s := &Store{path: filepath.Join(workDir, "slots2.db"), grant: make(map[string]int)}
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, err, "opening extra-slots log")
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 2)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		if n <= 0 {
			delete(s.grant, fields[0])
			continue
		}
		s.grant[fields[0]] = n
	}
	return s, scanner.Err()
}

// Grant sets nick's extra-slot count; a count of 0 deletes the record
// (spec.md §3: "Zero slots deletes the record").
func (s *Store) Grant(nick string, extraSlots int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if extraSlots <= 0 {
		delete(s.grant, nick)
	} else {
		s.grant[nick] = extraSlots
	}
	return s.rewriteLocked()
}

// Has reports whether nick currently holds an extra-slot grant.
func (s *Store) Has(nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grant[nick] > 0
}

// rewriteLocked performs the "normalizing rewrite on close" (spec.md §3):
// every call here is already a full rewrite since the table is tiny, so
// there is no separate append-then-compact phase as in the download queue.
func (s *Store) rewriteLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.Fatal, err, "writing extra-slots log")
	}
	w := bufio.NewWriter(f)
	for nick, n := range s.grant {
		if _, err := w.WriteString(nick + "\t" + strconv.Itoa(n) + "\n"); err != nil {
			_ = f.Close()
			return errs.Wrap(errs.Fatal, err, "writing extra-slots log")
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
