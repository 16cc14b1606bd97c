package queue

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/shakespeer/sphubd/internal/errs"
)

// recordKind tags each journal line, per spec.md §4.4.
type recordKind string

const (
	recAddTarget    recordKind = "+T"
	recRemoveTarget recordKind = "-T"
	recAddSource    recordKind = "+S"
	recRemoveSource recordKind = "-S"
	recAddFilelist  recordKind = "+F"
	recRemoveFilelist recordKind = "-F"
	recAddDirectory recordKind = "+D"
	recRemoveDirectory recordKind = "-D"
	recSetResolved  recordKind = "=R"
	recSetPriority  recordKind = "=P"
)

// journal is the append-only mutation log backing the queue (spec.md's
// queue2.db). Each line is tab-separated: "<kind>\t<field>\t<field>...".
type journal struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func openJournal(path string) (*journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, err, "opening queue journal")
	}
	return &journal{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (j *journal) append(kind recordKind, fields ...string) error {
	line := string(kind)
	for _, f := range fields {
		line += "\t" + strings.ReplaceAll(f, "\t", " ")
	}
	if _, err := j.w.WriteString(line + "\n"); err != nil {
		return errs.Wrap(errs.Fatal, err, "appending to queue journal")
	}
	return j.w.Flush()
}

func (j *journal) close() error {
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.f.Close()
}

// replayInto reads every record in the journal, in order, calling apply for
// each. Used both at startup and to verify compaction (spec.md §8: replay
// then compact then replay yields an identical queue).
func replayInto(path string, apply func(kind recordKind, fields []string) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Fatal, err, "opening queue journal for replay")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) == 0 {
			continue
		}
		if err := apply(recordKind(fields[0]), fields[1:]); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// compactTo rewrites a fresh journal at path from the current in-memory
// state, via an atomic tmpfile rename (spec.md §4.4 close()).
func compactTo(path string, emit func(w func(kind recordKind, fields ...string) error) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.Fatal, err, "creating compacted queue journal")
	}
	w := bufio.NewWriter(f)
	writeFn := func(kind recordKind, fields ...string) error {
		line := string(kind)
		for _, field := range fields {
			line += "\t" + strings.ReplaceAll(field, "\t", " ")
		}
		_, err := w.WriteString(line + "\n")
		return err
	}
	if err := emit(writeFn); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errs.Wrap(errs.Fatal, err, "flushing compacted queue journal")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errs.Wrap(errs.Fatal, err, "syncing compacted queue journal")
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.Fatal, err, "closing compacted queue journal")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Wrap(errs.Fatal, err, "renaming compacted queue journal into place")
	}
	return nil
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func fieldOr(fields []string, i int, def string) string {
	if i < len(fields) {
		return fields[i]
	}
	return def
}

func requireFields(fields []string, n int, kind recordKind) error {
	if len(fields) < n {
		return errors.Wrapf(errors.New("short record"), "record %s wants %d fields, got %d", kind, n, len(fields))
	}
	return nil
}

func defaultJournalPath(workDir string) string {
	return filepath.Join(workDir, "queue2.db")
}
