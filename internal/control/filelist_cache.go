package control

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shakespeer/sphubd/internal/config"
)

// filelistStaleAge is how old a cached peer filelist may get before it is
// pruned on scan (spec.md §4.9, §6: "stale ones, older than 24 h ... are
// deleted on-scan").
const filelistStaleAge = 24 * time.Hour

// isCachedFilelist matches the two on-disk cached-filelist naming
// schemes (spec.md §6): "files.xml.<nick>.bz2" and "MyList.<nick>.DcLst".
func isCachedFilelist(name string) bool {
	return strings.HasPrefix(name, "files.xml.") && strings.HasSuffix(name, ".bz2") ||
		strings.HasPrefix(name, "MyList.") && strings.HasSuffix(name, ".DcLst")
}

// PruneStaleFilelists deletes cached peer filelists in workDir older than
// filelistStaleAge, and returns the filenames (not full paths) still on
// disk afterward, for the "stored-filelists" event.
func PruneStaleFilelists(workDir string, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, err
	}
	var remaining []string
	for _, e := range entries {
		if e.IsDir() || !isCachedFilelist(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > filelistStaleAge {
			path := filepath.Join(workDir, e.Name())
			if err := os.Remove(path); err != nil {
				config.Debugf(nil, "prune stale filelist %s: %v", path, err)
				continue
			}
			continue
		}
		remaining = append(remaining, e.Name())
	}
	return remaining, nil
}
