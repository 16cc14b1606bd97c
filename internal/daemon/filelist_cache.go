package daemon

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/shakespeer/sphubd/internal/control"
)

// filelistRequestDebounce bounds how often an auto-matched queue target can
// re-trigger a filelist fetch for the same nick (spec.md §4.8's matcher can
// see the same nick in many search responses in a row); grounded on
// backend/cache's plex.go stateCache usage (cache.New(ttl, cleanupInterval)).
const filelistRequestDebounce = 10 * time.Minute

func newFilelistRequestCache() *gocache.Cache {
	return gocache.New(filelistRequestDebounce, time.Minute)
}

// pruneFilelists drops stale cached peer filelists from the work directory
// (spec.md §6: "expire after 24 h") and tells attached frontends the
// resulting set, matching the accept-time push's "stored-filelists" list.
func (dc *Context) pruneFilelists() {
	remaining, err := control.PruneStaleFilelists(dc.Cfg.WorkDir, time.Now())
	if err != nil {
		return
	}
	if dc.Control != nil {
		dc.Control.Broadcast(control.Event{Name: control.EvtStoredFilelists, Fields: remaining})
	}
}
