package daemon

import (
	"strconv"

	"github.com/shakespeer/sphubd/internal/search"
)

// runAutoSearch picks the most in-need queued TTH and dispatches a search
// for it to every connected hub (spec.md §4.4 auto_search_candidate,
// §4.7 dispatch, §5 "auto-search (123 s)"). Auto-search requests register
// with id==-1 so they match last against any concurrent operator-issued
// search (spec.md §4.7).
func (dc *Context) runAutoSearch() {
	if !dc.Cfg.AutoSearchEnabled {
		return
	}
	tth, ok := dc.Queue.AutoSearchCandidate()
	if !ok {
		return
	}
	myIPPort := dc.Cfg.IPAddress + ":" + strconv.Itoa(dc.Cfg.Port)
	for _, h := range dc.Hubs {
		_, wire := search.Dispatch(dc.SearchIDs, dc.Registry, myIPPort, h.Opt.Nick, h.Opt.Passive, true, "", tth, false, false, 0)
		h.QueueWrite(wire)
	}
}
