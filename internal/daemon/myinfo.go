package daemon

import (
	"time"

	"github.com/shakespeer/sphubd/internal/hub"
)

// broadcastDueMyInfo checks every hub's coalescer and, for any hub whose
// window has elapsed, formats the current MyINFO state and queues it to
// that hub's outbox for the connection goroutine to flush (spec.md §4.5).
func (dc *Context) broadcastDueMyInfo() {
	now := time.Now()
	shareSize := dc.totalShareSize()
	for _, h := range dc.Hubs {
		state, ok := h.MyInfo.Due(now)
		if !ok {
			continue
		}
		state.ShareSize = shareSize
		h.QueueWrite(hub.FormatMyInfo(state))
	}
}

// setScanBusy propagates the scanner's running state to every hub's
// coalescer, suppressing MyINFO broadcasts while a scan is in progress
// (spec.md §4.5: coalescing is "suppressed during scans").
func (dc *Context) setScanBusy(busy bool) {
	for _, h := range dc.Hubs {
		h.MyInfo.SetScanBusy(busy)
	}
}

func (dc *Context) totalShareSize() int64 {
	var total int64
	for _, s := range dc.Share.Stats() {
		total += s.TotalBytes
	}
	return total
}
