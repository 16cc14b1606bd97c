package daemon

// rescanShare re-enqueues every currently registered mountpoint for a fresh
// scan (spec.md §5: "share rescan (configurable, default 3600 s)"). The
// scanner's Enqueue skips a mountpoint whose ScanState is still ScanRunning.
func (dc *Context) rescanShare() {
	for _, h := range dc.Share.Handles() {
		dc.Scan.Enqueue(h)
	}
}
