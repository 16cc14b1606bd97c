package daemon

// refreshMetrics pushes current gauge values from the share index, queue,
// and slot manager into the Prometheus registry (SPEC_FULL.md §2 ambient
// stack: "Metrics"), piggybacking on the checkpoint timer's cadence.
func (dc *Context) refreshMetrics() {
	dc.Metrics.SlotsUsed.Set(float64(dc.SlotMgr.Used()))
	dc.Metrics.SlotsTotal.Set(float64(dc.SlotMgr.Total()))
	dc.Metrics.QueueTargets.Set(float64(dc.Queue.TargetCount()))

	var files int
	var bytes int64
	for _, s := range dc.Share.Stats() {
		files += s.NumFiles
		bytes += s.TotalBytes
	}
	dc.Metrics.ShareFiles.Set(float64(files))
	dc.Metrics.ShareBytes.Set(float64(bytes))
}
