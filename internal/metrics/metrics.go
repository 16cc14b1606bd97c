// Package metrics holds the daemon's byte counters and slot/queue/share
// gauges in a private Prometheus registry (SPEC_FULL.md §2 ambient stack:
// "Metrics"). No control-channel event is built from these values.
//
// Grounded on prometheus/client_golang's registry/collector idiom as used
// across the example pack's instrumented services, adapted to the
// daemon's handful of gauges/counters rather than a full HTTP-request
// instrumentation surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every daemon gauge/counter behind one prometheus
// registerer so callers never touch the global default registry directly.
type Registry struct {
	reg *prometheus.Registry

	SlotsUsed      prometheus.Gauge
	SlotsTotal     prometheus.Gauge
	QueueTargets   prometheus.Gauge
	ShareFiles     prometheus.Gauge
	ShareBytes     prometheus.Gauge
	BytesUploaded  prometheus.Counter
	BytesDownloaded prometheus.Counter
	HashedFiles    prometheus.Counter
}

// New constructs and registers every metric.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.SlotsUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sphubd", Name: "slots_used", Help: "Upload slots currently in use.",
	})
	r.SlotsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sphubd", Name: "slots_total", Help: "Effective total upload slots.",
	})
	r.QueueTargets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sphubd", Name: "queue_targets", Help: "Queued download targets.",
	})
	r.ShareFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sphubd", Name: "share_files", Help: "Indexed share files across all mountpoints.",
	})
	r.ShareBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sphubd", Name: "share_bytes", Help: "Total shared bytes across all mountpoints.",
	})
	r.BytesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sphubd", Name: "bytes_uploaded_total", Help: "Cumulative bytes uploaded to peers.",
	})
	r.BytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sphubd", Name: "bytes_downloaded_total", Help: "Cumulative bytes downloaded from peers.",
	})
	r.HashedFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sphubd", Name: "hashed_files_total", Help: "Files successfully hashed by the helper.",
	})

	r.reg.MustRegister(r.SlotsUsed, r.SlotsTotal, r.QueueTargets, r.ShareFiles,
		r.ShareBytes, r.BytesUploaded, r.BytesDownloaded, r.HashedFiles)
	return r
}

// Gatherer exposes the registry for an HTTP /metrics handler. Nothing in
// the daemon calls it or serves /metrics.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
