package snapshot

import "github.com/prometheus/client_golang/prometheus"

var (
	exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdshare",
		Subsystem: "snapshot",
		Name:      "exports_total",
		Help:      "Snapshot exports by outcome.",
	}, []string{"outcome"})

	batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdshare",
		Subsystem: "snapshot",
		Name:      "batches_total",
		Help:      "Batch queries issued by snapshot exports.",
	})

	rowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdshare",
		Subsystem: "snapshot",
		Name:      "rows_total",
		Help:      "Records streamed by snapshot exports.",
	})
)

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{exportsTotal, batchesTotal, rowsTotal}
}
