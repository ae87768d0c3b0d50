package query

import "github.com/prometheus/client_golang/prometheus"

var (
	statementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdshare",
		Subsystem: "query",
		Name:      "statements_total",
		Help:      "Statements executed through query channels, by outcome.",
	}, []string{"outcome"})

	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sdshare",
		Subsystem: "query",
		Name:      "reconnects_total",
		Help:      "Connections closed and reopened after a transient fault.",
	})
)

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{statementsTotal, reconnectsTotal}
}
