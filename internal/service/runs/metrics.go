package runs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	liveRunsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runstate",
			Subsystem: "tracker",
			Name:      "live_runs",
			Help:      "number of runs held by the tracker",
		})
	nodeUpdateCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runstate",
			Subsystem: "tracker",
			Name:      "node_updates_total",
			Help:      "node updates applied by the tracker, by resulting status",
		}, []string{"status"})
	runTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runstate",
			Subsystem: "tracker",
			Name:      "run_transitions_total",
			Help:      "root status changes of tracked runs",
		}, []string{"to"})
	deltaEntriesHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "runstate",
			Subsystem: "sync",
			Name:      "delta_entries",
			Help:      "number of node entries in a produced delta",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		})
	mirrorResyncCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runstate",
			Subsystem: "sync",
			Name:      "mirror_resyncs_total",
			Help:      "full snapshot reloads after a delta did not fit the local copy",
		})
	persistCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runstate",
			Subsystem: "store",
			Name:      "snapshots_persisted_total",
			Help:      "snapshots written, by target and result",
		}, []string{"target", "result"})
)

// InitMetrics registers all metrics in this package.
func InitMetrics(registry prometheus.Registerer) {
	registry.MustRegister(liveRunsGauge)
	registry.MustRegister(nodeUpdateCounter)
	registry.MustRegister(runTransitionCounter)
	registry.MustRegister(deltaEntriesHistogram)
	registry.MustRegister(mirrorResyncCounter)
	registry.MustRegister(persistCounter)
}
