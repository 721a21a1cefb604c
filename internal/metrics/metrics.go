// Package metrics declares the Prometheus collectors for download speed,
// queue depth, active sequencer state, and action duration, grounded
// near-verbatim on metrics/metrics.go's flat var-per-collector shape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var DownloadBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "cytrus_updater_download_bytes_total",
}, []string{"gameUid", "fragment"})

var DownloadSpeedBytesPerSecond = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "cytrus_updater_download_speed_bytes_per_second",
}, []string{"gameUid", "release"})

var QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "cytrus_updater_queue_depth",
})

var SequencerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "cytrus_updater_sequencer_state",
}, []string{"gameUid", "release", "state"})

var ActionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "cytrus_updater_action_duration_seconds",
}, []string{"action", "kind"})

var ActionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "cytrus_updater_action_errors_total",
}, []string{"action"})

var CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "cytrus_updater_cache_hits_total",
}, []string{"cache"})

var CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "cytrus_updater_cache_misses_total",
}, []string{"cache"})

func init() {
	prometheus.MustRegister(
		DownloadBytesTotal,
		DownloadSpeedBytesPerSecond,
		QueueDepth,
		SequencerState,
		ActionDuration,
		ActionErrors,
		CacheHits,
		CacheMisses,
	)
}
