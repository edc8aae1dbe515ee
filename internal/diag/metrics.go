// Package diag provides the non-RT diagnostics surface: Prometheus
// metrics and a websocket status/control endpoint. Nothing in this
// package may be called from the audio callback — metrics are updated
// from the control thread at block boundaries, never from inside
// RealtimeThreadPool's worker loop.
package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/gauge this module exports. Constructed
// once per process; safe for concurrent use (every prometheus metric
// type already is).
type Metrics struct {
	Registry *prometheus.Registry

	GraphProcessDuration prometheus.Histogram
	SyncBufferOccupancy  *prometheus.GaugeVec
	DeviceReopenTotal    *prometheus.CounterVec
	ActiveClients        prometheus.Gauge
	SchedulerLevelCount  prometheus.Gauge
}

// NewMetrics registers every metric against a dedicated registry
// (rather than the global DefaultRegisterer) so NewServer's /metrics
// handler and a test's assertions always observe the same gatherer.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registry:             reg,
		GraphProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rtcore",
			Subsystem: "graph",
			Name:      "process_duration_seconds",
			Help:      "Wall-clock time spent in one ProcessorGraph.Process call.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, 20),
		}),
		SyncBufferOccupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtcore",
			Subsystem: "syncbuf",
			Name:      "occupancy_samples",
			Help:      "Current SyncBuffer occupancy in writer-rate samples, by buffer label.",
		}, []string{"buffer"}),
		DeviceReopenTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcore",
			Subsystem: "device",
			Name:      "reopen_total",
			Help:      "Count of device (re)open attempts, by device key.",
		}, []string{"device"}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtcore",
			Subsystem: "server",
			Name:      "active_clients",
			Help:      "Number of clients currently registered with the audio server.",
		}),
		SchedulerLevelCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtcore",
			Subsystem: "sched",
			Name:      "level_count",
			Help:      "Number of levels in the most recently compiled schedule.",
		}),
	}
}
