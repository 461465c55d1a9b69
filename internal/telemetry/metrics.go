// Package telemetry exposes model.Metrics as Prometheus collectors.
package telemetry

import (
	"depthfeed/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the gauges backing model.Metrics. Callers call Set on
// every metrics tick; the values are exported on whatever handler wraps
// the supplied prometheus.Registerer.
type Registry struct {
	messagesPerSecond prometheus.Gauge
	latencyCur        prometheus.Gauge
	latencyMin        prometheus.Gauge
	latencyAvg        prometheus.Gauge
	latencyMax        prometheus.Gauge
	latencyP95        prometheus.Gauge
	fps               prometheus.Gauge
	droppedFrames     prometheus.Gauge
	heapUsedMB        prometheus.Gauge
	heapGrowthMB      prometheus.Gauge
	reconnectCount    prometheus.Gauge
	sequenceGaps      prometheus.Gauge
	tabCount          prometheus.Gauge
}

const namespace = "depthfeed"

// NewRegistry constructs and registers all gauges against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(g)
		return g
	}

	return &Registry{
		messagesPerSecond: gauge("messages_per_second", "Depth messages processed per second"),
		latencyCur:        gauge("latency_cur_ms", "Most recent frame-to-render latency"),
		latencyMin:        gauge("latency_min_ms", "Minimum latency since the consumer started"),
		latencyAvg:        gauge("latency_avg_ms", "Average latency since the consumer started"),
		latencyMax:        gauge("latency_max_ms", "Maximum latency since the consumer started"),
		latencyP95:        gauge("latency_p95_ms", "95th percentile latency in the rolling window"),
		fps:               gauge("fps", "Averaged frame rate over the reporting interval"),
		droppedFrames:     gauge("dropped_frames_total", "Display frames missed between frame-loop ticks"),
		heapUsedMB:        gauge("heap_used_mb", "Process heap in use"),
		heapGrowthMB:      gauge("heap_growth_mb", "Heap growth since last sample"),
		reconnectCount:    gauge("reconnect_count", "Transport reconnect attempts this session"),
		sequenceGaps:      gauge("sequence_gaps_total", "Sequence gaps requiring resync"),
		tabCount:          gauge("tab_count", "Live consumer count"),
	}
}

// Set updates every gauge from m.
func (r *Registry) Set(m model.Metrics) {
	r.messagesPerSecond.Set(m.MessagesPerSecond)
	r.latencyCur.Set(m.LatencyCurMs)
	r.latencyMin.Set(m.LatencyMinMs)
	r.latencyAvg.Set(m.LatencyAvgMs)
	r.latencyMax.Set(m.LatencyMaxMs)
	r.latencyP95.Set(m.LatencyP95Ms)
	r.fps.Set(m.FPS)
	r.droppedFrames.Set(float64(m.DroppedFrames))
	r.heapUsedMB.Set(m.HeapUsedMB)
	r.heapGrowthMB.Set(m.HeapGrowthMB)
	r.reconnectCount.Set(float64(m.ReconnectCount))
	r.sequenceGaps.Set(float64(m.SequenceGaps))
	r.tabCount.Set(float64(m.TabCount))
}
