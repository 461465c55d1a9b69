// Package frame implements the consumer-side Frame Bridge: it coalesces
// an inbound slice stream into one reactive-store update per display
// frame and maintains latency/FPS metrics.
package frame

import (
	"sort"
	"sync"
	"time"

	"depthfeed/internal/model"
	"depthfeed/internal/store"
)

// targetFrameMs approximates a 60Hz display cadence; it is used only to
// count missed frames from frame_delta.
const targetFrameMs = 16.67

const metricsPublishEvery = 1000 * time.Millisecond

// latencyWindow bounds the rolling sample window used for p95.
const latencyWindow = 100

// Clock returns the current instant as milliseconds on a monotonic clock.
// Production code should use a wrapper over time.Now(); tests inject a
// fake to drive frame_delta deterministically.
type Clock func() int64

// Bridge owns the per-consumer frame loop. Receive (for slices) and
// ReceiveStatus (for status updates) are called by whichever fabric
// variant is active (shared-host port client, leader-replicated bus
// subscriber, or shared-memory reader); Tick is called once per display
// frame.
type Bridge struct {
	clock Clock
	store *store.Store

	mu          sync.Mutex
	latest      *model.OrderbookSlice
	receiveTime int64
	dirty       bool
	hidden      bool

	lastFrame int64

	frameCount    int64
	msgCount      int64
	droppedFrames int64
	lastMetricsAt int64

	latSum     float64
	latCount   int64
	latMin     float64
	latMax     float64
	latLast    float64
	latSamples []float64
}

// NewBridge constructs a Bridge writing into s, using clock for all timing.
// A nil clock defaults to the wall clock.
func NewBridge(s *store.Store, clock Clock) *Bridge {
	clock = clockOrDefault(clock)
	now := clock()
	return &Bridge{
		clock:         clock,
		store:         s,
		lastFrame:     now,
		lastMetricsAt: now,
	}
}

func clockOrDefault(c Clock) Clock {
	if c != nil {
		return c
	}
	return func() int64 { return time.Now().UnixMilli() }
}

// Receive records an inbound slice. Safe to call from any goroutine; the
// frame loop picks it up on the next Tick.
func (b *Bridge) Receive(slice model.OrderbookSlice) {
	now := b.clock()
	b.mu.Lock()
	b.latest = &slice
	b.receiveTime = now
	b.dirty = true
	b.msgCount++
	b.mu.Unlock()
}

// ReceiveStatus routes a status update directly to the store, bypassing
// frame coalescing (status changes are rare and latency-insensitive).
func (b *Bridge) ReceiveStatus(status model.ConnectionStatus, err error) {
	b.store.SetStatus(status, err)
}

// SetHidden marks the consumer window as backgrounded or foregrounded.
// Each transition (entering or leaving hidden) resets the frame and
// metrics timestamps and rolling counters so that resuming does not
// register a huge frame delta or dropped-frame spike.
func (b *Bridge) SetHidden(hidden bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hidden == b.hidden {
		return
	}
	b.hidden = hidden
	now := b.clock()
	b.lastFrame = now
	b.lastMetricsAt = now
	b.frameCount = 0
	b.msgCount = 0
}

// Tick runs one frame-loop iteration. Callers drive this from a ticker at
// roughly display cadence.
func (b *Bridge) Tick() {
	now := b.clock()

	b.mu.Lock()
	frameDelta := now - b.lastFrame
	b.lastFrame = now
	hidden := b.hidden

	if !hidden && frameDelta > 0 {
		missed := int64(float64(frameDelta)/targetFrameMs) - 1
		if missed > 0 {
			b.droppedFrames += missed
		}
	}
	b.frameCount++

	var slice *model.OrderbookSlice
	var latency float64
	publishSlice := false
	if b.dirty && b.latest != nil {
		latency = float64(now - b.receiveTime)
		b.recordLatency(latency)
		slice = b.latest
		b.dirty = false
		publishSlice = true
	}

	publishMetrics := now-b.lastMetricsAt >= metricsPublishEvery.Milliseconds()
	var m model.Metrics
	if publishMetrics {
		m = b.buildMetrics(now)
		b.frameCount = 0
		b.msgCount = 0
		b.lastMetricsAt = now
	}
	b.mu.Unlock()

	if publishSlice {
		b.store.UpdateLive(*slice)
	}
	if publishMetrics {
		b.store.UpdateMetrics(m)
	}
}

// recordLatency must be called with mu held.
func (b *Bridge) recordLatency(latency float64) {
	b.latLast = latency
	b.latSum += latency
	b.latCount++
	if b.latCount == 1 || latency < b.latMin {
		b.latMin = latency
	}
	if latency > b.latMax {
		b.latMax = latency
	}
	b.latSamples = append(b.latSamples, latency)
	if len(b.latSamples) > latencyWindow {
		b.latSamples = b.latSamples[len(b.latSamples)-latencyWindow:]
	}
}

// buildMetrics must be called with mu held. FPS is the averaged
// frame_count*1000/elapsed formula, not the instantaneous 1000/frame_delta
// variant; p95 is sort+index over the rolling latency window.
func (b *Bridge) buildMetrics(now int64) model.Metrics {
	elapsed := now - b.lastMetricsAt
	if elapsed <= 0 {
		elapsed = 1
	}
	fps := float64(b.frameCount) * 1000 / float64(elapsed)
	mps := float64(b.msgCount) * 1000 / float64(elapsed)

	avg := 0.0
	if b.latCount > 0 {
		avg = b.latSum / float64(b.latCount)
	}

	return model.Metrics{
		MessagesPerSecond: mps,
		LatencyCurMs:      b.latLast,
		LatencyMinMs:      b.latMin,
		LatencyAvgMs:      avg,
		LatencyMaxMs:      b.latMax,
		LatencyP95Ms:      percentile95(b.latSamples),
		FPS:               fps,
		DroppedFrames:     b.droppedFrames,
	}
}

// percentile95 sorts a copy of samples and indexes at the 95th percentile.
// Returns 0 for an empty window.
func percentile95(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := int(float64(n) * 0.95)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
