// Package producer implements the Producer Host: composes the Transport
// Client, Sequence Manager, and Book Engine; emits slices at a bounded
// cadence; exposes connect/disconnect/set-depth lifecycle operations.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"depthfeed/internal/book"
	"depthfeed/internal/config"
	"depthfeed/internal/model"
	"depthfeed/internal/sequence"
	"depthfeed/internal/transport"

	"go.uber.org/zap"
)

// Fabric is the Distribution Fabric contract the Producer Host publishes
// through; each of the three DF variants implements this.
type Fabric interface {
	Publish(model.OrderbookSlice)
	PublishStatus(status model.ConnectionStatus, errMsg string)
	PublishMetrics(model.Metrics)
}

const cadence = 100 * time.Millisecond

type snapshotResult struct {
	snap model.Snapshot
	err  error
}

// Host is the Producer Host. One Host instance owns exactly one
// instrument's TC/SM/BE for its lifetime, per the single-instrument
// non-goal.
type Host struct {
	endpoint config.Endpoint
	fabric   Fabric

	book *book.Engine
	seq  *sequence.Manager
	tc   *transport.Client
	rest *sequence.RESTFetcher

	deltaCh      chan model.RawDelta
	openCh       chan struct{}
	closeCh      chan struct{}
	errCh        chan error
	reconnectCh  chan int
	snapResultCh chan snapshotResult
	setDepthCh   chan int

	mu             sync.Mutex
	status         model.ConnectionStatus
	reconnectCount int64

	ctx        context.Context
	cancel     context.CancelFunc
	fetchCtx   context.Context
	fetchStop  context.CancelFunc
	wg         sync.WaitGroup

	log *zap.Logger
}

// New constructs a Host for the given endpoint/depth, publishing through
// fabric. Connect must be called to start ingestion. A nil logger installs
// a no-op one.
func New(endpoint config.Endpoint, depth int, fabric Fabric, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		endpoint:     endpoint,
		fabric:       fabric,
		book:         book.New(depth),
		rest:         sequence.NewRESTFetcher(endpoint.RESTURL, endpoint.Symbol),
		deltaCh:      make(chan model.RawDelta, 256),
		openCh:       make(chan struct{}, 1),
		closeCh:      make(chan struct{}, 1),
		errCh:        make(chan error, 1),
		reconnectCh:  make(chan int, 1),
		snapResultCh: make(chan snapshotResult, 1),
		setDepthCh:   make(chan int, 1),
		status:       model.StatusDisconnected,
		log:          log,
	}
	h.seq = sequence.NewManager(h.book)
	h.seq.OnSequenceGap = func() {
		h.log.Warn("sequence gap exceeded tolerance, resyncing", zap.String("symbol", endpoint.Symbol))
	}
	h.seq.OnSynchronized = func() {
		h.log.Info("book synchronized", zap.String("symbol", endpoint.Symbol), zap.Uint64("last_update_id", h.book.LastUpdateID()))
	}
	return h
}

// Status returns the last ConnectionStatus reported, safe for concurrent
// reads (e.g. the status HTTP handler).
func (h *Host) Status() model.ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Book exposes the underlying Book Engine for read-only access (slice
// publication from the cadence tick, and lock-free reads via Published()).
func (h *Host) Book() *book.Engine { return h.book }

// ReconnectCount returns the lifetime transport reconnect count.
func (h *Host) ReconnectCount() int64 { return h.reconnectCount }

// SequenceGaps returns the lifetime count of resync-triggering gaps.
func (h *Host) SequenceGaps() int64 { return h.seq.SequenceGaps() }

// Connect opens the transport session and starts the producer control
// loop. ctx governs the Host's entire lifetime.
func (h *Host) Connect(ctx context.Context) {
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.tc = transport.New(h.endpoint.WSURL, h.endpoint.Symbol, h.endpoint.Suffix, transport.Callbacks{
		OnOpen:         func() { nonBlockingSend(h.openCh, struct{}{}) },
		OnMessage:      func(d model.RawDelta) { h.deltaCh <- d },
		OnClose:        func() { nonBlockingSend(h.closeCh, struct{}{}) },
		OnError:        func(err error) { nonBlockingSend(h.errCh, err) },
		OnReconnecting: func(attempt int) { nonBlockingSend(h.reconnectCh, attempt) },
	}, h.log)

	h.setStatus(model.StatusConnecting, "")
	h.tc.Connect(h.ctx)

	h.wg.Add(1)
	go h.run()
}

// Disconnect tears the Host down: the cadence interval is cleared before
// BE teardown so no post-teardown publish can occur (spec §5).
func (h *Host) Disconnect() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.tc != nil {
		h.tc.Disconnect()
	}
	if h.fetchStop != nil {
		h.fetchStop()
	}
	h.wg.Wait()
	h.setStatus(model.StatusDisconnected, "")
}

// SetDepth forwards to the Book Engine from within the control loop to
// avoid racing with cadence-tick GetSlice calls.
func (h *Host) SetDepth(n int) {
	select {
	case h.setDepthCh <- n:
	case <-h.ctx.Done():
	}
}

func (h *Host) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-h.openCh:
			h.setStatus(model.StatusSyncing, "")

		case <-h.closeCh:
			// connectAndConsume returned; TC itself decides whether to
			// reconnect or has exhausted its ladder (OnError covers that).

		case attempt := <-h.reconnectCh:
			h.reconnectCount++
			h.log.Info("transport reconnecting", zap.Int("attempt", attempt))
			h.setStatus(model.StatusReconnecting, fmt.Sprintf("reconnect attempt %d", attempt))
			if h.fetchStop != nil {
				h.fetchStop()
			}
			h.seq.Reset()

		case err := <-h.errCh:
			h.log.Error("transport error", zap.Error(err))
			h.setStatus(model.StatusError, err.Error())

		case delta := <-h.deltaCh:
			out := h.seq.HandleDelta(delta)
			h.handleOutcome(out)

		case res := <-h.snapResultCh:
			if res.err != nil {
				h.log.Warn("snapshot fetch failed", zap.Error(res.err))
			}
			out := h.seq.HandleSnapshotResult(res.snap, res.err)
			h.handleOutcome(out)

		case n := <-h.setDepthCh:
			h.book.SetDepth(n)

		case <-ticker.C:
			h.onTick()
		}
	}
}

func (h *Host) handleOutcome(out sequence.Outcome) {
	if out.FetchSnapshot {
		h.issueFetch()
	}
	switch h.seq.State() {
	case sequence.StateBuffering, sequence.StateSyncing, sequence.StateResyncing:
		h.setStatus(model.StatusSyncing, "")
	case sequence.StateSynchronized:
		h.setStatus(model.StatusConnected, "")
	}
}

func (h *Host) issueFetch() {
	if h.fetchStop != nil {
		h.fetchStop()
	}
	h.fetchCtx, h.fetchStop = context.WithCancel(h.ctx)

	h.wg.Add(1)
	go func(ctx context.Context) {
		defer h.wg.Done()
		snap, err := h.rest.FetchSnapshot(ctx)
		if ctx.Err() != nil {
			// Aborted by a reset or a newer fetch: drop the result.
			return
		}
		select {
		case h.snapResultCh <- snapshotResult{snap: snap, err: err}:
		case <-h.ctx.Done():
		}
	}(h.fetchCtx)
}

func (h *Host) onTick() {
	if h.seq.State() != sequence.StateSynchronized {
		return
	}
	if !h.book.IsDirty() {
		return
	}
	slice := h.book.GetSlice(time.Now().UnixMilli())
	h.fabric.Publish(slice)
}

func (h *Host) setStatus(status model.ConnectionStatus, errMsg string) {
	h.mu.Lock()
	changed := h.status != status
	h.status = status
	h.mu.Unlock()
	if changed {
		h.log.Debug("status transition", zap.Stringer("status", status))
		h.fabric.PublishStatus(status, errMsg)
	}
}

func nonBlockingSend[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
