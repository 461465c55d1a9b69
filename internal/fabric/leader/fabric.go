package leader

import (
	"context"
	"sync"
	"time"

	"depthfeed/internal/model"
)

const presenceTTL = 5 * time.Second

// Fabric implements producer.Fabric for the leader side of this variant:
// the leader's Producer Host publishes through Fabric, which relays onto
// the shared Bus for all followers.
type Fabric struct {
	bus *Bus
}

// NewFabric wraps bus for use as the leader's Producer Host fabric.
func NewFabric(bus *Bus) *Fabric {
	return &Fabric{bus: bus}
}

func (f *Fabric) Publish(s model.OrderbookSlice) {
	f.bus.Publish(Event{Kind: EventSlice, Slice: s})
}

func (f *Fabric) PublishStatus(status model.ConnectionStatus, errMsg string) {
	f.bus.Publish(Event{Kind: EventStatus, Status: status, ErrMsg: errMsg})
}

func (f *Fabric) PublishMetrics(m model.Metrics) {
	f.bus.Publish(Event{Kind: EventTabCount, TabCount: m.TabCount})
}

// presence tracks follower liveness on the leader via tab_ping events.
type presence struct {
	mu       sync.Mutex
	lastSeen map[string]int64
}

func newPresence() *presence {
	return &presence{lastSeen: make(map[string]int64)}
}

func (p *presence) touch(tabID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen[tabID] = time.Now().UnixMilli()
}

func (p *presence) prune(ttl time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UnixMilli()
	for id, seen := range p.lastSeen {
		if now-seen > ttl.Milliseconds() {
			delete(p.lastSeen, id)
		}
	}
	return len(p.lastSeen)
}

// RunPresenceTracker consumes tab_ping events from followers and
// periodically rebroadcasts the live count as a tab_count event. The
// leader runs exactly one of these.
func RunPresenceTracker(ctx context.Context, bus *Bus) {
	events := bus.Subscribe(64)
	tracker := newPresence()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind == EventTabPing {
				tracker.touch(ev.TabPing)
			}
		case <-ticker.C:
			count := tracker.prune(presenceTTL)
			bus.Publish(Event{Kind: EventTabCount, TabCount: count})
		}
	}
}

// RunFollowerPing emits a periodic tab_ping for tabID on bus until ctx is
// cancelled. Every follower runs exactly one of these.
func RunFollowerPing(ctx context.Context, bus *Bus, tabID string) {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bus.Publish(Event{Kind: EventTabPing, TabPing: tabID})
		}
	}
}
