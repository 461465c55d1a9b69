package leader

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	staleAfter     = 5 * time.Second
	heartbeatEvery = 2 * time.Second
)

// changeNotifier is implemented by cells (MemoryCell) that can signal a
// write without waiting for the next poll tick.
type changeNotifier interface {
	Changed() <-chan struct{}
}

// Elector runs the last-writer-wins election protocol from spec §4.5.2
// against an ElectionCell.
type Elector struct {
	cell  ElectionCell
	tabID string

	isLeader bool

	// OnLeader/OnFollower fire on each transition.
	OnLeader   func()
	OnFollower func()

	log *zap.Logger
}

// NewElector builds an Elector for tabID against cell. A nil logger
// installs a no-op one.
func NewElector(cell ElectionCell, tabID string, log *zap.Logger) *Elector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Elector{cell: cell, tabID: tabID, log: log}
}

// IsLeader reports the elector's last-known role.
func (e *Elector) IsLeader() bool { return e.isLeader }

// Run drives the election loop until ctx is cancelled. On cancellation, if
// this elector currently holds leadership it clears the cell so followers
// observe the vacancy immediately.
func (e *Elector) Run(ctx context.Context) {
	e.checkOnce(ctx)

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()

	var changed <-chan struct{}
	if n, ok := e.cell.(changeNotifier); ok {
		changed = n.Changed()
	}

	for {
		select {
		case <-ctx.Done():
			if e.isLeader {
				_ = e.cell.Clear(context.Background())
			}
			return
		case <-ticker.C:
			e.checkOnce(ctx)
		case <-changed:
			// The leader's own heartbeat writes also fire change events;
			// it renews only on the ticker.
			if !e.isLeader {
				e.checkOnce(ctx)
			}
		}
	}
}

func (e *Elector) checkOnce(ctx context.Context) {
	if e.isLeader {
		// Leader rewrites its record every heartbeat interval.
		_ = e.cell.Claim(ctx, Record{TabID: e.tabID, HeartbeatMs: nowMs()})
		return
	}

	rec, ok, err := e.cell.Read(ctx)
	if err != nil {
		return
	}
	stale := !ok || nowMs()-rec.HeartbeatMs > staleAfter.Milliseconds()
	if !stale {
		e.setFollower()
		return
	}

	if err := e.cell.Claim(ctx, Record{TabID: e.tabID, HeartbeatMs: nowMs()}); err != nil {
		return
	}
	confirm, ok, err := e.cell.Read(ctx)
	if err == nil && ok && confirm.TabID == e.tabID {
		e.setLeader()
	} else {
		e.setFollower()
	}
}

func (e *Elector) setLeader() {
	if !e.isLeader {
		e.isLeader = true
		e.log.Info("became leader", zap.String("tab_id", e.tabID))
		if e.OnLeader != nil {
			e.OnLeader()
		}
	}
}

func (e *Elector) setFollower() {
	if e.isLeader {
		e.isLeader = false
		e.log.Info("lost leadership", zap.String("tab_id", e.tabID))
		if e.OnFollower != nil {
			e.OnFollower()
		}
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
