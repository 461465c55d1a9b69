// Package sequence implements the Sequence Manager: buffers early deltas,
// fetches a one-shot REST snapshot, reconciles it against the buffer,
// detects sequence gaps, and drives resync.
package sequence

import (
	"fmt"

	"depthfeed/internal/model"
)

// State is a node in the buffering → syncing → synchronized →
// (resyncing → syncing → synchronized)* machine from spec §4.2.
type State int

const (
	StateBuffering State = iota
	StateSyncing
	StateSynchronized
	StateResyncing
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateSyncing:
		return "syncing"
	case StateSynchronized:
		return "synchronized"
	case StateResyncing:
		return "resyncing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxSnapshotAttempts bounds total snapshot-fetch attempts per session
// regardless of cause (network retries exhausted, or the reconciliation
// "snapshot too old" discard-and-refetch path) — see spec §9 open question.
const maxSnapshotAttempts = 3

// BookApplier is the subset of the Book Engine the sequence manager drives.
// Kept as an interface so tests can substitute a recording fake.
type BookApplier interface {
	ApplySnapshot(model.Snapshot)
	ApplyDelta(model.RawDelta)
	Reset()
	LastUpdateID() uint64
}

// Outcome reports side effects the caller (Producer Host) must act on,
// since the Manager itself never performs I/O.
type Outcome struct {
	FetchSnapshot bool
	SequenceGap   bool
}

// Manager is the Sequence Manager. It is synchronous and not safe for
// concurrent use — the Producer Host must drive it from a single
// serialized loop, matching spec §5's "no reentrancy into BE" rule.
type Manager struct {
	book  BookApplier
	buf   []model.RawDelta
	state State

	fetchAttempts int
	sequenceGaps  int64

	// OnSequenceGap fires once per rejected gap, before the session
	// transitions back through buffering.
	OnSequenceGap func()
	// OnSynchronized fires once reconciliation completes successfully.
	OnSynchronized func()
}

// NewManager constructs a Manager in the initial buffering state.
func NewManager(book BookApplier) *Manager {
	return &Manager{book: book, state: StateBuffering}
}

// State reports the current machine state.
func (m *Manager) State() State { return m.state }

// SequenceGaps returns the lifetime count of rejected (resync-triggering)
// gaps, for the Metrics.sequence_gaps field.
func (m *Manager) SequenceGaps() int64 { return m.sequenceGaps }

// HandleDelta processes one inbound RawDelta per the current state.
func (m *Manager) HandleDelta(delta model.RawDelta) Outcome {
	switch m.state {
	case StateBuffering:
		m.buf = append(m.buf, delta)
		m.state = StateSyncing
		m.fetchAttempts++
		return Outcome{FetchSnapshot: true}
	case StateSyncing, StateResyncing:
		m.buf = append(m.buf, delta)
		return Outcome{}
	case StateSynchronized:
		return m.applySynchronized(delta)
	default:
		return Outcome{}
	}
}

func (m *Manager) applySynchronized(delta model.RawDelta) Outcome {
	last := m.book.LastUpdateID()

	if delta.FirstUpdateID <= last+1 {
		m.book.ApplyDelta(delta)
		return Outcome{}
	}

	gap := delta.FirstUpdateID - (last + 1)
	if gap <= model.GapTolerance {
		m.book.ApplyDelta(delta)
		return Outcome{}
	}

	// Disallowed gap: resync, then reprocess the same delta as a fresh
	// buffering event.
	m.sequenceGaps++
	m.state = StateResyncing
	if m.OnSequenceGap != nil {
		m.OnSequenceGap()
	}
	m.Reset()
	out := m.HandleDelta(delta)
	out.SequenceGap = true
	return out
}

// HandleSnapshotResult feeds back the result of a REST snapshot fetch the
// Producer Host issued in response to a prior FetchSnapshot outcome.
func (m *Manager) HandleSnapshotResult(snap model.Snapshot, err error) Outcome {
	if err != nil {
		// Network-level retries (handled by the fetcher) are exhausted.
		// Below the attempt cap, fall back to buffering (keeping the
		// buffer) so the next delta drives another attempt; at the cap the
		// session stays in syncing.
		if m.fetchAttempts < maxSnapshotAttempts {
			m.state = StateBuffering
		}
		return Outcome{}
	}

	if len(m.buf) > 0 && snap.LastUpdateID < m.buf[0].FirstUpdateID {
		// Snapshot older than the earliest buffered delta: discard and
		// refetch, subject to the attempt cap.
		if m.fetchAttempts >= maxSnapshotAttempts {
			return Outcome{}
		}
		m.fetchAttempts++
		return Outcome{FetchSnapshot: true}
	}

	remaining := m.buf[:0]
	for _, d := range m.buf {
		if d.FinalUpdateID > snap.LastUpdateID {
			remaining = append(remaining, d)
		}
	}

	m.book.ApplySnapshot(snap)
	for _, d := range remaining {
		m.book.ApplyDelta(d)
	}

	m.buf = nil
	m.state = StateSynchronized
	m.fetchAttempts = 0
	if m.OnSynchronized != nil {
		m.OnSynchronized()
	}
	return Outcome{}
}

// Reset aborts any notion of an in-flight fetch (the caller is responsible
// for cancelling the actual HTTP request via its abort token), clears the
// buffer, resets the book, and returns to buffering.
func (m *Manager) Reset() {
	m.buf = nil
	m.book.Reset()
	m.state = StateBuffering
	m.fetchAttempts = 0
}
