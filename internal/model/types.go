// Package model holds the wire-independent data types shared across the
// depth feed core: price levels, raw exchange events, the book engine's
// published slice, connection/session state, and metrics.
package model

import "fmt"

// GapTolerance is the maximum acceptable skip in a delta's FirstUpdateID
// before a resync is triggered. See sequence.Manager.
const GapTolerance = 1000

// DefaultDepth is the number of levels retained per side when a slice
// depth is not otherwise configured.
const DefaultDepth = 15

// PriceLevel is a single bid or ask level inside a published slice.
// Cumulative and DepthPercent are derived fields computed by the book
// engine at slice-extraction time; they are never stored on BookState.
type PriceLevel struct {
	Price        float64
	Size         float64
	Cumulative   float64
	DepthPercent float64
}

// RawDelta is one depth-update event as parsed from the transport client.
// Bids and Asks carry (price, quantity) pairs in exchange-native string
// form; the book engine is responsible for strict numeric parsing.
type RawDelta struct {
	FirstUpdateID uint64
	FinalUpdateID uint64
	Symbol        string
	Bids          [][2]string
	Asks          [][2]string
}

// Snapshot is a complete order-book snapshot fetched once per (re)sync.
type Snapshot struct {
	LastUpdateID uint64
	Bids         [][2]string
	Asks         [][2]string
}

// ConnectionStatus mirrors the state machine in spec §4.2/§4.4.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusSyncing
	StatusConnected
	StatusReconnecting
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusSyncing:
		return "syncing"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SyncMode tags which distribution fabric variant produced a status or
// slice update, surfaced to the reactive store.
type SyncMode int

const (
	SyncModeSharedHost SyncMode = iota
	SyncModeLeaderReplicated
	SyncModeSharedMemory
)

func (m SyncMode) String() string {
	switch m {
	case SyncModeSharedHost:
		return "shared"
	case SyncModeLeaderReplicated:
		return "broadcast"
	case SyncModeSharedMemory:
		return "shared_memory"
	default:
		return "unknown"
	}
}

// OrderbookSlice is the top-N snapshot published at the distribution
// cadence. Immutable once constructed; ownership passes to whichever
// fabric variant sends it (copy-on-send fabrics copy, the shared-memory
// fabric instead encodes it into a fixed region).
type OrderbookSlice struct {
	Bids          []PriceLevel
	Asks          []PriceLevel
	Spread        float64
	SpreadPercent float64
	Midpoint      float64
	TimestampMs   int64
	LastUpdateID  uint64
}

// Metrics is the derived diagnostics block updated roughly once a second
// by the frame bridge. p95 is computed by sort+index over a rolling
// 100-sample latency window (see internal/frame); it is a diagnostic
// value, not a correctness contract.
type Metrics struct {
	MessagesPerSecond float64
	LatencyCurMs      float64
	LatencyMinMs      float64
	LatencyAvgMs      float64
	LatencyMaxMs      float64
	LatencyP95Ms      float64
	FPS               float64
	DroppedFrames     int64
	HeapUsedMB        float64
	HeapGrowthMB      float64
	ReconnectCount    int64
	SequenceGaps      int64
	TabCount          int
}

// Session identifies one consumer context's lifetime.
type Session struct {
	TabID    string
	Leader   bool
	SyncMode SyncMode
}
