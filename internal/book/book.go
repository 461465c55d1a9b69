// Package book implements the Book Engine: the price→size maps per side,
// idempotent delta/snapshot application, and top-N slice extraction.
package book

import (
	"math"
	"sort"
	"sync/atomic"
	"unsafe"

	"depthfeed/internal/model"

	"github.com/shopspring/decimal"
)

// Engine owns BookState. It is intended for exclusive use by a single
// producer-control goroutine; GetSlice additionally publishes the result
// through an atomic pointer so other goroutines (the status HTTP handler)
// can read the latest published slice lock-free, mirroring the teacher's
// Book.pressure publish pattern.
type Engine struct {
	bids  map[float64]float64
	asks  map[float64]float64
	depth int

	lastUpdateID uint64
	dirty        bool

	published unsafe.Pointer // *model.OrderbookSlice
}

// New creates a Book Engine with the given initial depth (spec default 15).
func New(depth int) *Engine {
	if depth <= 0 {
		depth = model.DefaultDepth
	}
	e := &Engine{
		bids:  make(map[float64]float64),
		asks:  make(map[float64]float64),
		depth: depth,
	}
	empty := model.OrderbookSlice{}
	atomic.StorePointer(&e.published, unsafe.Pointer(&empty))
	return e
}

// ApplySnapshot clears both sides and installs the snapshot's levels.
func (e *Engine) ApplySnapshot(snap model.Snapshot) {
	e.bids = make(map[float64]float64, len(snap.Bids))
	e.asks = make(map[float64]float64, len(snap.Asks))
	for _, pair := range snap.Bids {
		upsert(e.bids, pair)
	}
	for _, pair := range snap.Asks {
		upsert(e.asks, pair)
	}
	e.lastUpdateID = snap.LastUpdateID
	e.dirty = true
}

// ApplyDelta upserts or removes levels named by delta, then advances
// last_update_id to delta.FinalUpdateID. Idempotent: reapplying the same
// delta twice leaves BookState unchanged on the second application.
func (e *Engine) ApplyDelta(delta model.RawDelta) {
	for _, pair := range delta.Bids {
		upsert(e.bids, pair)
	}
	for _, pair := range delta.Asks {
		upsert(e.asks, pair)
	}
	e.lastUpdateID = delta.FinalUpdateID
	e.dirty = true
}

// upsert strictly parses a (price, size) string pair and applies it to
// side. Any non-finite conversion is skipped rather than raising an error.
// size == 0 removes the level.
func upsert(side map[float64]float64, pair [2]string) {
	priceDec, err := decimal.NewFromString(pair[0])
	if err != nil {
		return
	}
	sizeDec, err := decimal.NewFromString(pair[1])
	if err != nil {
		return
	}
	price, _ := priceDec.Float64()
	size, _ := sizeDec.Float64()
	if math.IsNaN(price) || math.IsInf(price, 0) || math.IsNaN(size) || math.IsInf(size, 0) {
		return
	}
	if size == 0 {
		delete(side, price)
		return
	}
	side[price] = size
}

// IsDirty reports whether a snapshot or delta has been applied since the
// last GetSlice call.
func (e *Engine) IsDirty() bool { return e.dirty }

// SetDepth updates the depth used by future GetSlice calls; stored levels
// are untouched.
func (e *Engine) SetDepth(n int) {
	if n > 0 {
		e.depth = n
	}
}

// LastUpdateID returns the sequence id BookState was last advanced to.
func (e *Engine) LastUpdateID() uint64 { return e.lastUpdateID }

// Reset clears both sides and the sequence counter; called on every resync.
func (e *Engine) Reset() {
	e.bids = make(map[float64]float64)
	e.asks = make(map[float64]float64)
	e.lastUpdateID = 0
	e.dirty = false
}

// GetSlice extracts the top-N levels per side with cumulative and
// depth-percent fields, plus spread/midpoint, per spec §4.3. Clears the
// dirty flag and publishes the result atomically.
func (e *Engine) GetSlice(nowMs int64) model.OrderbookSlice {
	bidLevels := extract(e.bids, true, e.depth)
	askLevels := extract(e.asks, false, e.depth)

	applyCumulative(bidLevels)
	applyCumulative(askLevels)

	maxTotal := 0.0
	if n := len(bidLevels); n > 0 && bidLevels[n-1].Cumulative > maxTotal {
		maxTotal = bidLevels[n-1].Cumulative
	}
	if n := len(askLevels); n > 0 && askLevels[n-1].Cumulative > maxTotal {
		maxTotal = askLevels[n-1].Cumulative
	}
	applyDepthPercent(bidLevels, maxTotal)
	applyDepthPercent(askLevels, maxTotal)

	slice := model.OrderbookSlice{
		Bids:         bidLevels,
		Asks:         askLevels,
		TimestampMs:  nowMs,
		LastUpdateID: e.lastUpdateID,
	}
	if len(bidLevels) > 0 && len(askLevels) > 0 {
		bestBid := bidLevels[0].Price
		bestAsk := askLevels[0].Price
		slice.Spread = bestAsk - bestBid
		slice.Midpoint = (bestBid + bestAsk) / 2
		if slice.Midpoint > 0 {
			slice.SpreadPercent = slice.Spread / slice.Midpoint
		}
	}

	e.dirty = false
	published := slice
	atomic.StorePointer(&e.published, unsafe.Pointer(&published))
	return slice
}

// Published returns the most recently published slice, safe for concurrent
// lock-free reads from any goroutine (e.g. the status HTTP handler).
func (e *Engine) Published() model.OrderbookSlice {
	return *(*model.OrderbookSlice)(atomic.LoadPointer(&e.published))
}

func extract(side map[float64]float64, descending bool, depth int) []model.PriceLevel {
	if len(side) == 0 {
		return nil
	}
	prices := make([]float64, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	if descending {
		sort.Sort(sort.Reverse(sort.Float64Slice(prices)))
	} else {
		sort.Float64s(prices)
	}
	if len(prices) > depth {
		prices = prices[:depth]
	}
	levels := make([]model.PriceLevel, len(prices))
	for i, p := range prices {
		levels[i] = model.PriceLevel{Price: p, Size: side[p]}
	}
	return levels
}

func applyCumulative(levels []model.PriceLevel) {
	running := 0.0
	for i := range levels {
		running += levels[i].Size
		levels[i].Cumulative = running
	}
}

func applyDepthPercent(levels []model.PriceLevel, maxTotal float64) {
	if maxTotal == 0 {
		return
	}
	for i := range levels {
		levels[i].DepthPercent = math.Round(levels[i].Cumulative/maxTotal*10000) / 100
	}
}
