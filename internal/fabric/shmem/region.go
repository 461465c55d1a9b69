// Package shmem implements the shared-memory Distribution Fabric variant:
// a fixed 2048-byte region written by the producer and polled by readers
// under a single atomic version counter (§6.3).
package shmem

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"unsafe"

	"depthfeed/internal/model"
)

const (
	regionSize   = 2048
	maxLevels    = 15
	levelBytes   = 32 // price, size, cumulative, depth_percent, all f64
	levelsBytes  = maxLevels * levelBytes
	headerSize   = 56
	bidsOffset   = headerSize
	asksOffset   = bidsOffset + levelsBytes
)

// Region is the fixed-layout shared region. version is accessed with
// atomic operations only; every other field is written under the
// release/acquire contract: the writer stores everything else first, then
// atomically increments version; a reader loads version, and only decodes
// the rest if it changed since its last observation.
type Region struct {
	buf     []byte
	version *int32
}

// NewRegion allocates a zeroed 2048-byte region.
func NewRegion() *Region {
	buf := make([]byte, regionSize)
	return &Region{
		buf:     buf,
		version: (*int32)(ptrAt(buf, 0)),
	}
}

// Write serializes slice into the region and then atomically increments
// version. Single-writer only; callers must not call Write concurrently
// from multiple goroutines.
func (r *Region) Write(slice model.OrderbookSlice) {
	bidCount := clamp15(len(slice.Bids))
	askCount := clamp15(len(slice.Asks))

	binary.LittleEndian.PutUint32(r.buf[4:8], uint32(bidCount))
	binary.LittleEndian.PutUint32(r.buf[8:12], uint32(askCount))
	putF64(r.buf, 16, slice.Spread)
	putF64(r.buf, 24, slice.SpreadPercent)
	putF64(r.buf, 32, slice.Midpoint)
	putF64(r.buf, 40, float64(slice.TimestampMs))
	putF64(r.buf, 48, float64(slice.LastUpdateID))

	writeLevels(r.buf, bidsOffset, slice.Bids[:bidCount])
	writeLevels(r.buf, asksOffset, slice.Asks[:askCount])

	atomic.AddInt32(r.version, 1)
}

// ReadVersion atomically loads the current version (acquire semantics).
func (r *Region) ReadVersion() int32 {
	return atomic.LoadInt32(r.version)
}

func writeLevels(buf []byte, offset int, levels []model.PriceLevel) {
	for i := 0; i < maxLevels; i++ {
		base := offset + i*levelBytes
		if i < len(levels) {
			l := levels[i]
			putF64(buf, base, l.Price)
			putF64(buf, base+8, l.Size)
			putF64(buf, base+16, l.Cumulative)
			putF64(buf, base+24, l.DepthPercent)
		} else {
			for j := 0; j < levelBytes; j++ {
				buf[base+j] = 0
			}
		}
	}
}

func putF64(buf []byte, offset int, v float64) {
	binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(v))
}

func getF64(buf []byte, offset int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[offset : offset+8]))
}

func clamp15(n int) int {
	if n > maxLevels {
		return maxLevels
	}
	if n < 0 {
		return 0
	}
	return n
}

func ptrAt(buf []byte, offset int) *int32 {
	return (*int32)(unsafe.Pointer(&buf[offset]))
}
