package shmem

import "depthfeed/internal/model"

// Reader polls a Region's version counter on the consumer's display
// cadence and decodes on change. It retains pre-allocated level arrays
// across reads so that only the returned slice wrapper and its two
// shallow views are allocated per decode.
type Reader struct {
	region     *Region
	lastSeen   int32
	bidPool    [maxLevels]model.PriceLevel
	askPool    [maxLevels]model.PriceLevel
}

// NewReader constructs a Reader over region.
func NewReader(region *Region) *Reader {
	return &Reader{region: region, lastSeen: -1}
}

// Poll checks the version counter. If unchanged since the last Poll,
// returns (zero, false). If frozen is true, the version is still observed
// and lastSeen advances, but decoding is skipped so that pooled level
// objects a frozen snapshot still references are not mutated.
func (r *Reader) Poll(frozen bool) (model.OrderbookSlice, bool) {
	v := r.region.ReadVersion()
	if v == r.lastSeen {
		return model.OrderbookSlice{}, false
	}
	r.lastSeen = v
	if frozen {
		return model.OrderbookSlice{}, false
	}
	return r.decode(), true
}

func (r *Reader) decode() model.OrderbookSlice {
	buf := r.region.buf

	bidCount := clamp15(int(leU32(buf, 4)))
	askCount := clamp15(int(leU32(buf, 8)))

	readLevels(buf, bidsOffset, r.bidPool[:bidCount])
	readLevels(buf, asksOffset, r.askPool[:askCount])

	return model.OrderbookSlice{
		Bids:          r.bidPool[:bidCount],
		Asks:          r.askPool[:askCount],
		Spread:        getF64(buf, 16),
		SpreadPercent: getF64(buf, 24),
		Midpoint:      getF64(buf, 32),
		TimestampMs:   int64(getF64(buf, 40)),
		LastUpdateID:  uint64(getF64(buf, 48)),
	}
}

func readLevels(buf []byte, offset int, dst []model.PriceLevel) {
	for i := range dst {
		base := offset + i*levelBytes
		dst[i] = model.PriceLevel{
			Price:        getF64(buf, base),
			Size:         getF64(buf, base+8),
			Cumulative:   getF64(buf, base+16),
			DepthPercent: getF64(buf, base+24),
		}
	}
}

func leU32(buf []byte, offset int) uint32 {
	return uint32(buf[offset]) | uint32(buf[offset+1])<<8 | uint32(buf[offset+2])<<16 | uint32(buf[offset+3])<<24
}
