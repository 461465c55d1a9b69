package model

import "math"

// AppendMsgPack serializes the slice into MsgPack, appending to b. Zero
// heap allocations beyond the caller-supplied buffer growth, mirroring
// the teacher's Snapshot.AppendMsgPack.
//
// Wire format: FixArray(7)
//
//	[0] lastUpdateId  uint64 (encoded as int64, see §9 precision note)
//	[1] timestampMs   int64
//	[2] spread        float64
//	[3] spreadPercent float64
//	[4] midpoint      float64
//	[5] bids          array of PriceLevel (FixArray(4) each)
//	[6] asks          array of PriceLevel (FixArray(4) each)
func (s *OrderbookSlice) AppendMsgPack(b []byte) []byte {
	b = append(b, 0x97) // FixArray(7)
	b = appendInt64(b, int64(s.LastUpdateID))
	b = appendInt64(b, s.TimestampMs)
	b = appendFloat64(b, s.Spread)
	b = appendFloat64(b, s.SpreadPercent)
	b = appendFloat64(b, s.Midpoint)
	b = appendLevels(b, s.Bids)
	b = appendLevels(b, s.Asks)
	return b
}

func appendLevels(b []byte, levels []PriceLevel) []byte {
	b = appendArrayHeader(b, len(levels))
	for i := range levels {
		b = append(b, 0x94) // FixArray(4)
		b = appendFloat64(b, levels[i].Price)
		b = appendFloat64(b, levels[i].Size)
		b = appendFloat64(b, levels[i].Cumulative)
		b = appendFloat64(b, levels[i].DepthPercent)
	}
	return b
}

// appendArrayHeader supports arrays up to 65535 entries, far beyond any
// realistic depth.
func appendArrayHeader(b []byte, n int) []byte {
	if n <= 15 {
		return append(b, 0x90|byte(n))
	}
	return append(b, 0xdc, byte(n>>8), byte(n))
}

func appendFloat64(b []byte, v float64) []byte {
	b = append(b, 0xcb)
	bits := math.Float64bits(v)
	return append(b, byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
		byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
}

func appendInt64(b []byte, v int64) []byte {
	if v >= 0 && v <= 127 {
		return append(b, byte(v))
	}
	if v < 0 && v >= -32 {
		return append(b, byte(v))
	}
	b = append(b, 0xd3)
	return append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
