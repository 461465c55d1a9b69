package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgPackRoundTrip(t *testing.T) {
	slice := OrderbookSlice{
		Bids: []PriceLevel{
			{Price: 97500.00, Size: 1.5, Cumulative: 1.5, DepthPercent: 41.66},
			{Price: 97499.50, Size: 0.75, Cumulative: 2.25, DepthPercent: 62.5},
		},
		Asks: []PriceLevel{
			{Price: 97501.00, Size: 1.20, Cumulative: 1.20, DepthPercent: 33.33},
			{Price: 97501.50, Size: 2.40, Cumulative: 3.60, DepthPercent: 100},
		},
		Spread:        1.0,
		SpreadPercent: 1.0 / 97500.5,
		Midpoint:      97500.5,
		TimestampMs:   1700000000123,
		LastUpdateID:  108,
	}

	buf := slice.AppendMsgPack(make([]byte, 0, 128))
	decoded, err := DecodeMsgPack(buf)
	require.NoError(t, err)

	assert.Equal(t, slice.LastUpdateID, decoded.LastUpdateID)
	assert.Equal(t, slice.TimestampMs, decoded.TimestampMs)
	assert.InDelta(t, slice.Spread, decoded.Spread, 0)
	assert.InDelta(t, slice.SpreadPercent, decoded.SpreadPercent, 0)
	assert.InDelta(t, slice.Midpoint, decoded.Midpoint, 0)
	require.Len(t, decoded.Bids, len(slice.Bids))
	require.Len(t, decoded.Asks, len(slice.Asks))
	for i := range slice.Bids {
		assert.Equal(t, slice.Bids[i], decoded.Bids[i])
	}
	for i := range slice.Asks {
		assert.Equal(t, slice.Asks[i], decoded.Asks[i])
	}
}

func TestMsgPackRoundTripEmptySides(t *testing.T) {
	slice := OrderbookSlice{
		TimestampMs:  42,
		LastUpdateID: 7,
	}
	buf := slice.AppendMsgPack(nil)
	decoded, err := DecodeMsgPack(buf)
	require.NoError(t, err)
	assert.Empty(t, decoded.Bids)
	assert.Empty(t, decoded.Asks)
	assert.Equal(t, slice.LastUpdateID, decoded.LastUpdateID)
}
