package audit

import (
	"depthfeed/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowFromSliceUsesBestLevels(t *testing.T) {
	s := model.OrderbookSlice{
		Bids:         []model.PriceLevel{{Price: 100, Size: 1}},
		Asks:         []model.PriceLevel{{Price: 101, Size: 2}},
		Spread:       1,
		SpreadPercent: 1.5,
		Midpoint:     100.5,
		TimestampMs:  1000,
		LastUpdateID: 42,
	}

	row := RowFromSlice("BTCUSDT", s)
	assert.Equal(t, "BTCUSDT", row.Symbol)
	assert.Equal(t, 100.0, row.BestBid)
	assert.Equal(t, 101.0, row.BestAsk)
	assert.Equal(t, uint64(42), row.LastUpdateID)
}

func TestRowFromSliceHandlesEmptySides(t *testing.T) {
	row := RowFromSlice("BTCUSDT", model.OrderbookSlice{})
	assert.Equal(t, 0.0, row.BestBid)
	assert.Equal(t, 0.0, row.BestAsk)
}

func TestLoggerLogNeverBlocksWhenFull(t *testing.T) {
	l := &Logger{ch: make(chan Row, 1)}
	l.Log(Row{TimestampMs: 1})
	l.Log(Row{TimestampMs: 2})
	assert.Len(t, l.ch, 1)
}
