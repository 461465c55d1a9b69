package book

import (
	"testing"

	"depthfeed/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSliceDepthPercentScenario(t *testing.T) {
	e := New(2)
	e.ApplySnapshot(model.Snapshot{
		LastUpdateID: 1,
		Bids: [][2]string{
			{"97500.00", "1.50"},
			{"97499.50", "0.75"},
		},
		Asks: [][2]string{
			{"97501.00", "1.20"},
			{"97501.50", "2.40"},
		},
	})

	slice := e.GetSlice(0)

	assert.Equal(t, 1.0, slice.Spread)
	assert.Equal(t, 97500.5, slice.Midpoint)
	require.Len(t, slice.Bids, 2)
	assert.Equal(t, 1.5, slice.Bids[0].Cumulative)
	assert.Equal(t, 2.25, slice.Bids[1].Cumulative)
	assert.Equal(t, 62.5, slice.Bids[1].DepthPercent)
}

func TestDeltaRemoval(t *testing.T) {
	e := New(15)
	e.ApplySnapshot(model.Snapshot{
		Bids: [][2]string{{"97499.50", "1.0"}},
	})
	e.ApplyDelta(model.RawDelta{
		FinalUpdateID: 2,
		Bids:          [][2]string{{"97499.50", "0"}},
	})
	slice := e.GetSlice(0)
	assert.Empty(t, slice.Bids)
}

func TestSliceOrderingAndMonotonicCumulative(t *testing.T) {
	e := New(15)
	e.ApplySnapshot(model.Snapshot{
		Bids: [][2]string{
			{"100", "1"}, {"99", "1"}, {"101", "1"},
		},
		Asks: [][2]string{
			{"105", "1"}, {"103", "1"}, {"104", "1"},
		},
	})
	slice := e.GetSlice(0)

	require.Len(t, slice.Bids, 3)
	assert.True(t, slice.Bids[0].Price > slice.Bids[1].Price)
	assert.True(t, slice.Bids[1].Price > slice.Bids[2].Price)
	assert.True(t, slice.Bids[0].Cumulative < slice.Bids[1].Cumulative)
	assert.True(t, slice.Bids[1].Cumulative < slice.Bids[2].Cumulative)

	require.Len(t, slice.Asks, 3)
	assert.True(t, slice.Asks[0].Price < slice.Asks[1].Price)
	assert.True(t, slice.Asks[1].Price < slice.Asks[2].Price)
}

func TestEmptySidesZeroSpreadMidpoint(t *testing.T) {
	e := New(15)
	e.ApplySnapshot(model.Snapshot{Bids: [][2]string{{"100", "1"}}})
	slice := e.GetSlice(0)
	assert.Empty(t, slice.Asks)
	assert.Equal(t, 0.0, slice.Spread)
	assert.Equal(t, 0.0, slice.Midpoint)
}

func TestNaNInputsSkipped(t *testing.T) {
	e := New(15)
	e.ApplySnapshot(model.Snapshot{
		Bids: [][2]string{
			{"100", "1"},
			{"not-a-number", "1"},
			{"101", "not-a-number"},
		},
	})
	slice := e.GetSlice(0)
	require.Len(t, slice.Bids, 1)
	assert.Equal(t, 100.0, slice.Bids[0].Price)
}

func TestSetDepthAppliesToFutureSlices(t *testing.T) {
	e := New(1)
	e.ApplySnapshot(model.Snapshot{
		Bids: [][2]string{{"100", "1"}, {"99", "1"}},
	})
	require.Len(t, e.GetSlice(0).Bids, 1)

	e.SetDepth(2)
	require.Len(t, e.GetSlice(0).Bids, 2)
}

func TestPublishedReflectsLastSlice(t *testing.T) {
	e := New(15)
	e.ApplySnapshot(model.Snapshot{Bids: [][2]string{{"100", "1"}}})
	slice := e.GetSlice(42)
	published := e.Published()
	assert.Equal(t, slice.TimestampMs, published.TimestampMs)
}
