package sequence

import (
	"testing"

	"depthfeed/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBook struct {
	lastUpdateID uint64
	snapshots    []model.Snapshot
	deltas       []model.RawDelta
	resets       int
}

func (f *fakeBook) ApplySnapshot(s model.Snapshot) {
	f.snapshots = append(f.snapshots, s)
	f.lastUpdateID = s.LastUpdateID
}

func (f *fakeBook) ApplyDelta(d model.RawDelta) {
	f.deltas = append(f.deltas, d)
	f.lastUpdateID = d.FinalUpdateID
}

func (f *fakeBook) Reset() {
	f.resets++
	f.lastUpdateID = 0
	f.snapshots = nil
	f.deltas = nil
}

func (f *fakeBook) LastUpdateID() uint64 { return f.lastUpdateID }

func TestSnapshotReconciliationScenario(t *testing.T) {
	book := &fakeBook{}
	m := NewManager(book)

	out := m.HandleDelta(model.RawDelta{FirstUpdateID: 100, FinalUpdateID: 102})
	assert.True(t, out.FetchSnapshot)
	assert.Equal(t, StateSyncing, m.State())

	m.HandleDelta(model.RawDelta{FirstUpdateID: 103, FinalUpdateID: 105})
	m.HandleDelta(model.RawDelta{FirstUpdateID: 106, FinalUpdateID: 108})

	m.HandleSnapshotResult(model.Snapshot{LastUpdateID: 104}, nil)

	require.Equal(t, StateSynchronized, m.State())
	assert.Equal(t, uint64(108), book.LastUpdateID())
	// 100..102 ends at or before 104 and is dropped; 103..105 ends after
	// 104 and is replayed together with 106..108.
	require.Len(t, book.deltas, 2)
	assert.Equal(t, uint64(103), book.deltas[0].FirstUpdateID)
	assert.Equal(t, uint64(106), book.deltas[1].FirstUpdateID)
}

func TestLargeGapResyncScenario(t *testing.T) {
	book := &fakeBook{lastUpdateID: 1003}
	m := NewManager(book)
	m.state = StateSynchronized

	gapSeen := false
	m.OnSequenceGap = func() { gapSeen = true }

	out := m.HandleDelta(model.RawDelta{FirstUpdateID: 3005, FinalUpdateID: 3007})

	assert.True(t, gapSeen)
	assert.True(t, out.SequenceGap)
	assert.True(t, out.FetchSnapshot)
	assert.Equal(t, StateSyncing, m.State())
	assert.EqualValues(t, 1, m.SequenceGaps())
	assert.Equal(t, 1, book.resets)
}

func TestSmallGapToleranceScenario(t *testing.T) {
	book := &fakeBook{lastUpdateID: 1003}
	m := NewManager(book)
	m.state = StateSynchronized

	gapSeen := false
	m.OnSequenceGap = func() { gapSeen = true }

	out := m.HandleDelta(model.RawDelta{FirstUpdateID: 1504, FinalUpdateID: 1506})

	assert.False(t, gapSeen)
	assert.False(t, out.SequenceGap)
	assert.Equal(t, StateSynchronized, m.State())
	assert.Equal(t, uint64(1506), book.LastUpdateID())
	assert.EqualValues(t, 0, m.SequenceGaps())
}

func TestSnapshotTooOldDiscardsAndCapsRefetch(t *testing.T) {
	book := &fakeBook{}
	m := NewManager(book)
	m.HandleDelta(model.RawDelta{FirstUpdateID: 500, FinalUpdateID: 500})

	out := m.HandleSnapshotResult(model.Snapshot{LastUpdateID: 10}, nil)
	assert.True(t, out.FetchSnapshot)

	out = m.HandleSnapshotResult(model.Snapshot{LastUpdateID: 20}, nil)
	assert.True(t, out.FetchSnapshot)

	out = m.HandleSnapshotResult(model.Snapshot{LastUpdateID: 30}, nil)
	assert.False(t, out.FetchSnapshot)
	assert.Equal(t, StateSyncing, m.State())
}
