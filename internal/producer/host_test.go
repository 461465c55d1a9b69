package producer

import (
	"testing"

	"depthfeed/internal/config"
	"depthfeed/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFabric struct {
	published []model.OrderbookSlice
	statuses  []model.ConnectionStatus
	metrics   []model.Metrics
}

func (f *fakeFabric) Publish(s model.OrderbookSlice)                        { f.published = append(f.published, s) }
func (f *fakeFabric) PublishStatus(s model.ConnectionStatus, errMsg string) { f.statuses = append(f.statuses, s) }
func (f *fakeFabric) PublishMetrics(m model.Metrics)                        { f.metrics = append(f.metrics, m) }

func newTestHost() (*Host, *fakeFabric) {
	fabric := &fakeFabric{}
	h := New(config.Endpoint{
		WSURL:   "wss://example.invalid/ws",
		RESTURL: "https://example.invalid/depth",
		Suffix:  "@depth",
		Symbol:  "BTCUSDT",
	}, 15, fabric, nil)
	return h, fabric
}

func TestHandleOutcomeMapsSynchronizedToConnected(t *testing.T) {
	h, fabric := newTestHost()

	h.seq.HandleDelta(model.RawDelta{FirstUpdateID: 1, FinalUpdateID: 2})
	h.seq.HandleSnapshotResult(model.Snapshot{LastUpdateID: 1}, nil)

	h.handleOutcome(h.seq.HandleDelta(model.RawDelta{FirstUpdateID: 3, FinalUpdateID: 4}))

	require.NotEmpty(t, fabric.statuses)
	assert.Equal(t, model.StatusConnected, fabric.statuses[len(fabric.statuses)-1])
}

func TestOnTickPublishesDirtySlice(t *testing.T) {
	h, fabric := newTestHost()

	h.seq.HandleDelta(model.RawDelta{FirstUpdateID: 1, FinalUpdateID: 2})
	h.seq.HandleSnapshotResult(model.Snapshot{
		LastUpdateID: 1,
		Bids:         [][2]string{{"100", "1"}},
	}, nil)

	h.onTick()

	require.Len(t, fabric.published, 1)
	assert.False(t, h.book.IsDirty())
}

func TestOnTickSkipsWhenNotSynchronized(t *testing.T) {
	h, fabric := newTestHost()
	h.onTick()
	assert.Empty(t, fabric.published)
}

func TestSetStatusOnlyPublishesOnChange(t *testing.T) {
	h, fabric := newTestHost()
	h.setStatus(model.StatusConnecting, "")
	h.setStatus(model.StatusConnecting, "")
	h.setStatus(model.StatusSyncing, "")
	assert.Equal(t, []model.ConnectionStatus{model.StatusConnecting, model.StatusSyncing}, fabric.statuses)
}
