package leader

import (
	"testing"
	"time"

	"depthfeed/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Kind: EventSlice, Slice: model.OrderbookSlice{LastUpdateID: 9}})

	evA := <-a
	evB := <-b
	assert.Equal(t, uint64(9), evA.Slice.LastUpdateID)
	assert.Equal(t, uint64(9), evB.Slice.LastUpdateID)
}

func TestBusDropsOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)

	bus.Publish(Event{Kind: EventTabPing, TabPing: "one"})
	bus.Publish(Event{Kind: EventTabPing, TabPing: "two"})

	ev := <-sub
	require.Equal(t, "one", ev.TabPing)
	select {
	case <-sub:
		t.Fatal("expected second event to be dropped, buffer was full")
	default:
	}
}

func TestFabricPublishTranslatesToSliceEvent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(4)
	f := NewFabric(bus)

	f.Publish(model.OrderbookSlice{LastUpdateID: 5})
	ev := <-sub
	assert.Equal(t, EventSlice, ev.Kind)
	assert.Equal(t, uint64(5), ev.Slice.LastUpdateID)
}

func TestFabricPublishStatusTranslatesToStatusEvent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(4)
	f := NewFabric(bus)

	f.PublishStatus(model.StatusReconnecting, "boom")
	ev := <-sub
	assert.Equal(t, EventStatus, ev.Kind)
	assert.Equal(t, model.StatusReconnecting, ev.Status)
	assert.Equal(t, "boom", ev.ErrMsg)
}

func TestFabricPublishMetricsTranslatesToTabCountEvent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(4)
	f := NewFabric(bus)

	f.PublishMetrics(model.Metrics{TabCount: 4})
	ev := <-sub
	assert.Equal(t, EventTabCount, ev.Kind)
	assert.Equal(t, 4, ev.TabCount)
}

func TestPresenceTouchAndPrune(t *testing.T) {
	p := newPresence()
	p.touch("tab-a")
	p.touch("tab-b")

	assert.Equal(t, 2, p.prune(time.Hour))
}
