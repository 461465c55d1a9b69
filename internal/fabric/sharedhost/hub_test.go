package sharedhost

import (
	"testing"
	"time"

	"depthfeed/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPort(id string) *port {
	return &port{id: id, send: make(chan []byte, 16), lastSeenMs: nowMs()}
}

func TestEncodeSliceFrameCarriesKindByte(t *testing.T) {
	frame := encodeSliceFrame(model.OrderbookSlice{LastUpdateID: 7})
	require.NotEmpty(t, frame)
	assert.Equal(t, frameKindSlice, frame[0])
}

func TestEncodeTabCountFrame(t *testing.T) {
	frame := encodeTabCountFrame(3)
	assert.Equal(t, frameKindMetrics, frame[0])
	assert.Len(t, frame, 5)
}

func TestHubBroadcastsSkipsHiddenPorts(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	visible := newTestPort("visible")
	hidden := newTestPort("hidden")
	h.register <- visible
	h.register <- hidden
	time.Sleep(20 * time.Millisecond)
	drainAll(visible.send)
	drainAll(hidden.send)

	h.controlCh <- controlEvent{p: hidden, msg: controlMessage{Type: "visibility", Hidden: true}}
	time.Sleep(20 * time.Millisecond)
	drainAll(visible.send)
	drainAll(hidden.send)

	h.Publish(model.OrderbookSlice{LastUpdateID: 1})
	time.Sleep(20 * time.Millisecond)

	select {
	case msg := <-visible.send:
		assert.Equal(t, frameKindSlice, msg[0])
	case <-time.After(time.Second):
		t.Fatal("visible port did not receive slice")
	}

	select {
	case msg := <-hidden.send:
		t.Fatalf("hidden port unexpectedly received %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubLateJoinerReceivesCurrentSliceAndStatus(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	h.PublishStatus(model.StatusConnected, "")
	h.Publish(model.OrderbookSlice{LastUpdateID: 42})
	time.Sleep(20 * time.Millisecond)

	joiner := newTestPort("joiner")
	h.register <- joiner

	msg1 := <-joiner.send
	assert.Equal(t, frameKindStatus, msg1[0])
	msg2 := <-joiner.send
	assert.Equal(t, frameKindSlice, msg2[0])
}

func drainAll(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
