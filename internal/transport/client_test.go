package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectDelayCapped(t *testing.T) {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		d := reconnectDelay(attempt)
		assert.LessOrEqual(t, d, maxDelay)
		assert.GreaterOrEqual(t, d, baseDelay*time.Duration(int64(1)<<uint(attempt-1)))
	}
}

func TestParseDepthFrameAcceptsDepthUpdate(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate","s":"BTCUSDT","U":157,"u":160,"b":[["100","1"]],"a":[["101","1"]]}`)
	delta, ok := parseDepthFrame(raw)
	assert.True(t, ok)
	assert.Equal(t, uint64(157), delta.FirstUpdateID)
	assert.Equal(t, uint64(160), delta.FinalUpdateID)
}

func TestParseDepthFrameDiscardsNonDepthFrames(t *testing.T) {
	raw := []byte(`{"e":"aggTrade","s":"BTCUSDT"}`)
	_, ok := parseDepthFrame(raw)
	assert.False(t, ok)
}

func TestParseDepthFrameDiscardsMalformedJSON(t *testing.T) {
	_, ok := parseDepthFrame([]byte(`not json`))
	assert.False(t, ok)
}

func TestParseDepthFrameDiscardsInvertedIDs(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate","U":200,"u":100}`)
	_, ok := parseDepthFrame(raw)
	assert.False(t, ok)
}

func TestNewLowercasesSymbolInURL(t *testing.T) {
	c := New("wss://fstream.binance.com/ws", "BTCUSDT", "@depth", Callbacks{}, nil)
	assert.Equal(t, "wss://fstream.binance.com/ws/btcusdt@depth", c.url)
}
