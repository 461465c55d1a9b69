// Package transport implements the Transport Client: a single streaming
// session to the exchange with capped exponential backoff reconnects and
// JSON depth-frame parsing.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"depthfeed/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	baseDelay            = 1 * time.Second
	maxDelay             = 30 * time.Second
	maxReconnectAttempts = 5
)

// Callbacks are invoked from the client's single read-loop goroutine; a
// caller composing TC into a larger pipeline (e.g. the Producer Host) must
// treat them as already-serialized and must not block in them for long.
type Callbacks struct {
	OnOpen         func()
	OnMessage      func(model.RawDelta)
	OnClose        func()
	OnError        func(error)
	OnReconnecting func(attempt int)
}

// Client maintains one streaming session to
// {base_ws_url}/{lowercased_symbol}{suffix}.
type Client struct {
	url string
	cb  Callbacks

	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	log *zap.Logger
}

// New builds a Client targeting the given endpoint parts. Symbol is
// lowercased per §4.1. A nil logger installs a no-op one.
func New(baseWSURL, symbol, suffix string, cb Callbacks, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	url := baseWSURL + "/" + strings.ToLower(symbol) + suffix
	return &Client{
		url:    url,
		cb:     cb,
		dialer: websocket.DefaultDialer,
		log:    log,
	}
}

// Connect opens the session in a background goroutine; on unexpected close
// it schedules a reconnect per the capped backoff ladder.
func (c *Client) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.loop(ctx)
}

// Disconnect gracefully closes the session and suppresses any pending
// reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) loop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return
		}
		if c.cb.OnClose != nil {
			c.cb.OnClose()
		}
		if err == nil {
			attempt = 0
			continue
		}

		attempt++
		if attempt > maxReconnectAttempts {
			c.log.Error("reconnect attempts exhausted", zap.Error(err), zap.String("url", c.url))
			if c.cb.OnError != nil {
				c.cb.OnError(fmt.Errorf("transport: reconnect attempts exhausted: %w", err))
			}
			return
		}
		c.log.Warn("connection lost, reconnecting", zap.Error(err), zap.Int("attempt", attempt))
		if c.cb.OnReconnecting != nil {
			c.cb.OnReconnecting(attempt)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay(attempt)):
		}
	}
}

// reconnectDelay implements delay(n) = min(BASE*2^(n-1) + U(0,1s), 30s).
func reconnectDelay(attempt int) time.Duration {
	d := baseDelay * time.Duration(int64(1)<<uint(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	d += jitter
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func (c *Client) connectAndConsume(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		delta, ok := parseDepthFrame(raw)
		if !ok {
			// Non-depth frame or malformed JSON: swallowed per spec §4.1.
			continue
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(delta)
		}
	}
}

// depthFrame matches the Binance-style diff-depth stream event.
type depthFrame struct {
	EventType     string      `json:"e"`
	Symbol        string      `json:"s"`
	FirstUpdateID uint64      `json:"U"`
	FinalUpdateID uint64      `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

func parseDepthFrame(raw []byte) (model.RawDelta, bool) {
	var f depthFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.RawDelta{}, false
	}
	if f.EventType != "depthUpdate" {
		return model.RawDelta{}, false
	}
	if f.FinalUpdateID < f.FirstUpdateID {
		return model.RawDelta{}, false
	}
	return model.RawDelta{
		FirstUpdateID: f.FirstUpdateID,
		FinalUpdateID: f.FinalUpdateID,
		Symbol:        f.Symbol,
		Bids:          f.Bids,
		Asks:          f.Asks,
	}, true
}
