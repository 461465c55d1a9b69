// Package sharedhost implements the shared-host Distribution Fabric
// variant: a single Producer Host fans out slices to many consumer ports
// over websocket, skipping backgrounded (hidden) ports rather than
// queuing for them.
package sharedhost

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"time"

	"depthfeed/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pruneInterval = 3 * time.Second
	visibleTTL    = 6 * time.Second
	hiddenTTL     = 60 * time.Second
	clientSendBuf = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame kinds for the shared-host wire protocol. This is a protocol
// private to this fabric, distinct from the shared-memory layout in spec
// §6.3.
const (
	frameKindSlice   byte = 1
	frameKindStatus  byte = 2
	frameKindMetrics byte = 3
)

type statusUpdate struct {
	status model.ConnectionStatus
	errMsg string
}

// Hub maintains the port set and fans out published slices. It implements
// producer.Fabric.
type Hub struct {
	register   chan *port
	unregister chan *port
	publishCh  chan model.OrderbookSlice
	statusCh   chan statusUpdate
	controlCh  chan controlEvent

	// SetDepth, when set, is invoked for an incoming set_depth control
	// message; wired to the owning Producer Host.
	SetDepth func(int)
	// OnEmpty, when set, is invoked once the port set becomes empty so the
	// owner can tear down TC/SM/BE.
	OnEmpty func()

	done chan struct{}

	log *zap.Logger
}

type controlEvent struct {
	p   *port
	msg controlMessage
}

type controlMessage struct {
	Type   string `json:"type"`
	Hidden bool   `json:"hidden,omitempty"`
	Depth  int    `json:"depth,omitempty"`
}

type port struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	lastSeenMs    int64
	hidden        bool
	hiddenSinceMs int64
}

// NewHub constructs an idle Hub; call Run in a goroutine to start it. A nil
// logger installs a no-op one.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *port),
		unregister: make(chan *port),
		publishCh:  make(chan model.OrderbookSlice, 1),
		statusCh:   make(chan statusUpdate, 4),
		controlCh:  make(chan controlEvent, 64),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Publish implements producer.Fabric. Non-blocking: if a slice is already
// pending, it is replaced (only the latest slice matters).
func (h *Hub) Publish(s model.OrderbookSlice) {
	for {
		select {
		case h.publishCh <- s:
			return
		default:
			select {
			case <-h.publishCh:
			default:
			}
		}
	}
}

// PublishStatus implements producer.Fabric: status changes fan out to
// every port immediately, including hidden ones — they are not subject to
// the hidden-port backpressure policy.
func (h *Hub) PublishStatus(status model.ConnectionStatus, errMsg string) {
	h.statusCh <- statusUpdate{status: status, errMsg: errMsg}
}

// PublishMetrics implements producer.Fabric. The shared-host variant only
// surfaces tab_count, emitted directly by Run on membership change.
func (h *Hub) PublishMetrics(model.Metrics) {}

// ServeHTTP upgrades an incoming request to a websocket connection and
// registers it as a new port, performing the late-joiner handshake.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	p := &port{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, clientSendBuf),
		lastSeenMs: nowMs(),
	}

	h.register <- p

	go h.writePump(p)
	go h.readPump(p)
}

func (h *Hub) readPump(p *port) {
	defer func() {
		h.unregister <- p
		p.conn.Close()
	}()
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.controlCh <- controlEvent{p: p, msg: msg}
	}
}

func (h *Hub) writePump(p *port) {
	defer p.conn.Close()
	for msg := range p.send {
		w, err := p.conn.NextWriter(websocket.BinaryMessage)
		if err != nil {
			return
		}
		w.Write(msg)
		if err := w.Close(); err != nil {
			return
		}
	}
}

// Run drives the Hub's single serialized loop: membership changes,
// control messages, publishes, and pruning. Call in its own goroutine.
func (h *Hub) Run() {
	ports := make(map[string]*port)

	var latestSlice model.OrderbookSlice
	var hasSlice bool
	var latestStatus model.ConnectionStatus
	var latestErr string

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	broadcastTabCount := func() {
		frame := encodeTabCountFrame(len(ports))
		for _, p := range ports {
			trySend(p, frame)
		}
	}

	for {
		select {
		case <-h.done:
			return

		case p := <-h.register:
			ports[p.id] = p
			trySend(p, encodeStatusFrame(latestStatus, latestErr))
			if hasSlice {
				trySend(p, encodeSliceFrame(latestSlice))
			}
			broadcastTabCount()

		case p := <-h.unregister:
			if _, ok := ports[p.id]; ok {
				delete(ports, p.id)
				close(p.send)
			}
			broadcastTabCount()
			if len(ports) == 0 && h.OnEmpty != nil {
				h.OnEmpty()
			}

		case upd := <-h.statusCh:
			latestStatus = upd.status
			latestErr = upd.errMsg
			frame := encodeStatusFrame(latestStatus, latestErr)
			for _, p := range ports {
				trySend(p, frame)
			}

		case ev := <-h.controlCh:
			p, ok := ports[ev.p.id]
			if !ok {
				continue
			}
			p.lastSeenMs = nowMs()

			switch ev.msg.Type {
			case "ping":
			case "visibility":
				wasHidden := p.hidden
				p.hidden = ev.msg.Hidden
				if p.hidden {
					p.hiddenSinceMs = nowMs()
				} else if wasHidden && hasSlice {
					trySend(p, encodeSliceFrame(latestSlice))
				}
			case "set_depth":
				if h.SetDepth != nil {
					h.SetDepth(ev.msg.Depth)
				}
			}

		case slice := <-h.publishCh:
			latestSlice = slice
			hasSlice = true
			frame := encodeSliceFrame(slice)
			for _, p := range ports {
				if p.hidden {
					continue
				}
				trySend(p, frame)
			}

		case <-ticker.C:
			now := nowMs()
			changed := false
			for id, p := range ports {
				ttl := visibleTTL
				if p.hidden {
					ttl = hiddenTTL
				}
				if now-p.lastSeenMs >= ttl.Milliseconds() {
					delete(ports, id)
					close(p.send)
					changed = true
				}
			}
			if changed {
				broadcastTabCount()
				if len(ports) == 0 && h.OnEmpty != nil {
					h.OnEmpty()
				}
			}
		}
	}
}

// Stop terminates Run.
func (h *Hub) Stop() { close(h.done) }

func trySend(p *port, msg []byte) {
	select {
	case p.send <- msg:
	default:
		// Slow or hidden-backlogged port: drop this tick.
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func encodeSliceFrame(s model.OrderbookSlice) []byte {
	buf := make([]byte, 0, 160)
	buf = append(buf, frameKindSlice)
	return s.AppendMsgPack(buf)
}

func encodeStatusFrame(status model.ConnectionStatus, errMsg string) []byte {
	buf := make([]byte, 0, len(errMsg)+2)
	buf = append(buf, frameKindStatus, byte(status))
	buf = append(buf, []byte(errMsg)...)
	return buf
}

func encodeTabCountFrame(n int) []byte {
	buf := make([]byte, 5)
	buf[0] = frameKindMetrics
	binary.BigEndian.PutUint32(buf[1:5], uint32(n))
	return buf
}
