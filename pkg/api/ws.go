package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 64
)

// clientMessage is what observers may send; only snapshot requests are understood.
type clientMessage struct {
	Type string `json:"type"`
}

// observer is one connected push channel client. Only its write loop writes
// to conn; send is closed exactly once, under the hub lock.
type observer struct {
	id     string
	conn   *websocket.Conn
	send   chan model.Message
	closed bool
}

// Hub fans out cycle results to connected observers. A new observer receives
// a snapshot before any incremental message; an observer that cannot keep up
// is dropped rather than slowing down the others.
type Hub struct {
	upgrader  websocket.Upgrader
	snapshot  func() model.Status
	onCount   func(int)
	log       *zap.Logger
	mu        sync.Mutex
	observers map[string]*observer
}

func NewHub(snapshot func() model.Status, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		snapshot:  snapshot,
		onCount:   func(int) {},
		log:       log.Named("hub"),
		observers: map[string]*observer{},
	}
}

// OnCount registers a callback invoked with the observer count on every change.
func (h *Hub) OnCount(fn func(int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCount = fn
}

// ServeWS upgrades the request and registers the observer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	o := &observer{
		id:   uuid.NewString(),
		conn: c,
		send: make(chan model.Message, sendQueueSize),
	}
	h.mu.Lock()
	// queued before registration so no tick can overtake it
	o.send <- model.SnapshotMessage(h.snapshot())
	h.observers[o.id] = o
	n := len(h.observers)
	h.onCount(n)
	h.mu.Unlock()
	h.log.Info("observer connected", zap.String("id", o.id), zap.String("remote", r.RemoteAddr), zap.Int("observers", n))

	go h.writeLoop(o)
	go h.readLoop(o)
}

// Broadcast queues msg for every observer without blocking.
func (h *Hub) Broadcast(msg model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range h.observers {
		select {
		case o.send <- msg:
		default:
			h.log.Warn("observer queue full; dropping", zap.String("id", o.id))
			h.dropLocked(o)
		}
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range h.observers {
		h.dropLocked(o)
	}
}

func (h *Hub) drop(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(o)
}

func (h *Hub) dropLocked(o *observer) {
	if o.closed {
		return
	}
	o.closed = true
	close(o.send)
	delete(h.observers, o.id)
	h.onCount(len(h.observers))
}

func (h *Hub) writeLoop(o *observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = o.conn.Close()
		h.log.Info("observer disconnected", zap.String("id", o.id))
	}()
	for {
		select {
		case msg, ok := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = o.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := o.conn.WriteJSON(msg); err != nil {
				h.log.Debug("observer write failed", zap.String("id", o.id), zap.Error(err))
				h.drop(o)
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(o)
				return
			}
		}
	}
}

func (h *Hub) readLoop(o *observer) {
	defer func() {
		h.drop(o)
		_ = o.conn.Close()
	}()
	o.conn.SetReadLimit(maxMessageSize)
	_ = o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg clientMessage
		if err := o.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == model.MsgSnapshot {
			h.resend(o)
		}
	}
}

// resend queues a fresh snapshot for one observer.
func (h *Hub) resend(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.send <- model.SnapshotMessage(h.snapshot()):
	default:
		h.dropLocked(o)
	}
}
