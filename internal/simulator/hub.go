package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	Namespace    = "simulator"
	EventMessage = "message"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// ErrHubClosed is returned when publishing to a closed Hub.
var ErrHubClosed = errors.New("simulator hub closed")

// Publisher accepts one intercepted outbound payload for fan-out
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// Envelope is the frame every observer receives
type Envelope struct {
	Namespace string `json:"namespace"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
}

type observer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// send is never closed; done signals shutdown to both pumps.
func (o *observer) close() {
	o.once.Do(func() { close(o.done) })
}

// Hub keeps the set of connected simulator observers
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*observer
	upgrader  websocket.Upgrader
	logger    *zap.Logger
	closed    atomic.Bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		observers: make(map[string]*observer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Count returns the number of connected observers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Publish sends payload to every observer connected at call time.
// Observers whose buffer is full miss the event.
func (h *Hub) Publish(ctx context.Context, payload any) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := json.Marshal(Envelope{Namespace: Namespace, Event: EventMessage, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode simulator event: %w", err)
	}

	h.mu.RLock()
	snapshot := make([]*observer, 0, len(h.observers))
	for _, o := range h.observers {
		snapshot = append(snapshot, o)
	}
	h.mu.RUnlock()

	for _, o := range snapshot {
		select {
		case <-o.done:
		case o.send <- frame:
		default:
			h.logger.Warn("simulator observer too slow, dropping event", zap.String("observer_id", o.id))
		}
	}

	h.logger.Debug("simulator event published", zap.Int("observers", len(snapshot)))
	return nil
}

// ServeWS upgrades the request and registers the connection as an observer
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "simulator unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("simulator upgrade failed", zap.Error(err))
		return
	}

	o := &observer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.register(o, r.RemoteAddr)

	go h.writePump(o)
	go h.readPump(o)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}

// Close disconnects all observers and rejects further publishes
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, o := range h.observers {
		o.close()
		delete(h.observers, id)
	}
}

func (h *Hub) register(o *observer, remote string) {
	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		o.close()
		return
	}
	h.observers[o.id] = o
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.Info("simulator observer joined",
		zap.String("observer_id", o.id),
		zap.String("remote_addr", remote),
		zap.Int("observers", count),
	)
}

func (h *Hub) unregister(o *observer) {
	h.mu.Lock()
	_, ok := h.observers[o.id]
	delete(h.observers, o.id)
	count := len(h.observers)
	h.mu.Unlock()

	o.close()
	if ok {
		h.logger.Info("simulator observer left", zap.String("observer_id", o.id), zap.Int("observers", count))
	}
}

// readPump discards client frames and detects disconnects
func (h *Hub) readPump(o *observer) {
	defer h.unregister(o)

	o.conn.SetReadLimit(512)
	_ = o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(o *observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()

	for {
		select {
		case <-o.done:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = o.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
