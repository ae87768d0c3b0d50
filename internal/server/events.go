package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// MessageType names an event sent to /events subscribers.
type MessageType string

const (
	// MessageTypeHello is sent once when a subscriber connects.
	MessageTypeHello MessageType = "hello"

	// MessageTypeFeedReloaded is sent when a file-backed feed was
	// invalidated because its source changed.
	MessageTypeFeedReloaded MessageType = "feed_reloaded"
)

// Message is one event.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HelloData lists the collections served.
type HelloData struct {
	Collections []string `json:"collections"`
}

// FeedReloadedData names the changed source.
type FeedReloadedData struct {
	Source string `json:"source"`
	Op     string `json:"op"`
}

// hub fans messages out to websocket subscribers. Slow subscribers are
// dropped rather than allowed to stall the others.
type hub struct {
	clock clockwork.Clock
	log   logrus.FieldLogger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHub(clock clockwork.Clock, log logrus.FieldLogger) *hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &hub{
		clock:     clock,
		log:       log,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// publish queues msg for every subscriber. It never blocks.
func (h *hub) publish(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.log.Warn("Event channel full, dropping message")
	}
}

func (h *hub) message(typ MessageType, data any) Message {
	raw, _ := json.Marshal(data)
	return Message{Type: typ, Timestamp: h.clock.Now().UTC(), Data: raw}
}

func (h *hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.log.WithError(err).Error("Failed to marshal event")
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.log.WithError(err).Debug("Failed to send event")
					h.remove(conn)
				}
			}
		}
	}
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request, hello Message) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	data, _ := json.Marshal(hello)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, data)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.log.WithField("subscribers", n).Debug("Event subscriber connected")

	// Subscribers never send; reading detects disconnects.
	defer h.remove(conn)
	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	n := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.log.WithField("subscribers", n).Debug("Event subscriber disconnected")
}

func (h *hub) count() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}
