// Package presentation is the one-way sink the engine publishes to
// (spec.md §2): a websocket broadcast hub plus a small admin HTTP surface.
// Nothing the engine does ever reads back from here. Grounded on the
// teacher's internal/handlers/websocket.go Hub, stripped of the
// session/player/spectator bookkeeping that doesn't apply to a single
// always-broadcast stream.
package presentation

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chess-crowd/internal/events"
	"chess-crowd/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains connected subscribers and broadcasts every published
// message to all of them — the teacher's Hub had per-session routing, this
// one has a single implicit "session" since there's exactly one stream.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub. Call Run in its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    map[*client]struct{}{},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
	}
}

// Run drives the hub's register/unregister/broadcast loop until stopCh is
// closed, mirroring the teacher's Hub.Run shape.
func (h *Hub) Run(stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			var dead []*client
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					dead = append(dead, c)
				}
			}
			h.mu.RUnlock()
			if len(dead) > 0 {
				h.mu.Lock()
				for _, c := range dead {
					if _, ok := h.clients[c]; ok {
						delete(h.clients, c)
						close(c.send)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Publish marshals and broadcasts a presentation event to every subscriber.
// Fire-and-forget: a slow or dead subscriber is dropped, never blocks the
// engine (spec.md §2's one-way sink contract).
func (h *Hub) Publish(ev events.PresentationEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Presentation] failed to marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("[Presentation] broadcast channel full, dropping event")
	}
}

// PublishModel marshals and broadcasts a full model snapshot to every
// connected subscriber; the engine calls it on each model refresh. A newly
// connected subscriber gets no snapshot until the next refresh, and the
// /state endpoint reads the model through its ModelSource, not through here.
func (h *Hub) PublishModel(m *model.Model) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Printf("[Presentation] failed to marshal model: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("[Presentation] broadcast channel full, dropping model snapshot")
	}
}

// ServeWS upgrades r into a websocket subscriber and pumps broadcast
// traffic to it until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Presentation] upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.register <- c

	go c.writePump(h)
	c.readPump(h)
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
