// Package feed streams domain events to websocket clients. The Hub
// subscribes to the event bus and fans each event out to every connected
// client whose category filter matches.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/propmaint/internal/event"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// Message is sent from server to client.
type Message struct {
	Type  string             `json:"type"` // "hello", "event", "pong"
	Event *event.DomainEvent `json:"event,omitempty"`
	// Categories echoes the client's filter in the hello message.
	Categories []string `json:"categories,omitempty"`
}

// ClientMessage is sent from client to server.
type ClientMessage struct {
	Type string `json:"type"` // "ping"
}

type client struct {
	send       chan event.DomainEvent
	categories map[string]bool
}

func (c *client) wants(evt event.DomainEvent) bool {
	return len(c.categories) == 0 || c.categories[evt.Category]
}

// Hub tracks connected clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	origins []string
	log     *slog.Logger
}

// NewHub returns a Hub accepting connections from the given origin patterns.
// With none, only same-origin connections are accepted.
func NewHub(log *slog.Logger, origins ...string) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: make(map[*client]struct{}), origins: origins, log: log.With("component", "feed")}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleEvent queues evt for every interested client. A client whose queue
// is full misses the event.
func (h *Hub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.send <- evt:
		default:
			h.log.Warn("feed client too slow, dropping event", "event_id", evt.ID)
		}
	}
	return nil
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until either side
// closes. Repeated "category" query parameters narrow the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	cats := r.URL.Query()["category"]
	c := &client{send: make(chan event.DomainEvent, clientBuffer), categories: make(map[string]bool, len(cats))}
	for _, cat := range cats {
		c.categories[cat] = true
	}
	h.add(c)
	defer h.remove(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			var msg ClientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				if err := h.write(ctx, conn, Message{Type: "pong"}); err != nil {
					return
				}
			}
		}
	}()

	if err := h.write(ctx, conn, Message{Type: "hello", Categories: cats}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt := <-c.send:
			if err := h.write(ctx, conn, Message{Type: "event", Event: &evt}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
