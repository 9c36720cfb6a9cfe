// Package hub fans viewer-facing events out over WebSocket and feeds
// viewer commands back into the session layer.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBuffer bounds the per-viewer outbound queue. A viewer that cannot
// drain it loses events rather than stalling the broadcast path.
const sendBuffer = 64

// Envelope is the wire format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CommandFunc handles one inbound viewer command. Replies meant only for
// the issuing viewer go through c.Send; broadcasts through the hub.
type CommandFunc func(c *Client, event string, data json.RawMessage)

// ConnectFunc runs when a viewer connects, before any commands.
type ConnectFunc func(c *Client)

// Hub tracks connected viewers and broadcasts tagged events to all of them.
type Hub struct {
	upgrader  websocket.Upgrader
	onConnect ConnectFunc
	onCommand CommandFunc

	mu      sync.RWMutex
	clients map[string]*Client
}

// New builds an empty hub. Handlers are attached afterwards so the session
// layer can hold a hub reference without an import cycle.
func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
	}
}

// SetHandlers wires the connect and command callbacks.
func (h *Hub) SetHandlers(onConnect ConnectFunc, onCommand CommandFunc) {
	h.onConnect = onConnect
	h.onCommand = onCommand
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one event to every connected viewer. Events to viewers
// with a full queue are dropped; delivery is best effort by design.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := marshalEnvelope(event, data)
	if err != nil {
		log.Printf("[hub] drop %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.queue(event, payload)
	}
}

// ServeWS upgrades one HTTP request into a viewer connection and runs its
// read loop until the viewer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] upgrade failed: %v", err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log.Printf("[hub] viewer %s connected", c.id)

	go c.writePump()
	if h.onConnect != nil {
		h.onConnect(c)
	}
	h.readPump(c)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		c.shutdown()
		log.Printf("[hub] viewer %s disconnected", c.id)
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
			// Malformed commands are ignored, not surfaced.
			continue
		}
		if h.onCommand != nil {
			h.onCommand(c, env.Event, env.Data)
		}
	}
}

// Client is one connected viewer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Send queues one event for this viewer only. Sends after disconnect are
// dropped; a translation resolving for a viewer that already left is
// harmless.
func (c *Client) Send(event string, data any) {
	payload, err := marshalEnvelope(event, data)
	if err != nil {
		log.Printf("[hub] drop %s event: %v", event, err)
		return
	}
	c.queue(event, payload)
}

func (c *Client) queue(event string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("[hub] viewer %s too slow, dropped %s", c.id, event)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.conn.Close()
}

func (c *Client) writePump() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	env := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data}
	return json.Marshal(env)
}
