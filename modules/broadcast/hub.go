package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Conn is the subset of the WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// sendQueueSize bounds the per-client outbound queue. Frames beyond
// the bound are dropped rather than blocking the hub.
const sendQueueSize = 256

// Client represents a connected WebSocket session as seen by the hub.
// All outbound frames pass through the send queue and are written by a
// single goroutine; the connection allows only one concurrent writer.
type Client struct {
	ID   string
	Room string
	Conn Conn

	mu       sync.Mutex
	closed   bool
	send     chan []byte
	done     chan struct{}
	pumpOnce sync.Once
}

// NewClient creates a client with its outbound queue ready for use.
func NewClient(id, room string, conn Conn) *Client {
	return &Client{
		ID:   id,
		Room: room,
		Conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Send queues an encoded frame for delivery. It reports false when the
// client has shut down or its queue is full; the frame is dropped
// either way.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Wait blocks until the writer goroutine has drained the queue and
// closed the connection.
func (c *Client) Wait() {
	<-c.done
}

// startPump starts the writer goroutine. Safe to call more than once.
func (c *Client) startPump() {
	c.pumpOnce.Do(func() {
		go c.writePump()
	})
}

// writePump is the connection's only writer. It drains the send queue
// until shutdown, then closes the connection.
func (c *Client) writePump() {
	for data := range c.send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[hub] Failed to send to client %s: %v", c.ID, err)
		}
	}
	_ = c.Conn.Close()
	close(c.done)
}

// shutdown stops the send queue. Safe to call more than once.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Frame is the JSON envelope written to WebSocket clients.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EncodeFrame marshals a typed frame for a single WebSocket write.
func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: event, Payload: data})
}

// Hub tracks this instance's WebSocket connections and fans frames out
// to them. It only ever sees locally connected sessions; cross-instance
// fan-out happens upstream on the event bus.
type Hub struct {
	clients    map[string]*Client         // sessionID -> Client
	rooms      map[string]map[string]bool // room -> set of sessionIDs
	register   chan *Client
	unregister chan *Client
	broadcast  chan *outboundFrame
	done       chan struct{}
	mu         sync.RWMutex
}

// outboundFrame is a frame queued for local delivery. An empty room
// means every connected client.
type outboundFrame struct {
	room    string
	event   string
	payload any
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outboundFrame, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It accepts a context for graceful
// shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[hub] Shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case frame := <-h.broadcast:
			h.handleBroadcast(frame)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends a frame to all clients in a room. An empty room
// reaches every connected client.
func (h *Hub) Broadcast(room, event string, payload any) {
	h.broadcast <- &outboundFrame{
		room:    room,
		event:   event,
		payload: payload,
	}
}

// MoveClient reassigns a client to a different room.
func (h *Hub) MoveClient(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[sessionID]
	if !ok {
		return
	}

	if client.Room != "" && h.rooms[client.Room] != nil {
		delete(h.rooms[client.Room], sessionID)
		if len(h.rooms[client.Room]) == 0 {
			delete(h.rooms, client.Room)
		}
	}

	client.Room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][sessionID] = true
	log.Printf("[hub] Client %s moved to room %s", sessionID, room)
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients in a room.
func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if client.Room != "" {
		if h.rooms[client.Room] == nil {
			h.rooms[client.Room] = make(map[string]bool)
		}
		h.rooms[client.Room][client.ID] = true
	}
	client.startPump()
	log.Printf("[hub] Client %s registered in room %s", client.ID, client.Room)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	delete(h.clients, client.ID)
	if client.Room != "" && h.rooms[client.Room] != nil {
		delete(h.rooms[client.Room], client.ID)
		if len(h.rooms[client.Room]) == 0 {
			delete(h.rooms, client.Room)
		}
	}
	client.shutdown()
	log.Printf("[hub] Client %s unregistered", client.ID)
}

func (h *Hub) handleBroadcast(frame *outboundFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := EncodeFrame(frame.event, frame.payload)
	if err != nil {
		log.Printf("[hub] Failed to encode %s frame: %v", frame.event, err)
		return
	}

	if frame.room == "" {
		for _, client := range h.clients {
			h.sendToClient(client, data)
		}
		return
	}

	for sessionID := range h.rooms[frame.room] {
		if client, ok := h.clients[sessionID]; ok {
			h.sendToClient(client, data)
		}
	}
}

func (h *Hub) sendToClient(client *Client, data []byte) {
	if !client.Send(data) {
		log.Printf("[hub] Dropped frame for client %s: send queue unavailable", client.ID)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.shutdown()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
}
