// Package hub provides connection management for WebSocket clients.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID             string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan []byte
	hub            *Hub
	mu             sync.Mutex
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Conversations maps conversation_id to set of connection IDs
	conversations map[string]map[string]bool

	// Channels for registration/unregistration
	register   chan registration
	unregister chan *Connection

	// Broadcast channel for sending to specific conversation
	broadcast chan *ConversationMessage

	// stopped is closed when Run returns
	stopped chan struct{}

	// OnCountChange is called with the number of open connections after
	// every registration change.
	OnCountChange func(n int)

	mu sync.RWMutex
}

// registration is acknowledged once the connection is in the registry.
type registration struct {
	conn *Connection
	done chan struct{}
}

// ConversationMessage is used to broadcast a message to a conversation.
type ConversationMessage struct {
	ConversationID string
	Data           []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections:   make(map[string]*Connection),
		conversations: make(map[string]map[string]bool),
		register:      make(chan registration),
		unregister:    make(chan *Connection),
		broadcast:     make(chan *ConversationMessage, 256),
		stopped:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when stop is closed; pending
// and later Register, Unregister and Broadcast calls return without effect.
func (h *Hub) Run(stop <-chan struct{}) {
	defer close(h.stopped)
	for {
		select {
		case <-stop:
			return

		case reg := <-h.register:
			conn := reg.conn
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.ConversationID != "" {
				h.addLocked(conn.ConversationID, conn.ID)
			}
			n := len(h.connections)
			h.mu.Unlock()
			close(reg.done)
			h.countChanged(n)
			log.Printf("Connection registered: %s (conversation: %s)", conn.ID, conn.ConversationID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.removeLocked(conn.ConversationID, conn.ID)
				close(conn.Send)
			}
			n := len(h.connections)
			h.mu.Unlock()
			h.countChanged(n)
			log.Printf("Connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if connIDs, ok := h.conversations[msg.ConversationID]; ok {
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						select {
						case conn.Send <- msg.Data:
						default:
							// Buffer full, close the connection
							log.Printf("Connection %s buffer full, closing", connID)
							go h.Unregister(conn)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection. Call Register to attach it.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
		hub:  h,
	}
}

// Register registers a connection with the hub. It returns once the
// connection can receive broadcasts.
func (h *Hub) Register(conn *Connection) {
	done := make(chan struct{})
	select {
	case h.register <- registration{conn: conn, done: done}:
		<-done
	case <-h.stopped:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.stopped:
	}
}

// BindConversation binds a connection to a conversation.
func (h *Hub) BindConversation(conn *Connection, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(conn.ConversationID, conn.ID)
	conn.ConversationID = conversationID
	h.addLocked(conversationID, conn.ID)
}

// Broadcast sends a message to all connections of a conversation.
func (h *Hub) Broadcast(conversationID string, data []byte) {
	msg := &ConversationMessage{
		ConversationID: conversationID,
		Data:           data,
	}
	select {
	case h.broadcast <- msg:
	case <-h.stopped:
	}
}

// PushToConversation sends a JSON message to all connections of a
// conversation. Conversations without live connections are skipped.
func (h *Hub) PushToConversation(conversationID string, v interface{}) error {
	if !h.HasActiveConnections(conversationID) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(conversationID, data)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if a conversation has any active connections.
func (h *Hub) HasActiveConnections(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connIDs, ok := h.conversations[conversationID]
	return ok && len(connIDs) > 0
}

func (h *Hub) addLocked(conversationID, connID string) {
	if h.conversations[conversationID] == nil {
		h.conversations[conversationID] = make(map[string]bool)
	}
	h.conversations[conversationID][connID] = true
}

func (h *Hub) removeLocked(conversationID, connID string) {
	if conversationID == "" || h.conversations[conversationID] == nil {
		return
	}
	delete(h.conversations[conversationID], connID)
	if len(h.conversations[conversationID]) == 0 {
		delete(h.conversations, conversationID)
	}
}

func (h *Hub) countChanged(n int) {
	if h.OnCountChange != nil {
		h.OnCountChange(n)
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
