package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

const sendBufferSize = 64

// Connection is a single WebSocket client bound to a chat session.
type Connection struct {
	ID         string
	SessionKey string
	Address    string
	Conn       *websocket.Conn
	Send       chan []byte

	mu sync.Mutex
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

// Close closes the underlying connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Hub tracks live connections per session key so every open tab of a
// session sees each reply.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	sessions    map[string]map[string]struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]struct{}),
	}
}

// NewConnection wraps ws for sessionKey. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionKey, address string) *Connection {
	return &Connection{
		ID:         uuid.New().String(),
		SessionKey: sessionKey,
		Address:    address,
		Conn:       ws,
		Send:       make(chan []byte, sendBufferSize),
	}
}

// Register adds conn to the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn.ID] = conn
	if h.sessions[conn.SessionKey] == nil {
		h.sessions[conn.SessionKey] = make(map[string]struct{})
	}
	h.sessions[conn.SessionKey][conn.ID] = struct{}{}
}

// Unregister removes conn and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(conn)
}

func (h *Hub) unregisterLocked(conn *Connection) {
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.sessions[conn.SessionKey]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.sessions, conn.SessionKey)
		}
	}
	close(conn.Send)
}

// CloseAll unregisters every connection, which makes their write pumps
// send a close frame and exit.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		h.unregisterLocked(conn)
	}
}

// Broadcast sends data to every connection of sessionKey. Connections whose
// buffer is full are skipped.
func (h *Hub) Broadcast(sessionKey string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.sessions[sessionKey] {
		select {
		case h.connections[id].Send <- data:
		default:
		}
	}
}

// BroadcastJSON sends a JSON message to all connections of a session.
func (h *Hub) BroadcastJSON(sessionKey string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(sessionKey, data)
	return nil
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return nil
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionCount returns the number of sessions with at least one connection.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
