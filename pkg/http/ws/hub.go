package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub manages WebSocket connections and routes events to match rooms.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection // user_id -> connection
	rooms       map[uuid.UUID][]uuid.UUID // match_id -> []user_id
	logger      zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		rooms:       make(map[uuid.UUID][]uuid.UUID),
		logger:      logger,
	}
}

// RegisterConnection adds a connection for a user, replacing any existing one.
func (h *Hub) RegisterConnection(userID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.connections[userID]; exists {
		old.Close()
	}

	h.connections[userID] = conn
	h.logger.Info().Str("user_id", userID.String()).Msg("connection registered")
}

// ReleaseConnection unregisters the user only while conn is still their
// current connection. A reconnect replaces the registration, and the old
// pump's cleanup must not tear down the new one; in that case nothing is
// removed and false is returned.
func (h *Hub) ReleaseConnection(userID uuid.UUID, conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, exists := h.connections[userID]
	if !exists || current != conn {
		return false
	}

	conn.Close()
	delete(h.connections, userID)
	h.logger.Info().Str("user_id", userID.String()).Msg("connection unregistered")

	for matchID, users := range h.rooms {
		for i, uid := range users {
			if uid == userID {
				h.rooms[matchID] = append(users[:i], users[i+1:]...)
				break
			}
		}
	}
	return true
}

// AddUserToMatchRoom associates a user with a match for targeted broadcasts.
func (h *Hub) AddUserToMatchRoom(userID, matchID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	users := h.rooms[matchID]
	for _, uid := range users {
		if uid == userID {
			return // already joined
		}
	}
	h.rooms[matchID] = append(users, userID)
}

// RemoveUserFromMatchRoom removes a user from a match room.
func (h *Hub) RemoveUserFromMatchRoom(userID, matchID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	users := h.rooms[matchID]
	for i, uid := range users {
		if uid == userID {
			h.rooms[matchID] = append(users[:i], users[i+1:]...)
			break
		}
	}
	if len(h.rooms[matchID]) == 0 {
		delete(h.rooms, matchID)
	}
}

// SendToUser delivers an event to a specific user. Returns whether the
// message was handed to a live connection.
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload any) bool {
	msg, err := envelope(event, payload)
	if err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("marshal payload failed")
		return false
	}

	h.mu.RLock()
	conn, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return false
	}
	if err := conn.Send(msg); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID.String()).Str("event", event).Msg("send failed")
		return false
	}
	return true
}

// BroadcastToMatchRoom sends an event to all players in a match room.
func (h *Hub) BroadcastToMatchRoom(matchID uuid.UUID, event string, payload any) {
	h.mu.RLock()
	users := make([]uuid.UUID, len(h.rooms[matchID]))
	copy(users, h.rooms[matchID])
	h.mu.RUnlock()

	for _, userID := range users {
		h.SendToUser(userID, event, payload)
	}
}

// IsOnline reports whether a user has a live connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

func envelope(event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: event, Payload: data}, nil
}

// Connection represents a WebSocket connection with a buffered send queue.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 256),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.sendCh)
	c.conn.Close()
}

// WritePump sends messages from the send queue.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump receives messages and calls the handler.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			break
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionClosed = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull    = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
