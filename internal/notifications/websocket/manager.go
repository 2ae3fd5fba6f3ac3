package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is one push frame sent to a connected client.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Manager tracks WebSocket connections per user and routes push messages.
type Manager struct {
	mu          sync.RWMutex
	connections map[string][]*connection
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

type connection struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan Message
}

// NewManager creates a WebSocket manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[string][]*connection),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by the CORS layer.
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and keeps the connection until
// the client goes away. userID comes from the authenticated actor.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &connection{
		id:     uuid.New().String(),
		userID: userID,
		conn:   ws,
		send:   make(chan Message, 64),
	}

	m.mu.Lock()
	m.connections[userID] = append(m.connections[userID], c)
	m.mu.Unlock()

	go m.writePump(c)
	m.readPump(c)
	return nil
}

// SendToUser pushes a message to every open connection of a user.
// Returns how many connections received it. The read lock is held
// across the sends so a concurrent disconnect cannot close a channel
// mid-delivery; the sends never block, so the hold is brief.
func (m *Manager) SendToUser(userID string, message Message) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	delivered := 0
	for _, c := range m.connections[userID] {
		select {
		case c.send <- message:
			delivered++
		default:
			// Slow consumer; drop rather than block the dispatcher.
		}
	}
	return delivered
}

// Broadcast pushes a message to every connected user.
func (m *Manager) Broadcast(message Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conns := range m.connections {
		for _, c := range conns {
			select {
			case c.send <- message:
			default:
			}
		}
	}
}

func (m *Manager) remove(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := m.connections[c.userID]
	for i, other := range conns {
		if other.id == c.id {
			m.connections[c.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(m.connections[c.userID]) == 0 {
		delete(m.connections, c.userID)
	}
	close(c.send)
}

func (m *Manager) readPump(c *connection) {
	defer func() {
		m.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("websocket closed unexpectedly",
					zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (m *Manager) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears down every connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conns := range m.connections {
		for _, c := range conns {
			c.conn.Close()
		}
	}
	m.connections = make(map[string][]*connection)
}
