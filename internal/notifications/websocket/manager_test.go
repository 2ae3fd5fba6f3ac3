package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func (m *Manager) register(userID string) *connection {
	c := &connection{
		id:     uuid.New().String(),
		userID: userID,
		send:   make(chan Message, 64),
	}
	m.mu.Lock()
	m.connections[userID] = append(m.connections[userID], c)
	m.mu.Unlock()
	return c
}

func TestSendToUserDelivers(t *testing.T) {
	m := NewManager(zap.NewNop())
	c := m.register("user-1")

	delivered := m.SendToUser("user-1", Message{Type: "workflow_submitted", Timestamp: time.Now()})
	assert.Equal(t, 1, delivered)

	msg := <-c.send
	assert.Equal(t, "workflow_submitted", msg.Type)

	assert.Equal(t, 0, m.SendToUser("nobody", Message{Type: "noop"}))
}

func TestSendToUserDropsSlowConsumer(t *testing.T) {
	m := NewManager(zap.NewNop())
	c := m.register("user-1")
	c.send = make(chan Message) // unbuffered, nobody reading
	assert.Equal(t, 0, m.SendToUser("user-1", Message{Type: "noop"}))
}

// Disconnects close the send channel under the write lock; pushes must
// never race with that close, or the dispatcher panics mid-request.
func TestSendToUserSurvivesConcurrentDisconnects(t *testing.T) {
	m := NewManager(zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			c := m.register("user-1")
			m.remove(c)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
			m.SendToUser("user-1", Message{Type: "noop", Timestamp: time.Now()})
		}
	}
}

func TestBroadcastSurvivesConcurrentDisconnects(t *testing.T) {
	m := NewManager(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			c := m.register("user-2")
			m.remove(c)
		}
	}()

	for i := 0; i < 2000; i++ {
		m.Broadcast(Message{Type: "noop"})
	}
	wg.Wait()
}
