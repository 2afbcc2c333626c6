// Package notify delivers offline controller messages to connected clients.
package notify

import (
	"context"
	"sync"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client is one connected page.
type Client struct {
	ID       uuid.UUID
	Messages <-chan offline.Message
}

// Hub implements ports.ClientNotifier over per-client buffered channels.
// A client whose buffer is full misses the message rather than blocking
// the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]chan offline.Message
	buffer  int
	logger  *logrus.Logger
}

func NewHub(buffer int, logger *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = 8
	}
	return &Hub{clients: make(map[uuid.UUID]chan offline.Message), buffer: buffer, logger: logger}
}

// Register connects a client. The returned function disconnects it and
// closes its channel.
func (h *Hub) Register() (*Client, func()) {
	id := uuid.New()
	ch := make(chan offline.Message, h.buffer)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.WithField("client_id", id).Debug("notify: client connected")
	}
	var once sync.Once
	return &Client{ID: id, Messages: ch}, func() {
		once.Do(func() { h.unregister(id) })
	}
}

func (h *Hub) unregister(id uuid.UUID) {
	h.mu.Lock()
	ch, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		close(ch)
		if h.logger != nil {
			h.logger.WithField("client_id", id).Debug("notify: client disconnected")
		}
	}
}

func (h *Hub) Broadcast(ctx context.Context, msg offline.Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for id, ch := range h.clients {
		select {
		case ch <- msg:
			delivered++
		case <-ctx.Done():
			return delivered
		default:
			if h.logger != nil {
				h.logger.WithFields(logrus.Fields{"client_id": id, "type": msg.Type}).Warn("notify: client buffer full, message dropped")
			}
		}
	}
	return delivered
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
