// Package websocket pushes realtime account notifications to connected SPA
// sessions.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/metrics"
)

// Hub tracks connected clients per account and fans out notifications
type Hub struct {
	mu    sync.RWMutex
	rooms accountRooms
	total int

	unregister chan *Client

	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub. Call Run before accepting connections.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(accountRooms),
		unregister: make(chan *Client, 64),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations until Shutdown
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case c := <-h.unregister:
			h.drop(c)
		}
	}
}

// add registers c. It reports false once the hub is shutting down.
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	h.rooms.add(c)
	h.total++
	h.mu.Unlock()

	metrics.ConnectionOpened()
	h.logger.Debug("websocket client registered",
		zap.String("client_id", c.ID),
		zap.String("account_id", c.AccountID.String()))
	return true
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	removed := h.rooms.remove(c)
	if removed {
		h.total--
		close(c.send)
	}
	h.mu.Unlock()

	if removed {
		metrics.ConnectionClosed()
		h.logger.Debug("websocket client unregistered",
			zap.String("client_id", c.ID),
			zap.String("account_id", c.AccountID.String()))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.rooms.all()
	h.rooms = make(accountRooms)
	h.total = 0
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		metrics.ConnectionClosed()
	}
	h.logger.Info("websocket hub stopped", zap.Int("disconnected", len(clients)))
}

// Notify sends msg to every session of the account. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Notify(accountID uuid.UUID, msg *Message) int {
	data, err := msg.encode()
	if err != nil {
		h.logger.Error("failed to encode websocket message", zap.String("type", msg.Type), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.rooms.clients(accountID) {
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("websocket send buffer full, dropping message",
				zap.String("client_id", c.ID),
				zap.String("type", msg.Type))
		}
	}
	return delivered
}

// NotifyJSON builds a message from payload and sends it to the account
func (h *Hub) NotifyJSON(accountID uuid.UUID, messageType string, payload interface{}) error {
	msg, err := NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	h.Notify(accountID, msg)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// AccountClients returns the number of sessions the account has open
func (h *Hub) AccountClients(accountID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[accountID])
}

// handle answers client frames. Only ping is understood.
func (h *Hub) handle(c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("malformed message")
		return
	}
	switch msg.Type {
	case TypePing:
		c.enqueue(&Message{Type: TypePong, Data: msg.Data})
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// Shutdown disconnects every client and stops Run
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) enqueueUnregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// sendTo queues data for one client if it is still registered
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.rooms[c.AccountID][c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
