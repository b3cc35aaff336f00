// internal/notify/hub.go
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"opsdesk-service/internal/domain/billing"

	"go.uber.org/zap"
)

// Message is the envelope pushed to connected dashboards.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	EventConnected    = "connected"
	EventBillingState = "billing_state"
)

type broadcastMessage struct {
	businessID int64
	message    *Message
}

// Hub fans billing-state changes out to websocket clients. A business can
// hold several connections (multiple dashboard tabs); every connection for
// the business receives each update.
type Hub struct {
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

// PublishBillingState pushes the current billing snapshot to every
// connection held by the business. Never blocks the caller: the broadcast
// buffer absorbs bursts and drops beyond capacity.
func (h *Hub) PublishBillingState(businessID int64, state billing.BillingStateResponse) {
	msg := &broadcastMessage{
		businessID: businessID,
		message: &Message{
			Type:      EventBillingState,
			Data:      state,
			Timestamp: time.Now().UTC(),
		},
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("billing state broadcast dropped, buffer full",
			zap.Int64("business_id", businessID))
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.businessID] == nil {
		h.clients[client.businessID] = make(map[*Client]bool)
	}
	h.clients[client.businessID][client] = true

	h.logger.Info("websocket client connected",
		zap.Int64("business_id", client.businessID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(&Message{
		Type:      EventConnected,
		Data:      map[string]interface{}{"business_id": client.businessID},
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.businessID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.businessID)
			}

			h.logger.Info("websocket client disconnected",
				zap.Int64("business_id", client.businessID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) send(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	payload, err := json.Marshal(msg.message)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}

	if clients, ok := h.clients[msg.businessID]; ok {
		for client := range clients {
			client.sendRaw(payload)
		}
	}
}

// ConnectedClients reports live connections for a business.
func (h *Hub) ConnectedClients(businessID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[businessID]; ok {
		return len(clients)
	}
	return 0
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
}
