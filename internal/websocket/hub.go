// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Message types pushed to dashboard clients.
const (
	TypeHistory   = "history"
	TypeSummaries = "summaries"
	TypeSensors   = "sensors"
	TypeAlert     = "alert"
	TypeStatus    = "status"
)

// Envelope is the frame every dashboard message is wrapped in.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Encode marshals a typed message.
func Encode(kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Payload: payload})
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte  // Channel for messages to broadcast
	register   chan *Client // Channel for registering clients
	unregister chan *Client // Channel for unregistering clients
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger

	// OnClientCount, when set, is called from the hub goroutine after the client set changes.
	OnClientCount func(n int)
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log.With(zap.String("component", "ws-hub")),
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.countChanged()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("remote", client.remote()))
			h.countChanged()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Info("client unregistered", zap.String("remote", client.remote()))
			}
			h.mu.Unlock()
			h.countChanged()

		case message := <-h.broadcast:
			h.mu.Lock()
			dropped := 0
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Assume client is blocked or gone, unregister
					h.log.Warn("client send buffer full, removing", zap.String("remote", client.remote()))
					close(client.Send)
					delete(h.clients, client)
					dropped++
				}
			}
			h.mu.Unlock()
			if dropped > 0 {
				h.countChanged()
			}
		}
	}
}

func (h *Hub) countChanged() {
	if h.OnClientCount != nil {
		h.OnClientCount(h.ClientCount())
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient safely registers a new client to the hub
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a typed message to all clients. It does not block once the hub stopped.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	messageBytes, err := Encode(kind, payload)
	if err != nil {
		h.log.Error("marshal broadcast", zap.String("type", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- messageBytes:
	case <-h.done:
	}
}
