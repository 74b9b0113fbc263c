package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event is a progress message pushed to a report owner
type Event struct {
	Type   string      `json:"type"`
	Data   interface{} `json:"data,omitempty"`
	SentAt time.Time   `json:"sentAt"`
}

// Hub tracks connected clients per owner and fans events out to them
type Hub struct {
	// Registered clients: owner ID -> set of clients
	clients map[string]map[*Client]struct{}

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]struct{}),
	}
}

// Run starts the hub's main loop; it returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.OwnerID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.OwnerID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("🔌 Progress listener connected for %s", client.OwnerID)

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mu.Lock()
			for owner, set := range h.clients {
				for client := range set {
					close(client.send)
				}
				delete(h.clients, owner)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.OwnerID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.OwnerID)
	}
	log.Printf("📴 Progress listener disconnected for %s", client.OwnerID)
}

// Notify sends an event to every connection of ownerID. Slow clients whose
// buffer is full miss the event rather than block the pipeline.
func (h *Hub) Notify(ownerID, event string, payload interface{}) {
	msg, err := json.Marshal(Event{Type: event, Data: payload, SentAt: time.Now().UTC()})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[ownerID] {
		select {
		case client.send <- msg:
		default:
			log.Printf("⚠️ Dropped %s event for %s: buffer full", event, ownerID)
		}
	}
}

// Connections returns the number of live connections of ownerID
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}
