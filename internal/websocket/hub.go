// Package websocket pushes live events to an account's open browser tabs.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const EventFileDownloaded = "file_downloaded"

type Event struct {
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
}

// NewUpgrader only accepts browser connections from the configured origins.
// Requests without an Origin header (non-browser clients) are allowed.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin] || allowed["*"]
		},
	}
}

type Hub struct {
	clients    map[int64]map[*Client]bool
	mu         sync.RWMutex
	Register   chan *Client
	Unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.AccountID]; !ok {
		h.clients[client.AccountID] = make(map[*Client]bool)
	}
	h.clients[client.AccountID][client] = true
	log.WithField("account_id", client.AccountID).Debug("websocket client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if accountClients, ok := h.clients[client.AccountID]; ok {
		if _, ok := accountClients[client]; ok {
			delete(accountClients, client)
			close(client.send)
			if len(accountClients) == 0 {
				delete(h.clients, client.AccountID)
			}
			log.WithField("account_id", client.AccountID).Debug("websocket client unregistered")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for accountID, accountClients := range h.clients {
		for client := range accountClients {
			close(client.send)
		}
		delete(h.clients, accountID)
	}
}

func (h *Hub) ConnectedClients(accountID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// Publish delivers an event to every connection of the account. Slow
// consumers with a full buffer miss the event.
func (h *Hub) Publish(accountID int64, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{EventType: eventType, Payload: payload})
	if err != nil {
		log.WithError(err).WithField("event_type", eventType).Error("failed to marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if accountClients, ok := h.clients[accountID]; ok {
		for client := range accountClients {
			select {
			case client.send <- data:
			default:
				log.WithField("account_id", accountID).Warn("websocket send buffer is full, dropping message")
			}
		}
	}
}
