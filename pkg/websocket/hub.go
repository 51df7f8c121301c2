package websocket

import (
	"sync"

	"github.com/poolup/carpool/pkg/logger"
	"go.uber.org/zap"
)

// MessageHandler is a function that handles incoming messages
type MessageHandler func(*Client, *Message)

// DisconnectHandler observes a client leaving the hub.
type DisconnectHandler func(clientID, role string)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by user ID
	clients map[string]*Client

	// Clients grouped by trip ID
	trips map[string]map[string]*Client

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast messages to specific users
	Broadcast chan *BroadcastMessage

	// Message handlers by message type
	handlers map[string]MessageHandler

	// Disconnect handlers, run after a client is removed
	disconnects []DisconnectHandler

	mu sync.RWMutex
}

// BroadcastMessage represents a message to be broadcast
type BroadcastMessage struct {
	Target   string   // "user", "trip", "drivers", "all"
	TargetID string   // User ID or Trip ID
	Message  *Message // Message to send
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		trips:      make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *BroadcastMessage, 256),
		handlers:   make(map[string]MessageHandler),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	logger.Info("WebSocket hub started")
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case broadcast := <-h.Broadcast:
			h.broadcastMessage(broadcast)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Replace any existing connection for the same user
	if existingClient, ok := h.clients[client.ID]; ok {
		close(existingClient.Send)
	}

	h.clients[client.ID] = client
	logger.Debug("websocket client registered",
		zap.String("client_id", client.ID),
		zap.String("role", client.Role),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)

		tripID := client.GetTrip()
		if tripID != "" {
			if trip, ok := h.trips[tripID]; ok {
				delete(trip, client.ID)
				if len(trip) == 0 {
					delete(h.trips, tripID)
				}
			}
		}

		close(client.Send)
	}
	handlers := h.disconnects
	h.mu.Unlock()

	if !ok {
		return
	}
	logger.Debug("websocket client unregistered", zap.String("client_id", client.ID))

	// Run outside the lock so handlers can call back into the hub
	for _, fn := range handlers {
		fn(client.ID, client.Role)
	}
}

func (h *Hub) broadcastMessage(broadcast *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch broadcast.Target {
	case "user":
		if client, ok := h.clients[broadcast.TargetID]; ok {
			client.SendMessage(broadcast.Message)
		}

	case "trip":
		if trip, ok := h.trips[broadcast.TargetID]; ok {
			for _, client := range trip {
				client.SendMessage(broadcast.Message)
			}
		}

	case "drivers":
		for _, client := range h.clients {
			if client.Role == "driver" {
				client.SendMessage(broadcast.Message)
			}
		}

	case "all":
		for _, client := range h.clients {
			client.SendMessage(broadcast.Message)
		}
	}
}

// HandleMessage routes incoming messages to appropriate handlers
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if exists {
		handler(client, msg)
	} else {
		logger.Debug("no handler for message type", zap.String("type", msg.Type))
	}
}

// RegisterHandler registers a message handler for a specific type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// OnDisconnect registers a handler invoked whenever a client unregisters.
func (h *Hub) OnDisconnect(fn DisconnectHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, fn)
}

// AddClientToTrip adds a client to a trip room
func (h *Hub) AddClientToTrip(clientID, tripID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}

	if _, ok := h.trips[tripID]; !ok {
		h.trips[tripID] = make(map[string]*Client)
	}

	h.trips[tripID][clientID] = client
	client.SetTrip(tripID)
}

// RemoveClientFromTrip removes a client from a trip room
func (h *Hub) RemoveClientFromTrip(clientID, tripID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if trip, ok := h.trips[tripID]; ok {
		delete(trip, clientID)
		if len(trip) == 0 {
			delete(h.trips, tripID)
		}
	}

	if client, ok := h.clients[clientID]; ok {
		client.SetTrip("")
	}
}

// SendToUser sends a message to a specific user
func (h *Hub) SendToUser(userID string, msg *Message) {
	h.Broadcast <- &BroadcastMessage{
		Target:   "user",
		TargetID: userID,
		Message:  msg,
	}
}

// SendToTrip sends a message to both parties of a trip
func (h *Hub) SendToTrip(tripID string, msg *Message) {
	h.Broadcast <- &BroadcastMessage{
		Target:   "trip",
		TargetID: tripID,
		Message:  msg,
	}
}

// SendToDrivers sends a message to all connected drivers
func (h *Hub) SendToDrivers(msg *Message) {
	h.Broadcast <- &BroadcastMessage{
		Target:  "drivers",
		Message: msg,
	}
}

// GetClient returns a client by ID
func (h *Hub) GetClient(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	return client, ok
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetTripCount returns the number of active trip rooms
func (h *Hub) GetTripCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.trips)
}
