package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wordday/internal/domain"
)

// Message types
const (
	MessageTypeRankUpdate   = "rank_update"
	MessageTypePlayerUpdate = "player_update"
	MessageTypeFinalized    = "partition_finalized"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message. Partition is the canonical
// "puzzleID:YYYY-MM-DD" key clients subscribe with.
type Message struct {
	Type      string      `json:"type"`
	Partition string      `json:"partition,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// RankUpdate carries a reranked partition for broadcast
type RankUpdate struct {
	Partition    string                    `json:"partition"`
	Entries      []domain.LeaderboardEntry `json:"entries"`
	TotalPlayers int                       `json:"total_players"`
}

// FinalizedNotice tells subscribers a partition has been frozen
type FinalizedNotice struct {
	Partition    string `json:"partition"`
	TotalPlayers int    `json:"total_players"`
	TopTenCount  int    `json:"top_ten_count"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by partition key
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client    *Client
	partition string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all partition subscriptions
				for key, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, key)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.partition]; !ok {
				h.clients[req.partition] = make(map[*Client]bool)
			}
			h.clients[req.partition][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "partition", req.partition)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.partition]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.partition)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "partition", req.partition)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If message carries a partition key, only send to its subscribers
	if message.Partition != "" {
		if clients, ok := h.clients[message.Partition]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastRankUpdate sends a reranked partition to its subscribers
func (h *Hub) BroadcastRankUpdate(puzzleID string, date time.Time, entries []domain.LeaderboardEntry) {
	key := domain.PartitionKey(puzzleID, date)
	message := &Message{
		Type:      MessageTypeRankUpdate,
		Partition: key,
		Data: RankUpdate{
			Partition:    key,
			Entries:      entries,
			TotalPlayers: len(entries),
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastPlayerUpdate sends one player's new entry to the partition's
// subscribers
func (h *Hub) BroadcastPlayerUpdate(entry domain.LeaderboardEntry) {
	message := &Message{
		Type:      MessageTypePlayerUpdate,
		Partition: domain.PartitionKey(entry.PuzzleID, entry.Date),
		Data:      entry,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastFinalized tells a partition's subscribers it has been frozen
func (h *Hub) BroadcastFinalized(snap domain.DailySnapshot) {
	key := domain.PartitionKey(snap.PuzzleID, snap.Date)
	message := &Message{
		Type:      MessageTypeFinalized,
		Partition: key,
		Data: FinalizedNotice{
			Partition:    key,
			TotalPlayers: snap.TotalPlayers,
			TopTenCount:  snap.TopTenCount,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a partition subscription
func (h *Hub) Subscribe(client *Client, partition string) {
	h.subscribe <- &subscriptionRequest{
		client:    client,
		partition: partition,
	}
}

// Unsubscribe removes a client from a partition subscription
func (h *Hub) Unsubscribe(client *Client, partition string) {
	h.unsubscribe <- &subscriptionRequest{
		client:    client,
		partition: partition,
	}
}

// GetSubscriberCount returns the number of subscribers for a partition
func (h *Hub) GetSubscriberCount(partition string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[partition]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
