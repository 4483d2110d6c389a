package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Subscription filters broadcasts by sector. An empty sector list receives
// everything.
type Subscription struct {
	SectorIDs []string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	logger  zerolog.Logger
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action    string   `json:"action"`
	SectorIDs []string `json:"sector_ids"`
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// Broadcast fans a payload out to every subscribed client. Slow clients are
// skipped, never waited on.
func (h *Hub) Broadcast(payload []byte, sectorID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, sectorID) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("drop message for slow client")
		}
	}
}

func match(sub Subscription, sectorID string) bool {
	if len(sub.SectorIDs) == 0 {
		return true
	}
	for _, id := range sub.SectorIDs {
		if id == sectorID {
			return true
		}
	}
	return false
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
