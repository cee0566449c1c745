package hub

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"bbqstall/crew-monitor/internal/metrics"
)

// Subscription narrows what a client receives. Empty fields match anything.
type Subscription struct {
	Channel  string
	BranchID string
	Tables   []string
}

// Meta describes a broadcast message for subscription matching.
type Meta struct {
	Channel  string
	BranchID string
	Table    string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
	subscribed   bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action   string   `json:"action"`
	Channel  string   `json:"channel"`
	BranchID string   `json:"branch_id"`
	Tables   []string `json:"tables"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

// UpdateSubscription replaces the client's filter. Clients receive nothing
// until they subscribe.
func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
	client.subscribed = true
}

func (h *Hub) ClearSubscription(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = Subscription{}
	client.subscribed = false
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(payload []byte, meta Meta) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.subscribed || !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			metrics.RealtimeDrops.Inc()
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func match(sub Subscription, meta Meta) bool {
	if sub.Channel != "" && meta.Channel != sub.Channel {
		return false
	}
	if sub.BranchID != "" && meta.BranchID != sub.BranchID {
		return false
	}
	if len(sub.Tables) > 0 && !contains(sub.Tables, meta.Table) {
		return false
	}
	return true
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
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
	msg.Channel = strings.TrimSpace(msg.Channel)
	msg.BranchID = strings.TrimSpace(msg.BranchID)
	return msg, true
}
