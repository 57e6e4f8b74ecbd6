package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/clubnotify/internal/activity"
	"github.com/dukerupert/clubnotify/internal/model"
)

// MessageNotification is the type of an in-app notification message.
const MessageNotification = "notification"

// Message is a JSON frame pushed to a user's in-app surfaces.
type Message struct {
	Type             string                 `json:"type"`
	ID               string                 `json:"id,omitempty"`
	NotificationType model.NotificationType `json:"notification_type,omitempty"`
	Priority         model.Priority         `json:"priority,omitempty"`
	Title            string                 `json:"title,omitempty"`
	Body             string                 `json:"body,omitempty"`
	URL              string                 `json:"url,omitempty"`
	Count            int                    `json:"count,omitempty"`
}

// inbound is a frame sent by the app to report a user interaction.
type inbound struct {
	Kind string `json:"kind"`
}

// InteractionRecorder receives interactions reported by connected apps.
type InteractionRecorder interface {
	RecordInteraction(userID string, kind activity.Kind)
}

// Hub tracks connected clients per user.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	recorder InteractionRecorder
	logger   *slog.Logger
}

// NewHub creates a new Hub. recorder may be nil.
func NewHub(logger *slog.Logger, recorder InteractionRecorder) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		recorder: recorder,
		logger:   logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// SendToUser queues msg for every client of userID and returns how many
// clients accepted it. Clients with a full buffer are skipped.
func (h *Hub) SendToUser(userID string, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
			sent++
		default:
			// Client buffer full, drop the message
		}
	}
	return sent
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.clients {
		for c := range set {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// IsOnline reports whether userID has at least one connected client.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// OnlineUsers returns the number of users with a connected client.
func (h *Hub) OnlineUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleInbound(userID string, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		h.logger.Debug("ignoring malformed frame", "user_id", userID, "error", err)
		return
	}
	kind, err := activity.ParseKind(in.Kind)
	if err != nil {
		h.logger.Debug("ignoring unknown interaction kind", "user_id", userID, "error", err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordInteraction(userID, kind)
	}
}
