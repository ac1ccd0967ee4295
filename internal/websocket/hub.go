package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification pushed to every client of a group.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients per group.
type Hub struct {
	mu     sync.RWMutex
	groups map[int64]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		groups: make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its group's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.groups[c.groupID]
	if !ok {
		room = make(map[*Client]struct{})
		h.groups[c.groupID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.groups[c.groupID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			close(c.send)
		}
		if len(room) == 0 {
			delete(h.groups, c.groupID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client in groupID. Clients with a full
// buffer miss the message.
func (h *Hub) Broadcast(groupID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.groups[groupID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropped message for slow client", "group_id", groupID, "user_id", c.userID)
		}
	}
}

// Disconnect closes every connection userID holds in groupID, used when
// the user leaves the group.
func (h *Hub) Disconnect(groupID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.groups[groupID]
	for c := range room {
		if c.userID == userID {
			delete(room, c)
			close(c.send)
		}
	}
	if len(room) == 0 {
		delete(h.groups, groupID)
	}
}

// ClientCount returns the number of connected clients across all groups.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.groups {
		n += len(room)
	}
	return n
}

// GroupClientCount returns the number of clients connected to groupID.
func (h *Hub) GroupClientCount(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}
