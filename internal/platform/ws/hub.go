// Package ws provides the real-time delivery router for chat. Clients join
// per-conversation rooms after passing the messaging authorization gate and
// receive every message stored in that conversation while joined.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/messaging"
)

// Event is the envelope for every frame exchanged over a connection.
type Event struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub tracks connected clients, their conversation rooms and a per-user
// index for direct notifications. All operations are safe for concurrent
// use.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}    // conversation id -> members
	users map[uuid.UUID]map[*Client]struct{} // user id -> that user's connections

	svc *messaging.Service
	log zerolog.Logger
}

// NewHub creates a hub routing through the given messaging service.
func NewHub(svc *messaging.Service, log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		users: make(map[uuid.UUID]map[*Client]struct{}),
		svc:   svc,
		log:   log.With().Str("component", "ws-hub").Logger(),
	}
}

// Register adds a freshly authenticated connection to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]struct{})
	}
	h.users[client.UserID][client] = struct{}{}
}

// Unregister removes a connection from every room and the user index, and
// closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.users[client.UserID]; ok {
		if _, registered := conns[client]; !registered {
			return
		}
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, client.UserID)
		}
	} else {
		return
	}

	for conv := range client.rooms {
		h.dropFromRoom(conv, client)
	}
	close(client.Send)
}

// Join puts the connection in the conversation room with the other user,
// provided the authorization gate allows the pair. A connection views one
// conversation at a time: joining replaces any previous membership. A
// denied join is silent: the client receives nothing and keeps whatever
// room it had.
func (h *Hub) Join(ctx context.Context, client *Client, otherID uuid.UUID) {
	if err := h.svc.Authorize(ctx, client.UserID, otherID); err != nil {
		h.log.Warn().
			Str("user_id", client.UserID.String()).
			Str("other_id", otherID.String()).
			Msg("join denied")
		return
	}
	conv := messaging.ConversationID(client.UserID, otherID)

	h.mu.Lock()
	defer h.mu.Unlock()
	for prev := range client.rooms {
		h.dropFromRoom(prev, client)
		delete(client.rooms, prev)
	}
	if h.rooms[conv] == nil {
		h.rooms[conv] = make(map[*Client]struct{})
	}
	h.rooms[conv][client] = struct{}{}
	client.rooms[conv] = struct{}{}
}

// Leave removes the connection from the conversation room with the other
// user. Leaving a room never joined is a no-op.
func (h *Hub) Leave(client *Client, otherID uuid.UUID) {
	conv := messaging.ConversationID(client.UserID, otherID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropFromRoom(conv, client)
	delete(client.rooms, conv)
}

// dropFromRoom must be called with h.mu held.
func (h *Hub) dropFromRoom(conv string, client *Client) {
	if members, ok := h.rooms[conv]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, conv)
		}
	}
}

// BroadcastMessage delivers a stored message to every connection in its
// conversation room. A client with a full buffer is skipped rather than
// blocking delivery to the rest of the room.
func (h *Hub) BroadcastMessage(m *messaging.Message) {
	data := marshalEvent(h.log, "message:new", m)
	if data == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[m.ConversationID] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// NotifyUser pushes an event to every connection of one user, regardless of
// rooms. Used for reminder firings.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, payload interface{}) {
	data := marshalEvent(h.log, event, payload)
	if data == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.users[userID] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.users {
		n += len(conns)
	}
	return n
}

// RoomCount returns the number of members in a conversation room.
func (h *Hub) RoomCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

func marshalEvent(log zerolog.Logger, event string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return nil
	}
	data, err := json.Marshal(Event{Event: event, Data: raw, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return nil
	}
	return data
}
