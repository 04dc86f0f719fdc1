// Package gateway is the realtime surface: it upgrades authenticated
// websocket connections, fans match events out to room subscribers, and
// feeds client heartbeats into the latency detector.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub manages websocket sessions and room-based message delivery.
// In production, backed by Redis pub/sub for multi-instance support.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Session
	logger *slog.Logger
}

// Session is one subscribed connection. The send channel is drained by the
// connection's write pump.
type Session struct {
	ID       string
	PlayerID uuid.UUID
	Send     chan []byte
}

// Envelope is the payload sent over the websocket.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Session),
		logger: logger,
	}
}

func matchRoom(matchID uuid.UUID) string { return "match:" + matchID.String() }
func playerRoom(playerID uuid.UUID) string { return "player:" + playerID.String() }

// Join adds a session to a room.
func (h *Hub) Join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Session)
	}
	h.rooms[room][s.ID] = s
}

// Leave removes a session from a room.
func (h *Hub) Leave(room string, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.rooms[room]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish sends an event to all sessions in a room.
func (h *Hub) Publish(room string, event string, data any) {
	h.PublishExcept(room, uuid.Nil, event, data)
}

// PublishExcept sends an event to every session in a room except those owned
// by one player. Used for peer notifications the acting player already holds
// the answer to.
func (h *Hub) PublishExcept(room string, except uuid.UUID, event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("ws marshal error", "error", err, "room", room, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.rooms[room] {
		if except != uuid.Nil && s.PlayerID == except {
			continue
		}
		select {
		case s.Send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "session_id", s.ID, "room", room)
		}
	}
}

// RoomEvent delivers a match lifecycle event to the match's subscribers.
// This is the fanout hook the match manager notifies through.
func (h *Hub) RoomEvent(roomID uuid.UUID, event string, payload any) {
	h.Publish(matchRoom(roomID), event, payload)
}

// PublishToPlayer sends an event to a player's own sessions.
func (h *Hub) PublishToPlayer(playerID uuid.UUID, event string, data any) {
	h.Publish(playerRoom(playerID), event, data)
}

// ConnectionCount returns the total number of active sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, sessions := range h.rooms {
		count += len(sessions)
	}
	return count
}

// RoomCount returns the number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes all sessions gracefully.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	closed := make(map[*Session]bool)
	for room, sessions := range h.rooms {
		for _, s := range sessions {
			if !closed[s] {
				close(s.Send)
				closed[s] = true
			}
		}
		delete(h.rooms, room)
	}
}
