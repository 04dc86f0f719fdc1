package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestSession(playerID uuid.UUID) *Session {
	return &Session{ID: uuid.New().String(), PlayerID: playerID, Send: make(chan []byte, 4)}
}

func TestHub_PublishReachesRoomMembers(t *testing.T) {
	h := newTestHub()
	matchID := uuid.New()
	s1 := newTestSession(uuid.New())
	s2 := newTestSession(uuid.New())
	h.Join(matchRoom(matchID), s1)
	h.Join(matchRoom(matchID), s2)

	h.RoomEvent(matchID, "dice_rolled", map[string]int{"value": 6})

	for _, s := range []*Session{s1, s2} {
		var env Envelope
		require.NoError(t, json.Unmarshal(<-s.Send, &env))
		assert.Equal(t, "dice_rolled", env.Event)
	}
}

func TestHub_PublishSkipsOtherRooms(t *testing.T) {
	h := newTestHub()
	s := newTestSession(uuid.New())
	h.Join(matchRoom(uuid.New()), s)

	h.RoomEvent(uuid.New(), "game_started", nil)

	select {
	case <-s.Send:
		t.Fatal("session got an event from a room it never joined")
	default:
	}
}

func TestHub_PublishExceptSkipsTheActor(t *testing.T) {
	h := newTestHub()
	matchID := uuid.New()
	actor := uuid.New()
	s1 := newTestSession(actor)
	s2 := newTestSession(uuid.New())
	h.Join(matchRoom(matchID), s1)
	h.Join(matchRoom(matchID), s2)

	h.PublishExcept(matchRoom(matchID), actor, "peer_subscribed", nil)

	var env Envelope
	require.NoError(t, json.Unmarshal(<-s2.Send, &env))
	assert.Equal(t, "peer_subscribed", env.Event)
	select {
	case <-s1.Send:
		t.Fatal("the acting player must not get its own peer event")
	default:
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := newTestHub()
	matchID := uuid.New()
	s := newTestSession(uuid.New())
	h.Join(matchRoom(matchID), s)
	h.Leave(matchRoom(matchID), s.ID)

	h.RoomEvent(matchID, "game_started", nil)

	assert.Zero(t, len(s.Send))
	assert.Zero(t, h.RoomCount())
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := newTestHub()
	matchID := uuid.New()
	s := &Session{ID: "slow", PlayerID: uuid.New(), Send: make(chan []byte, 1)}
	h.Join(matchRoom(matchID), s)

	h.RoomEvent(matchID, "first", nil)
	h.RoomEvent(matchID, "second", nil) // must not block

	var env Envelope
	require.NoError(t, json.Unmarshal(<-s.Send, &env))
	assert.Equal(t, "first", env.Event)
	assert.Zero(t, len(s.Send))
}

func TestHub_ShutdownClosesEverySessionOnce(t *testing.T) {
	h := newTestHub()
	playerID := uuid.New()
	s := newTestSession(playerID)
	// The same session sits in its player room and a match room.
	h.Join(playerRoom(playerID), s)
	h.Join(matchRoom(uuid.New()), s)

	h.Shutdown(context.Background())

	_, open := <-s.Send
	assert.False(t, open, "send channel must be closed")
	assert.Zero(t, h.ConnectionCount())
}
