package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kompite/arena/internal/jitter"
	"github.com/kompite/arena/internal/match"
)

// Websocket timing. The heartbeat cadence matches what clients are told to
// send; the pong deadline covers three missed beats plus tolerance.
const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 3 * time.Second
	pongWait          = 10 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBuffer        = 64
)

// ClientFrame is an inbound message from the player's client.
type ClientFrame struct {
	Type      string    `json:"type"`
	MatchID   uuid.UUID `json:"match_id,omitempty"`
	SentAtMS  int64     `json:"sent_at_ms,omitempty"`
	GameState string    `json:"game_state,omitempty"`
}

// client binds one websocket connection to its hub session.
type client struct {
	session *Session
	conn    *websocket.Conn

	hub      *Hub
	detector *jitter.Detector
	manager  *match.Manager
	logger   *slog.Logger

	matchID uuid.UUID
}

// readPump consumes client frames until the connection drops. Runs as its
// own goroutine per connection.
func (c *client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws read error", "player_id", c.session.PlayerID, "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn("ws bad frame", "player_id", c.session.PlayerID, "error", err)
			continue
		}
		c.handle(frame)
	}
}

func (c *client) handle(frame ClientFrame) {
	switch frame.Type {
	case "heartbeat":
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		sent := time.UnixMilli(frame.SentAtMS)
		analysis := c.detector.ProcessHeartbeat(c.session.PlayerID, sent, frame.GameState)
		if analysis.Suspicious {
			c.logger.Warn("suspicious latency pattern",
				"player_id", c.session.PlayerID,
				"score", analysis.Score, "spikes", analysis.SpikeCount)
		}
		c.hub.PublishToPlayer(c.session.PlayerID, "connection_quality", map[string]any{
			"quality":  analysis.Quality,
			"rtt_ms":   analysis.RTTMillis,
			"trend":    analysis.Trend,
			"interval": heartbeatInterval.Seconds(),
		})

	case "subscribe":
		if frame.MatchID == uuid.Nil {
			return
		}
		c.matchID = frame.MatchID
		c.hub.Join(matchRoom(frame.MatchID), c.session)
		if err := c.manager.OnReconnect(frame.MatchID, c.session.PlayerID); err != nil {
			// First subscription of a fresh match is not a reconnect.
			c.logger.Debug("subscribe without prior disconnect", "match_id", frame.MatchID, "error", err)
		}
		// The subscriber already knows it joined; only its peers need telling.
		c.hub.PublishExcept(matchRoom(frame.MatchID), c.session.PlayerID, "peer_subscribed", map[string]string{
			"account_id": c.session.PlayerID.String(),
		})

	case "unsubscribe":
		if c.matchID != uuid.Nil {
			c.hub.Leave(matchRoom(c.matchID), c.session.ID)
			c.matchID = uuid.Nil
		}

	default:
		c.logger.Warn("ws unknown frame type", "type", frame.Type, "player_id", c.session.PlayerID)
	}
}

// writePump drains the session's send channel onto the socket and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.session.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown unwinds the session when the socket drops: leave all rooms and
// start the match's reconnect grace window.
func (c *client) teardown() {
	c.conn.Close()
	c.hub.Leave(playerRoom(c.session.PlayerID), c.session.ID)
	if c.matchID != uuid.Nil {
		c.hub.Leave(matchRoom(c.matchID), c.session.ID)
		if err := c.manager.OnDisconnect(c.matchID, c.session.PlayerID); err != nil {
			c.logger.Debug("disconnect for inactive match", "match_id", c.matchID, "error", err)
		}
	}
	c.logger.Info("ws session closed", "player_id", c.session.PlayerID, "session_id", c.session.ID)
}
