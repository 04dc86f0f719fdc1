package match

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kompite/arena/internal/domain"
	"github.com/kompite/arena/internal/jitter"
)

// Penalties applied when a player walks out of a live match.
const (
	forfeitTrustPenalty  = -10
	forfeitQuarantine    = 10 * time.Minute
	disconnectKindUpdate = "disconnect_status"
)

// roomRetention keeps resolved rooms queryable for a while before the sweep
// drops them.
const roomRetention = time.Hour

// OnDisconnect marks a player's seat offline and starts the reconnect grace
// window. The match itself keeps running until the window expires.
func (m *Manager) OnDisconnect(roomID, accountID uuid.UUID) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound("room", roomID.String())
	}
	seat := room.seat(accountID)
	if seat == nil {
		m.mu.Unlock()
		return domain.ErrValidation("not a participant of this room")
	}
	now := m.now()
	seat.Connected = false
	seat.DisconnectedAt = &now
	m.statsFor(accountID).disconnects++
	game := room.game
	m.mu.Unlock()

	if game != nil {
		game.HandleDisconnect(accountID)
	}

	// One check at teardown covers every heartbeat interval the dead
	// connection missed, so the disconnect is classified right here.
	var kind jitter.DisconnectKind
	if analysis := m.detector.CheckMissedHeartbeat(accountID); analysis != nil {
		kind = analysis.Disconnect
	}
	grace := ReconnectGrace
	if kind == jitter.DisconnectMassOutage {
		// A platform-wide outage is nobody's forfeit; give everyone longer
		// to come back.
		grace = 2 * ReconnectGrace
	}
	deadline := now.Add(grace)
	m.mu.Lock()
	seat.GraceUntil = &deadline
	m.mu.Unlock()

	if kind == jitter.DisconnectLagSwitch {
		m.recordEvent(context.Background(), roomID, domain.EventLagSwitchFlagged, map[string]string{
			"account_id": accountID.String(),
		})
	}

	m.logger.Info("player disconnected", "room_id", roomID, "account_id", accountID, "kind", string(kind))
	m.notifier.RoomEvent(roomID, disconnectKindUpdate, map[string]string{
		"account_id": accountID.String(),
		"status":     "disconnected",
		"kind":       string(kind),
		"grace":      grace.String(),
	})
	return nil
}

// OnReconnect restores a player's seat inside the grace window.
func (m *Manager) OnReconnect(roomID, accountID uuid.UUID) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound("room", roomID.String())
	}
	seat := room.seat(accountID)
	if seat == nil {
		m.mu.Unlock()
		return domain.ErrValidation("not a participant of this room")
	}
	if room.Status.Terminal() {
		m.mu.Unlock()
		return domain.ErrConflict("match already resolved")
	}
	seat.Connected = true
	seat.DisconnectedAt = nil
	seat.GraceUntil = nil
	game := room.game
	m.mu.Unlock()

	if game != nil {
		game.HandleReconnect(accountID)
	}
	m.logger.Info("player reconnected", "room_id", roomID, "account_id", accountID)
	m.notifier.RoomEvent(roomID, disconnectKindUpdate, map[string]string{
		"account_id": accountID.String(),
		"status":     "reconnected",
	})
	return nil
}

// SweepTimeouts enforces the clock-driven rules: matchmaking rooms that never
// readied are cancelled, locked rooms whose confirmations lapsed refund and
// cancel, live matches whose disconnected player overran the grace window are
// forfeited against them, stuck settlements are retried, and resolved rooms
// past retention are dropped. Run periodically.
func (m *Manager) SweepTimeouts(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var stale, unconfirmed, retries []*Room
	type forfeit struct {
		room     *Room
		deserter uuid.UUID
	}
	var forfeits []forfeit
	for id, room := range m.rooms {
		if room.Status.Terminal() && now.Sub(room.CreatedAt) > roomRetention {
			delete(m.rooms, id)
			delete(m.shots, id)
			continue
		}
		switch room.Status {
		case StatusMatchmaking:
			if now.Sub(room.CreatedAt) > ReadyTimeout {
				stale = append(stale, room)
			}
		case StatusLocked:
			if now.Sub(room.LockedAt) > EscrowConfirmTimeout {
				unconfirmed = append(unconfirmed, room)
			}
		case StatusInProgress:
			for _, seat := range room.Seats {
				if seat.Connected || seat.GraceUntil == nil {
					continue
				}
				if now.After(*seat.GraceUntil) {
					forfeits = append(forfeits, forfeit{room: room, deserter: seat.AccountID})
					break
				}
			}
		case StatusSettlement:
			if room.WinnerID != uuid.Nil {
				retries = append(retries, room)
			}
		}
	}
	m.mu.Unlock()

	for _, room := range stale {
		m.mu.Lock()
		var held []uuid.UUID
		for _, seat := range room.Seats {
			if seat.EscrowLocked {
				held = append(held, seat.AccountID)
			}
		}
		m.mu.Unlock()
		m.refund(ctx, room, held)
		m.cancel(ctx, room, "ready timeout")
	}

	for _, room := range unconfirmed {
		m.abortLocked(ctx, room, "escrow confirmation timeout")
	}

	for _, f := range forfeits {
		m.forfeit(ctx, f.room, f.deserter)
	}

	for _, room := range retries {
		if err := m.settle(ctx, room, room.WinnerID); err != nil {
			m.logger.Error("settlement retry failed", "room_id", room.ID, "error", err)
		}
	}
}

// forfeit resolves a live match against a player who abandoned it. The last
// connected opponent takes the pot; the deserter loses trust and sits out a
// quarantine.
func (m *Manager) forfeit(ctx context.Context, room *Room, deserter uuid.UUID) {
	var winner uuid.UUID
	if room.game != nil {
		w, ok := room.game.Abandon()
		if !ok {
			m.voidMatch(ctx, room, "all players disconnected")
			return
		}
		winner = w
	} else {
		m.mu.Lock()
		for _, seat := range room.Seats {
			if seat.Connected {
				winner = seat.AccountID
			}
		}
		m.mu.Unlock()
		if winner == uuid.Nil {
			m.voidMatch(ctx, room, "all players disconnected")
			return
		}
	}

	if _, err := m.engine.AdjustTrust(ctx, deserter, forfeitTrustPenalty, "match forfeit"); err != nil {
		m.logger.Error("trust penalty failed", "account_id", deserter, "error", err)
	}
	m.shield.Quarantine(deserter, forfeitQuarantine)
	m.logger.Info("match forfeited", "room_id", room.ID, "deserter", deserter, "winner", winner)

	m.mu.Lock()
	err := room.transition(StatusValidation)
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("forfeit transition failed", "room_id", room.ID, "error", err)
		return
	}
	if err := m.settle(ctx, room, winner); err != nil {
		m.logger.Error("forfeit settlement failed", "room_id", room.ID, "error", err)
	}
}

// voidMatch unwinds a live match with no winner: the room goes through the
// dispute state to cancellation and every stake returns to its owner.
func (m *Manager) voidMatch(ctx context.Context, room *Room, reason string) {
	m.mu.Lock()
	held := room.participants()
	if err := room.transition(StatusDisputed); err != nil {
		m.mu.Unlock()
		m.logger.Error("void transition failed", "room_id", room.ID, "error", err)
		return
	}
	m.mu.Unlock()
	m.refund(ctx, room, held)
	m.cancel(ctx, room, reason)
}
