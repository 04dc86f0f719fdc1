package match

import (
	"context"

	"github.com/google/uuid"

	"github.com/kompite/arena/internal/domain"
	"github.com/kompite/arena/internal/physics"
)

// ShotResult is the arbiter's answer to one submitted shot.
type ShotResult struct {
	Report     physics.Report `json:"report"`
	Scored     bool           `json:"scored"`
	ShotNumber int            `json:"shot_number"`
	Score      map[string]int `json:"score"`
	GameOver   bool           `json:"game_over,omitempty"`
	Winner     uuid.UUID      `json:"winner,omitempty"`
}

// SubmitShot reruns a client shot through the shadow simulator and scores the
// server outcome. The client claim only decides whether a fraud review opens;
// the server simulation alone decides the point. When both players have taken
// all their shots the room settles on the higher score, rerunning sudden
// death rounds on a tie.
func (m *Manager) SubmitShot(ctx context.Context, roomID, accountID uuid.UUID, shot physics.Shot, claim physics.ClientClaim) (*ShotResult, error) {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrNotFound("room", roomID.String())
	}
	if room.Status != StatusInProgress {
		m.mu.Unlock()
		return nil, domain.ErrConflict("match is not in progress")
	}
	if room.GameType == GameLudo {
		m.mu.Unlock()
		return nil, domain.ErrValidation("room is not a shot game")
	}
	if room.seat(accountID) == nil {
		m.mu.Unlock()
		return nil, domain.ErrValidation("not a participant of this room")
	}
	state := m.shots[roomID]
	if state.taken[accountID] >= m.shotQuota(room, state) {
		m.mu.Unlock()
		return nil, domain.ErrConflict("no shots remaining this round")
	}
	shotIndex := state.taken[accountID]
	state.taken[accountID]++
	m.mu.Unlock()

	var report physics.Report
	switch room.GameType {
	case GamePenalty:
		report = m.validator.ValidatePenalty(shot, claim, room.ID.String(), shotIndex)
	case GameBasketball:
		report = m.validator.ValidateBasketball(shot, claim, room.ID.String(), shotIndex)
	}

	if report.Verdict == physics.VerdictFraud {
		m.dispute(room, "shadow simulation fraud verdict")
		m.recordEvent(ctx, room.ID, domain.EventShadowMismatch, map[string]string{
			"account_id":     accountID.String(),
			"client_outcome": string(report.Client),
			"server_outcome": string(report.Server.Outcome),
		})
		return nil, domain.ErrValidation("shot rejected: physics validation failed")
	}

	scored := report.Server.Outcome != physics.OutcomeMiss

	m.mu.Lock()
	if scored {
		state.scores[accountID]++
	}
	result := &ShotResult{
		Report:     report,
		Scored:     scored,
		ShotNumber: shotIndex + 1,
		Score:      make(map[string]int, len(room.Order)),
	}
	for _, id := range room.Order {
		result.Score[id.String()] = state.scores[id]
	}
	done, winner := m.shotVerdict(room, state)
	m.mu.Unlock()

	m.notifier.RoomEvent(roomID, "shot_validated", result)
	if !done {
		return result, nil
	}
	result.GameOver = true
	result.Winner = winner
	m.mu.Lock()
	if err := room.transition(StatusValidation); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()
	return result, m.settle(ctx, room, winner)
}

// shotQuota returns how many shots a player may take: the regulation rounds,
// plus one extra round every time regulation ends level. Seats that have not
// fired yet count as zero, so nobody shoots ahead of an idle opponent.
// Callers hold m.mu.
func (m *Manager) shotQuota(room *Room, state *shotState) int {
	most := 0
	level := true
	for _, id := range room.Order {
		if n := state.taken[id]; n > most {
			most = n
		}
	}
	for _, id := range room.Order {
		if state.taken[id] != most {
			level = false
		}
	}
	if most < shotRounds {
		return shotRounds
	}
	if !level {
		return most // the trailing shooter catches up first
	}
	return most + 1 // sudden death: one more each
}

// shotVerdict reports whether the shootout is decided: every player has spent
// regulation, shot counts are level, and the top score is unique. Callers
// hold m.mu.
func (m *Manager) shotVerdict(room *Room, state *shotState) (bool, uuid.UUID) {
	taken := -1
	for _, id := range room.Order {
		n := state.taken[id]
		if n < shotRounds {
			return false, uuid.Nil
		}
		if taken == -1 {
			taken = n
		} else if n != taken {
			return false, uuid.Nil
		}
	}
	best, winner, tied := -1, uuid.Nil, false
	for _, id := range room.Order {
		switch {
		case state.scores[id] > best:
			best, winner, tied = state.scores[id], id, false
		case state.scores[id] == best:
			tied = true
		}
	}
	if tied {
		return false, uuid.Nil
	}
	return true, winner
}
