package match

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/ludo"
)

// GameType selects the engine that arbitrates a room.
type GameType string

const (
	GameLudo       GameType = "ludo"
	GamePenalty    GameType = "penalty"
	GameBasketball GameType = "basketball"
)

// Seat is one player's membership in a room.
type Seat struct {
	AccountID uuid.UUID `json:"account_id"`
	IsBot     bool      `json:"is_bot"`

	Ready bool `json:"ready"`

	// EscrowLocked means the ledger holds this seat's stake. EscrowConfirmed
	// means the client acknowledged the hold; the game starts only once every
	// seat carries both.
	EscrowLocked    bool `json:"escrow_locked"`
	EscrowConfirmed bool `json:"escrow_confirmed"`

	Connected bool `json:"connected"`

	JoinedAt       time.Time  `json:"joined_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	GraceUntil     *time.Time `json:"grace_until,omitempty"`
}

// Room is one match from matchmaking to settlement.
type Room struct {
	ID       uuid.UUID       `json:"id"`
	GameType GameType        `json:"game_type"`
	Bet      decimal.Decimal `json:"bet_amount"`
	Capacity int             `json:"capacity"`

	Status Status              `json:"status"`
	Seats  map[uuid.UUID]*Seat `json:"seats"`
	Order  []uuid.UUID         `json:"seat_order"`

	InitialStateHash string    `json:"initial_state_hash,omitempty"`
	WinnerID         uuid.UUID `json:"winner_id,omitempty"`
	SettlementID     string    `json:"settlement_id,omitempty"`
	CancelReason     string    `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	LockedAt  time.Time `json:"locked_at,omitempty"`

	game *ludo.Game
}

// snapshot copies the room for serialization outside the manager lock.
func (r *Room) snapshot() *Room {
	cp := *r
	cp.game = nil
	cp.Seats = make(map[uuid.UUID]*Seat, len(r.Seats))
	for id, s := range r.Seats {
		sc := *s
		cp.Seats[id] = &sc
	}
	cp.Order = append([]uuid.UUID{}, r.Order...)
	return &cp
}

// transition applies a checked FSM step.
func (r *Room) transition(to Status) error {
	if err := checkTransition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	return nil
}

// seat returns the seat for an account, or nil.
func (r *Room) seat(accountID uuid.UUID) *Seat {
	return r.Seats[accountID]
}

// allReady reports whether every seat declared readiness.
func (r *Room) allReady() bool {
	for _, s := range r.Seats {
		if !s.Ready {
			return false
		}
	}
	return len(r.Seats) == r.Capacity
}

// allConfirmed reports whether every seat acknowledged its escrow hold.
func (r *Room) allConfirmed() bool {
	for _, s := range r.Seats {
		if !s.EscrowConfirmed {
			return false
		}
	}
	return true
}

// participants returns the seat order as account ids.
func (r *Room) participants() []uuid.UUID {
	return append([]uuid.UUID{}, r.Order...)
}

// humanSeats counts the non-bot participants.
func (r *Room) humanSeats() int {
	n := 0
	for _, s := range r.Seats {
		if !s.IsBot {
			n++
		}
	}
	return n
}
