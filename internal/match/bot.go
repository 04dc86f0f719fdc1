package match

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/kompite/arena/internal/ludo"
)

// Bot is the house player that fills a seat when matchmaking cannot. It
// declares ready immediately and plays a uniformly random legal move on its
// turn.
type Bot struct {
	AccountID uuid.UUID

	// WinProbability is a tuning knob reserved for weighted move selection.
	// The current bot ignores it and picks uniformly.
	WinProbability float64

	rng *rand.Rand
}

// NewBot creates a house bot with its own account id.
func NewBot(accountID uuid.UUID, seed int64) *Bot {
	return &Bot{AccountID: accountID, WinProbability: 0.5, rng: rand.New(rand.NewSource(seed))}
}

// ChooseMove picks one of the legal moves.
func (b *Bot) ChooseMove(moves []ludo.MoveOption) ludo.MoveOption {
	return moves[b.rng.Intn(len(moves))]
}
