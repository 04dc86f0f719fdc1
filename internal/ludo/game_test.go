package ludo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompite/arena/internal/dice"
)

func newStartedGame(t *testing.T, players int) (*Game, []uuid.UUID) {
	t.Helper()
	ids := make([]uuid.UUID, players)
	for i := range ids {
		ids[i] = uuid.New()
	}
	g, err := NewGame(uuid.New(), ids, dice.NewRollerFromSeed("test-seed"))
	require.NoError(t, err)
	_, err = g.Start()
	require.NoError(t, err)
	return g, ids
}

// forceRoll feeds a synthetic roll to the current player, bypassing the
// fairness channel so tests can script exact values.
func forceRoll(g *Game, value int) *RollOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applyRoll(dice.Roll{Value: value, Nonce: uint64(g.moveCounter + 1)})
}

func pieceOf(g *Game, accountID uuid.UUID, pieceID int) *Piece {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.players[accountID].Pieces[pieceID]
}

func TestNewGame_RequiresTwoToFourPlayers(t *testing.T) {
	_, err := NewGame(uuid.New(), []uuid.UUID{uuid.New()}, dice.NewRollerFromSeed("s"))
	assert.Error(t, err)

	five := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	_, err = NewGame(uuid.New(), five, dice.NewRollerFromSeed("s"))
	assert.Error(t, err)
}

func TestGame_StartSeatsFirstPlayerRed(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	g, err := NewGame(uuid.New(), ids, dice.NewRollerFromSeed("s"))
	require.NoError(t, err)

	info, err := g.Start()
	require.NoError(t, err)
	assert.Equal(t, ids[0], info.FirstPlayer)
	assert.Equal(t, ColorRed, info.FirstColor)
	assert.NotEmpty(t, info.ServerSeedHash)
	assert.Equal(t, StateRolling, g.State())

	_, err = g.Start()
	assert.Error(t, err, "double start is rejected")
}

func TestGame_RollDiceRejectsOutOfTurn(t *testing.T) {
	g, ids := newStartedGame(t, 2)
	_, err := g.RollDice(ids[1], "")
	assert.Error(t, err)
}

func TestGame_NonSixWithAllPiecesHomePassesTurn(t *testing.T) {
	g, ids := newStartedGame(t, 2)

	out := forceRoll(g, 3)
	assert.True(t, out.NoMoves)
	assert.Equal(t, ids[1], out.NextPlayer)
	assert.Equal(t, StateRolling, g.State())
}

func TestGame_SixExitsPieceAndRollsAgain(t *testing.T) {
	g, ids := newStartedGame(t, 2)

	out := forceRoll(g, 6)
	require.Len(t, out.AvailableMoves, 4, "any home piece can exit")
	assert.Equal(t, ActionExit, out.AvailableMoves[0].Action)
	assert.True(t, out.CanRollAgain)

	moved, err := g.MovePiece(ids[0], 0)
	require.NoError(t, err)
	assert.True(t, moved.RollAgain)

	p := pieceOf(g, ids[0], 0)
	assert.Equal(t, PieceActive, p.State)
	assert.Equal(t, 0, p.Position, "red enters at cell 0")
	assert.Equal(t, ids[0], g.CurrentTurn())
}

func TestGame_ThreeConsecutiveSixesForfeitTurn(t *testing.T) {
	g, ids := newStartedGame(t, 2)

	out := forceRoll(g, 6)
	require.Empty(t, out.Penalty)
	_, err := g.MovePiece(ids[0], 0)
	require.NoError(t, err)

	out = forceRoll(g, 6)
	require.Empty(t, out.Penalty)
	_, err = g.MovePiece(ids[0], 1)
	require.NoError(t, err)

	out = forceRoll(g, 6)
	assert.Equal(t, "three_sixes", out.Penalty)
	assert.Equal(t, ids[1], out.NextPlayer)
	assert.Equal(t, ids[1], g.CurrentTurn())
}

func TestGame_CaptureSendsPieceHomeAndGrantsExtraTurn(t *testing.T) {
	g, ids := newStartedGame(t, 2)
	attacker := pieceOf(g, ids[0], 0)
	attacker.State = PieceActive
	attacker.Position = 5
	defender := pieceOf(g, ids[1], 2)
	defender.State = PieceActive
	defender.Position = 9

	forceRoll(g, 4)
	out, err := g.MovePiece(ids[0], 0)
	require.NoError(t, err)

	require.NotNil(t, out.Move.Captured)
	assert.Equal(t, ColorBlue, out.Move.Captured.Player)
	assert.Equal(t, 2, out.Move.Captured.PieceID)
	assert.Equal(t, PieceHome, defender.State)
	assert.Equal(t, -1, defender.Position)
	assert.True(t, out.RollAgain, "a capture grants an extra roll")
}

func TestGame_SafeCellBlocksCapture(t *testing.T) {
	g, ids := newStartedGame(t, 2)
	attacker := pieceOf(g, ids[0], 0)
	attacker.State = PieceActive
	attacker.Position = 4
	defender := pieceOf(g, ids[1], 0)
	defender.State = PieceActive
	defender.Position = 8

	forceRoll(g, 4)
	out, err := g.MovePiece(ids[0], 0)
	require.NoError(t, err)

	assert.Nil(t, out.Move.Captured)
	assert.Equal(t, PieceActive, defender.State, "pieces on safe cells survive")
	assert.Equal(t, ids[1], out.NextPlayer)
}

func TestGame_CrossingHomeEntryEntersStretch(t *testing.T) {
	g, ids := newStartedGame(t, 2)
	p := pieceOf(g, ids[0], 0)
	p.State = PieceActive
	p.Position = 50 // red home entry is cell 51

	forceRoll(g, 3)
	out, err := g.MovePiece(ids[0], 0)
	require.NoError(t, err)

	assert.True(t, out.Move.EnteredStretch)
	assert.Equal(t, PieceSafeZone, p.State)
	assert.Equal(t, 1, p.StretchPos)
}

func TestGame_StretchOvershootIsIllegal(t *testing.T) {
	g, ids := newStartedGame(t, 2)
	p := pieceOf(g, ids[0], 0)
	p.State = PieceSafeZone
	p.Position = -1
	p.StretchPos = 3

	// 3 + 4 = 7 overshoots the home slot at 6; no other piece can move a 4.
	out := forceRoll(g, 4)
	assert.True(t, out.NoMoves)
	assert.Equal(t, ids[1], out.NextPlayer)
	assert.Equal(t, 3, p.StretchPos, "the piece did not move")
}

func TestGame_ExactFinishWinsAndRevealsSeeds(t *testing.T) {
	g, ids := newStartedGame(t, 2)
	g.mu.Lock()
	red := g.players[ids[0]]
	red.PiecesFinished = 3
	for i := 0; i < 3; i++ {
		red.Pieces[i].State = PieceFinished
		red.Pieces[i].Position = -2
	}
	last := red.Pieces[3]
	last.State = PieceSafeZone
	last.Position = -1
	last.StretchPos = 2
	g.mu.Unlock()

	forceRoll(g, 4) // 2 + 4 = 6, the home slot
	out, err := g.MovePiece(ids[0], 3)
	require.NoError(t, err)

	assert.True(t, out.GameOver)
	assert.Equal(t, ids[0], out.Winner)
	assert.Equal(t, []uuid.UUID{ids[0], ids[1]}, out.Rankings)
	require.NotNil(t, out.Verification)
	assert.NotEmpty(t, out.Verification.ServerSeed)
	assert.Equal(t, StateCompleted, g.State())

	winner, ok := g.Winner()
	assert.True(t, ok)
	assert.Equal(t, ids[0], winner)
}

func TestGame_MoveLogReplaysAgainstVerification(t *testing.T) {
	g, _ := newStartedGame(t, 2)

	// Play a few real rolls through the fairness channel.
	for i := 0; i < 10 && g.State() != StateCompleted; i++ {
		current := g.CurrentTurn()
		out, err := g.RollDice(current, "")
		require.NoError(t, err)
		if out.Penalty != "" || out.NoMoves {
			continue
		}
		_, err = g.MovePiece(current, out.AvailableMoves[0].PieceID)
		require.NoError(t, err)
	}

	moves := g.Moves()
	if len(moves) == 0 {
		t.Skip("seed produced no movable rolls in ten turns")
	}
	g.mu.Lock()
	bundle := g.roller.VerificationData()
	g.mu.Unlock()

	rolls := make([]dice.Roll, len(moves))
	for i, m := range moves {
		rolls[i] = m.Roll
	}
	require.NoError(t, dice.Verify(bundle.ServerSeed, bundle.ServerSeedHash, rolls))
}

func TestGame_AbandonDeclaresLastConnectedWinner(t *testing.T) {
	g, ids := newStartedGame(t, 3)
	g.HandleDisconnect(ids[0])
	g.HandleDisconnect(ids[2])

	winner, ok := g.Abandon()
	assert.True(t, ok)
	assert.Equal(t, ids[1], winner)
	assert.Equal(t, StateAbandoned, g.State())
}
