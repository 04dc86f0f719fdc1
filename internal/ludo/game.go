// Package ludo is the authoritative Ludo engine. Clients send intents only;
// every roll comes from the provably fair dice session and every move is
// validated and executed server side.
package ludo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kompite/arena/internal/dice"
	"github.com/kompite/arena/internal/domain"
)

// Turn and game limits.
const (
	TurnTimeout = 30 * time.Second
	GameTimeout = 30 * time.Minute
)

// State is the game lifecycle.
type State string

const (
	StateWaiting   State = "waiting"
	StateRolling   State = "rolling"
	StateMoving    State = "moving"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Player is one seat at the table.
type Player struct {
	AccountID uuid.UUID `json:"account_id"`
	Color     Color     `json:"color"`
	Pieces    []*Piece  `json:"pieces"`

	PiecesFinished int  `json:"pieces_finished"`
	Captures       int  `json:"captures_made"`
	SixesRolled    int  `json:"sixes_rolled"`
	Connected      bool `json:"is_connected"`
}

func (p *Player) allFinished() bool {
	return p.PiecesFinished >= PiecesPerPlayer
}

// Capture identifies a piece sent back to its base.
type Capture struct {
	Player  Color `json:"player"`
	PieceID int   `json:"piece"`
}

// Move is one executed move, kept in the game's append-only log.
type Move struct {
	ID             int       `json:"move_id"`
	Player         Color     `json:"player"`
	PieceID        int       `json:"piece_id"`
	Roll           dice.Roll `json:"roll"`
	From           int       `json:"from"`
	To             int       `json:"to"`
	Captured       *Capture  `json:"capture,omitempty"`
	EnteredStretch bool      `json:"entered_stretch,omitempty"`
	Finished       bool      `json:"finished,omitempty"`
	At             time.Time `json:"timestamp"`
}

// Game is one Ludo session for 2 to 4 players.
type Game struct {
	mu sync.Mutex

	matchID uuid.UUID
	state   State

	players map[uuid.UUID]*Player
	order   []uuid.UUID

	roller *dice.Roller

	currentIdx       int
	currentRoll      *dice.Roll
	consecutiveSixes int
	canRollAgain     bool

	moves       []*Move
	moveCounter int

	startedAt     time.Time
	turnStartedAt time.Time

	winner   uuid.UUID
	rankings []uuid.UUID

	now func() time.Time
}

// NewGame seats the players in join order; the first player is red and rolls
// first.
func NewGame(matchID uuid.UUID, players []uuid.UUID, roller *dice.Roller) (*Game, error) {
	if len(players) < 2 || len(players) > 4 {
		return nil, domain.ErrValidation(fmt.Sprintf("ludo needs 2 to 4 players, got %d", len(players)))
	}
	g := &Game{
		matchID: matchID,
		state:   StateWaiting,
		players: make(map[uuid.UUID]*Player, len(players)),
		roller:  roller,
		now:     time.Now,
	}
	for i, accountID := range players {
		if _, dup := g.players[accountID]; dup {
			return nil, domain.ErrValidation("duplicate player")
		}
		color := turnColors[i]
		pieces := make([]*Piece, PiecesPerPlayer)
		for j := range pieces {
			pieces[j] = &Piece{ID: j, Owner: color, State: PieceHome, Position: -1, StretchPos: -1}
		}
		g.players[accountID] = &Player{AccountID: accountID, Color: color, Pieces: pieces, Connected: true}
		g.order = append(g.order, accountID)
	}
	return g, nil
}

// WithClock overrides the game clock. Test helper.
func (g *Game) WithClock(now func() time.Time) *Game {
	g.now = now
	return g
}

func (g *Game) currentPlayer() *Player {
	return g.players[g.order[g.currentIdx]]
}

// CurrentTurn returns the account whose turn it is.
func (g *Game) CurrentTurn() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order[g.currentIdx]
}

// State returns the lifecycle state.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// StartInfo is the opening announcement for a session.
type StartInfo struct {
	FirstPlayer    uuid.UUID `json:"first_player"`
	FirstColor     Color     `json:"first_color"`
	ServerSeedHash string    `json:"server_seed_hash"`
}

// Start moves the game from waiting to the first player's roll.
func (g *Game) Start() (*StartInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateWaiting {
		return nil, domain.ErrInvalidTransition(string(g.state), string(StateRolling))
	}
	g.state = StateRolling
	g.startedAt = g.now()
	g.turnStartedAt = g.now()
	return &StartInfo{
		FirstPlayer:    g.order[g.currentIdx],
		FirstColor:     g.currentPlayer().Color,
		ServerSeedHash: g.roller.Commitment(),
	}, nil
}

// RollOutcome is the result of one dice roll.
type RollOutcome struct {
	Roll           dice.Roll    `json:"roll"`
	Penalty        string       `json:"penalty,omitempty"`
	NoMoves        bool         `json:"no_moves,omitempty"`
	AvailableMoves []MoveOption `json:"available_moves,omitempty"`
	CanRollAgain   bool         `json:"can_roll_again,omitempty"`
	NextPlayer     uuid.UUID    `json:"next_player,omitempty"`
}

// RollDice rolls for the current player. An optional client seed is bound to
// the player's fairness channel before the roll.
func (g *Game) RollDice(accountID uuid.UUID, clientSeed string) (*RollOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateRolling {
		return nil, domain.ErrInvalidTransition(string(g.state), string(StateMoving))
	}
	if accountID != g.order[g.currentIdx] {
		return nil, domain.ErrValidation("not your turn")
	}
	if clientSeed != "" {
		if err := g.roller.SetClientSeed(accountID.String(), clientSeed); err != nil {
			return nil, err
		}
	}
	roll := g.roller.Roll(accountID.String())
	return g.applyRoll(roll), nil
}

// applyRoll folds one roll into the turn state.
func (g *Game) applyRoll(roll dice.Roll) *RollOutcome {
	g.currentRoll = &roll
	player := g.currentPlayer()

	if roll.Value == ExitRoll {
		player.SixesRolled++
		g.consecutiveSixes++
		if g.consecutiveSixes >= MaxConsecutiveSixes {
			g.nextTurn()
			return &RollOutcome{Roll: roll, Penalty: "three_sixes", NextPlayer: g.order[g.currentIdx]}
		}
		g.canRollAgain = true
	} else {
		g.consecutiveSixes = 0
		g.canRollAgain = false
	}

	moves := g.availableMoves(roll.Value)
	if len(moves) == 0 {
		g.nextTurn()
		return &RollOutcome{Roll: roll, NoMoves: true, NextPlayer: g.order[g.currentIdx]}
	}
	g.state = StateMoving
	return &RollOutcome{Roll: roll, AvailableMoves: moves, CanRollAgain: g.canRollAgain}
}

// MoveOutcome is the result of executing one move.
type MoveOutcome struct {
	Move       *Move     `json:"move"`
	RollAgain  bool      `json:"roll_again,omitempty"`
	NextPlayer uuid.UUID `json:"next_player,omitempty"`

	GameOver     bool                     `json:"game_over,omitempty"`
	Winner       uuid.UUID                `json:"winner,omitempty"`
	Rankings     []uuid.UUID              `json:"rankings,omitempty"`
	Verification *dice.VerificationBundle `json:"verification,omitempty"`
}

// MovePiece executes the current player's chosen move for the pending roll.
func (g *Game) MovePiece(accountID uuid.UUID, pieceID int) (*MoveOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateMoving {
		return nil, domain.ErrInvalidTransition(string(g.state), string(StateRolling))
	}
	if accountID != g.order[g.currentIdx] {
		return nil, domain.ErrValidation("not your turn")
	}
	if g.currentRoll == nil {
		return nil, domain.ErrConflict("no pending roll")
	}
	player := g.currentPlayer()
	if pieceID < 0 || pieceID >= len(player.Pieces) {
		return nil, domain.ErrValidation("invalid piece id")
	}
	piece := player.Pieces[pieceID]
	option := g.pieceMove(piece, g.currentRoll.Value)
	if option == nil {
		return nil, domain.ErrValidation("piece cannot move with this roll")
	}

	captured, enteredStretch, finished := g.execute(piece, option)

	g.moveCounter++
	move := &Move{
		ID:             g.moveCounter,
		Player:         player.Color,
		PieceID:        pieceID,
		Roll:           *g.currentRoll,
		From:           option.From,
		To:             option.To,
		Captured:       captured,
		EnteredStretch: enteredStretch,
		Finished:       finished,
		At:             g.now(),
	}
	g.moves = append(g.moves, move)

	if player.allFinished() {
		return g.finishGame(player, move), nil
	}

	extraTurn := captured != nil || finished
	if g.canRollAgain || extraTurn {
		g.state = StateRolling
		g.currentRoll = nil
		return &MoveOutcome{Move: move, RollAgain: true}, nil
	}
	g.nextTurn()
	return &MoveOutcome{Move: move, NextPlayer: g.order[g.currentIdx]}, nil
}

// availableMoves lists every legal move for the current player.
func (g *Game) availableMoves(diceValue int) []MoveOption {
	var moves []MoveOption
	for _, piece := range g.currentPlayer().Pieces {
		if option := g.pieceMove(piece, diceValue); option != nil {
			moves = append(moves, *option)
		}
	}
	return moves
}

// pieceMove resolves what a piece would do with the roll, or nil when the
// piece cannot move.
func (g *Game) pieceMove(piece *Piece, diceValue int) *MoveOption {
	switch piece.State {
	case PieceHome:
		if diceValue != ExitRoll {
			return nil
		}
		return &MoveOption{PieceID: piece.ID, From: -1, To: startPosition(piece.Owner), Action: ActionExit}

	case PieceFinished:
		return nil

	case PieceSafeZone:
		target := piece.StretchPos + diceValue
		if target == HomeStretch+1 {
			return &MoveOption{PieceID: piece.ID, From: piece.StretchPos, To: -2, Action: ActionFinish}
		}
		if target > HomeStretch+1 {
			return nil // overshoot, the exact count is required
		}
		return &MoveOption{PieceID: piece.ID, From: piece.StretchPos, To: target, Action: ActionStretchMove}
	}

	// Active on the ring: check whether the move crosses the home entry.
	entry := homeEntry(piece.Owner)
	stepsToEntry := (entry - piece.Position + BoardSize) % BoardSize
	if stepsToEntry < diceValue {
		remaining := diceValue - stepsToEntry - 1
		if remaining > HomeStretch {
			return nil // overshoot past home
		}
		if remaining == HomeStretch {
			return &MoveOption{PieceID: piece.ID, From: piece.Position, To: -2, Action: ActionFinish}
		}
		return &MoveOption{PieceID: piece.ID, From: piece.Position, To: remaining, Action: ActionEnterSafe}
	}
	to := (piece.Position + diceValue) % BoardSize
	return &MoveOption{PieceID: piece.ID, From: piece.Position, To: to, Action: ActionMove}
}

// execute applies a resolved move to the board.
func (g *Game) execute(piece *Piece, option *MoveOption) (captured *Capture, enteredStretch, finished bool) {
	player := g.currentPlayer()
	switch option.Action {
	case ActionExit:
		piece.State = PieceActive
		piece.Position = option.To
		captured = g.capture(option.To, player)
	case ActionMove:
		piece.Position = option.To
		captured = g.capture(option.To, player)
	case ActionEnterSafe:
		piece.State = PieceSafeZone
		piece.Position = -1
		piece.StretchPos = option.To
		enteredStretch = true
	case ActionStretchMove:
		piece.StretchPos = option.To
	case ActionFinish:
		piece.State = PieceFinished
		piece.Position = -2
		piece.StretchPos = -1
		player.PiecesFinished++
		finished = true
	}
	return captured, enteredStretch, finished
}

// capture sends an opposing piece on the cell back to its base. Safe cells
// protect their occupants.
func (g *Game) capture(position int, attacker *Player) *Capture {
	if safePositions[position] {
		return nil
	}
	for _, defender := range g.players {
		if defender.Color == attacker.Color {
			continue
		}
		for _, piece := range defender.Pieces {
			if piece.State == PieceActive && piece.Position == position {
				piece.State = PieceHome
				piece.Position = -1
				attacker.Captures++
				return &Capture{Player: defender.Color, PieceID: piece.ID}
			}
		}
	}
	return nil
}

func (g *Game) nextTurn() {
	g.currentIdx = (g.currentIdx + 1) % len(g.order)
	g.currentRoll = nil
	g.consecutiveSixes = 0
	g.canRollAgain = false
	g.state = StateRolling
	g.turnStartedAt = g.now()
}

// finishGame closes the session, ranks the players and reveals the seeds.
func (g *Game) finishGame(winner *Player, move *Move) *MoveOutcome {
	g.state = StateCompleted
	g.winner = winner.AccountID
	g.rankings = []uuid.UUID{winner.AccountID}
	for _, accountID := range g.order {
		if accountID != winner.AccountID {
			g.rankings = append(g.rankings, accountID)
		}
	}
	bundle := g.roller.VerificationData()
	return &MoveOutcome{
		Move:         move,
		GameOver:     true,
		Winner:       winner.AccountID,
		Rankings:     append([]uuid.UUID{}, g.rankings...),
		Verification: &bundle,
	}
}

// Abandon ends the game without a natural winner. The remaining connected
// player, if exactly one, is declared winner.
func (g *Game) Abandon() (uuid.UUID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateCompleted || g.state == StateAbandoned {
		return g.winner, g.winner != uuid.Nil
	}
	g.state = StateAbandoned
	var connected []uuid.UUID
	for _, accountID := range g.order {
		if g.players[accountID].Connected {
			connected = append(connected, accountID)
		}
	}
	if len(connected) == 1 {
		g.winner = connected[0]
		return g.winner, true
	}
	return uuid.Nil, false
}

// HandleDisconnect marks a player offline.
func (g *Game) HandleDisconnect(accountID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[accountID]; ok {
		p.Connected = false
	}
}

// HandleReconnect marks a player online again.
func (g *Game) HandleReconnect(accountID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[accountID]; ok {
		p.Connected = true
	}
}

// Winner returns the winning account once the game is decided.
func (g *Game) Winner() (uuid.UUID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner, g.winner != uuid.Nil
}

// Moves returns a copy of the move log.
func (g *Game) Moves() []*Move {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Move, len(g.moves))
	copy(out, g.moves)
	return out
}

// Snapshot is the full serializable game state.
type Snapshot struct {
	MatchID        uuid.UUID          `json:"match_id"`
	State          State              `json:"state"`
	Players        map[string]*Player `json:"players"`
	Order          []uuid.UUID        `json:"player_order"`
	CurrentPlayer  uuid.UUID          `json:"current_player"`
	CurrentRoll    *dice.Roll         `json:"current_roll,omitempty"`
	CanRollAgain   bool               `json:"can_roll_again"`
	MovesCount     int                `json:"moves_count"`
	ServerSeedHash string             `json:"server_seed_hash"`
}

// Snapshot returns the current state for broadcast or persistence.
func (g *Game) Snapshot() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	players := make(map[string]*Player, len(g.players))
	for accountID, p := range g.players {
		cp := *p
		pieces := make([]*Piece, len(p.Pieces))
		for i, piece := range p.Pieces {
			c := *piece
			pieces[i] = &c
		}
		cp.Pieces = pieces
		players[accountID.String()] = &cp
	}
	return &Snapshot{
		MatchID:        g.matchID,
		State:          g.state,
		Players:        players,
		Order:          append([]uuid.UUID{}, g.order...),
		CurrentPlayer:  g.order[g.currentIdx],
		CurrentRoll:    g.currentRoll,
		CanRollAgain:   g.canRollAgain,
		MovesCount:     len(g.moves),
		ServerSeedHash: g.roller.Commitment(),
	}
}

// StateHash is the SHA256 of the canonical snapshot JSON, recorded at match
// start as the initial state commitment.
func (g *Game) StateHash() string {
	snap := g.Snapshot()
	raw, _ := json.Marshal(snap)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
