// Package match runs the arbitration lifecycle: matchmaking queues, the
// room state machine, escrow lock-in, game orchestration, disconnect
// handling and settlement hand-off to the ledger.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/dice"
	"github.com/kompite/arena/internal/domain"
	"github.com/kompite/arena/internal/jitter"
	"github.com/kompite/arena/internal/ledger"
	"github.com/kompite/arena/internal/ludo"
	"github.com/kompite/arena/internal/physics"
	"github.com/kompite/arena/internal/shield"
)

// Lifecycle timeouts.
const (
	// ReadyTimeout bounds how long a formed room may wait for every player
	// to declare ready.
	ReadyTimeout = 10 * time.Second

	// EscrowConfirmTimeout bounds how long a locked room may wait for every
	// human to acknowledge their stake. On expiry the stakes come back and
	// the room cancels.
	EscrowConfirmTimeout = 10 * time.Second

	// ReconnectGrace is how long a disconnected player's seat survives
	// before the match is forfeited against them.
	ReconnectGrace = 45 * time.Second

	roomLockTTL = 30 * time.Second

	defaultCapacity = 2
	shotRounds      = 5

	botOpeningBalance = 100000
)

// Notifier receives room lifecycle events for fanout to connected clients.
type Notifier interface {
	RoomEvent(roomID uuid.UUID, event string, payload any)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) RoomEvent(uuid.UUID, string, any) {}

// playerStats is the per-account history the shield snapshot is built from.
type playerStats struct {
	gamesPlayed    int
	wins           int
	disconnects    int
	failedPayments []time.Time
}

func (s *playerStats) winRate() decimal.Decimal {
	if s.gamesPlayed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.wins)).Div(decimal.NewFromInt(int64(s.gamesPlayed)))
}

func (s *playerStats) recentFailedPayments(now time.Time) int {
	n := 0
	for _, ts := range s.failedPayments {
		if now.Sub(ts) <= time.Hour {
			n++
		}
	}
	return n
}

type queueKey struct {
	gameType GameType
	bet      string
}

type ticket struct {
	accountID uuid.UUID
	joinedAt  time.Time
}

// shotState tracks a shot-based room (penalty, basketball).
type shotState struct {
	scores map[uuid.UUID]int
	taken  map[uuid.UUID]int
}

// Manager owns all live rooms and queues.
type Manager struct {
	engine    *ledger.Engine
	shield    *shield.Shield
	detector  *jitter.Detector
	validator *physics.Validator
	locks     *LockMap
	notifier  Notifier
	logger    *slog.Logger

	mu     sync.Mutex
	queues map[queueKey][]*ticket
	rooms  map[uuid.UUID]*Room
	shots  map[uuid.UUID]*shotState
	stats  map[uuid.UUID]*playerStats

	botAccount uuid.UUID
	bot        *Bot
	botDelay   time.Duration

	rng *rand.Rand
	now func() time.Time
}

// NewManager wires the arbitration engine over its collaborators.
func NewManager(engine *ledger.Engine, sh *shield.Shield, det *jitter.Detector, val *physics.Validator, notifier Notifier, logger *slog.Logger) *Manager {
	botID := uuid.New()
	return &Manager{
		engine:     engine,
		shield:     sh,
		detector:   det,
		validator:  val,
		locks:      NewLockMap(),
		notifier:   notifier,
		logger:     logger,
		queues:     make(map[queueKey][]*ticket),
		rooms:      make(map[uuid.UUID]*Room),
		shots:      make(map[uuid.UUID]*shotState),
		stats:      make(map[uuid.UUID]*playerStats),
		botAccount: botID,
		bot:        NewBot(botID, time.Now().UnixNano()),
		botDelay:   500 * time.Millisecond,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

// WithClock overrides the manager clock. Test helper.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithBotDelay overrides the bot's thinking delay.
func (m *Manager) WithBotDelay(d time.Duration) *Manager {
	m.botDelay = d
	return m
}

// Room returns a live room by id.
func (m *Manager) Room(roomID uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrNotFound("room", roomID.String())
	}
	return room, nil
}

// RoomSnapshot returns a copy of a room safe to serialize while the match
// keeps running.
func (m *Manager) RoomSnapshot(roomID uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrNotFound("room", roomID.String())
	}
	return room.snapshot(), nil
}

func (m *Manager) statsFor(accountID uuid.UUID) *playerStats {
	st, ok := m.stats[accountID]
	if !ok {
		st = &playerStats{}
		m.stats[accountID] = st
	}
	return st
}

// screen runs the shield over one player for a stake.
func (m *Manager) screen(ctx context.Context, accountID uuid.UUID, bet decimal.Decimal, ip, device string) (*domain.Account, error) {
	account, err := m.engine.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	st := m.statsFor(accountID)
	snap := shield.Snapshot{
		AccountID:         accountID,
		TrustScore:        account.TrustScore,
		TrustLevel:        account.TrustLevel,
		KYCStatus:         account.KYCStatus,
		IsFrozen:          account.IsFrozen,
		GamesPlayed:       st.gamesPlayed,
		WinRate:           st.winRate(),
		FailedPayments1h:  st.recentFailedPayments(m.now()),
		RecentDisconnects: st.disconnects,
	}
	m.mu.Unlock()

	verdict, err := m.shield.VerifyPlayer(snap, bet, ip, device)
	if err != nil {
		return nil, err
	}
	if verdict.Decision == shield.DecisionReview {
		m.logger.Warn("player admitted under review", "account_id", accountID, "risk_score", verdict.RiskScore)
	}
	if account.Available.LessThan(bet) {
		return nil, domain.ErrInsufficientFunds()
	}
	return account, nil
}

// JoinQueue screens the player and either seats them in a fresh room (when
// an opponent is waiting) or parks them in the queue. A nil room with a nil
// error means the player is queued.
func (m *Manager) JoinQueue(ctx context.Context, accountID uuid.UUID, gt GameType, bet decimal.Decimal, ip, device string) (*Room, error) {
	if err := domain.ValidatePositiveAmount(bet); err != nil {
		return nil, err
	}
	if _, err := m.screen(ctx, accountID, bet, ip, device); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := queueKey{gameType: gt, bet: domain.MoneyString(bet)}
	for _, t := range m.queues[key] {
		if t.accountID == accountID {
			return nil, domain.ErrConflict("already queued for this game and stake")
		}
	}
	m.queues[key] = append(m.queues[key], &ticket{accountID: accountID, joinedAt: m.now()})
	if len(m.queues[key]) < defaultCapacity {
		return nil, nil
	}

	seats := m.queues[key][:defaultCapacity]
	ids := make([]uuid.UUID, len(seats))
	for i, t := range seats {
		ids[i] = t.accountID
	}
	if err := m.shield.VerifyMatchEntry(ids); err != nil {
		// Drop only the joining player; the earlier ticket keeps waiting.
		m.queues[key] = m.queues[key][:len(m.queues[key])-1]
		return nil, err
	}
	m.queues[key] = m.queues[key][defaultCapacity:]

	room := m.newRoom(gt, bet, ids, nil)
	m.logger.Info("room formed", "room_id", room.ID, "game", gt, "bet", domain.MoneyString(bet))
	m.notifier.RoomEvent(room.ID, "match_found", room)
	return room, nil
}

// LeaveQueue withdraws the player's matchmaking ticket for a game and stake.
// Leaving a queue the player is not in is a no-op, so a cancel that races a
// successful pairing fails soft and the client learns about the room from
// its match_found event.
func (m *Manager) LeaveQueue(accountID uuid.UUID, gt GameType, bet decimal.Decimal) error {
	if err := domain.ValidatePositiveAmount(bet); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := queueKey{gameType: gt, bet: domain.MoneyString(bet)}
	for i, t := range m.queues[key] {
		if t.accountID == accountID {
			m.queues[key] = append(m.queues[key][:i], m.queues[key][i+1:]...)
			if len(m.queues[key]) == 0 {
				delete(m.queues, key)
			}
			m.logger.Info("queue left", "account_id", accountID, "game", gt, "bet", domain.MoneyString(bet))
			return nil
		}
	}
	return nil
}

// JoinBotMatch seats the player against the house bot immediately.
func (m *Manager) JoinBotMatch(ctx context.Context, accountID uuid.UUID, gt GameType, bet decimal.Decimal, ip, device string) (*Room, error) {
	if err := domain.ValidatePositiveAmount(bet); err != nil {
		return nil, err
	}
	if _, err := m.screen(ctx, accountID, bet, ip, device); err != nil {
		return nil, err
	}
	if err := m.ensureBotAccount(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.newRoom(gt, bet, []uuid.UUID{accountID, m.botAccount}, map[uuid.UUID]bool{m.botAccount: true})
	m.notifier.RoomEvent(room.ID, "match_found", room)
	return room, nil
}

func (m *Manager) ensureBotAccount(ctx context.Context) error {
	if _, err := m.engine.GetAccount(ctx, m.botAccount); err == nil {
		return nil
	}
	_, err := m.engine.CreateAccount(ctx, m.botAccount, decimal.NewFromInt(botOpeningBalance))
	return err
}

// newRoom builds a matchmaking room. Callers hold m.mu.
func (m *Manager) newRoom(gt GameType, bet decimal.Decimal, ids []uuid.UUID, bots map[uuid.UUID]bool) *Room {
	room := &Room{
		ID:        uuid.New(),
		GameType:  gt,
		Bet:       bet,
		Capacity:  len(ids),
		Status:    StatusMatchmaking,
		Seats:     make(map[uuid.UUID]*Seat, len(ids)),
		CreatedAt: m.now(),
	}
	for _, id := range ids {
		isBot := bots[id]
		room.Seats[id] = &Seat{
			AccountID: id,
			IsBot:     isBot,
			Ready:     isBot, // the house bot is always ready
			Connected: true,
			JoinedAt:  m.now(),
		}
		room.Order = append(room.Order, id)
	}
	m.rooms[room.ID] = room
	return room
}

// Ready records a player's readiness. When the last seat confirms, escrow is
// locked for everyone and the room waits for escrow confirmations.
func (m *Manager) Ready(ctx context.Context, roomID, accountID uuid.UUID) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound("room", roomID.String())
	}
	if room.Status != StatusMatchmaking {
		m.mu.Unlock()
		return domain.ErrConflict("room is no longer accepting ready signals")
	}
	seat := room.seat(accountID)
	if seat == nil {
		m.mu.Unlock()
		return domain.ErrValidation("not a participant of this room")
	}
	seat.Ready = true
	ready := room.allReady()
	m.mu.Unlock()

	m.notifier.RoomEvent(roomID, "player_ready", map[string]string{"account_id": accountID.String()})
	if !ready {
		return nil
	}
	return m.lockIn(ctx, room)
}

// lockIn escrows every stake and parks the room in the locked phase until
// every human acknowledges the hold. A failure on any seat refunds the
// stakes already taken and cancels the room.
func (m *Manager) lockIn(ctx context.Context, room *Room) error {
	lockName := "room:" + room.ID.String()
	if !m.locks.Acquire(lockName, roomLockTTL) {
		return domain.ErrConflict("room lock-in already running")
	}
	defer m.locks.Release(lockName)

	var locked []uuid.UUID
	for _, accountID := range room.participants() {
		if _, err := m.engine.LockEscrow(ctx, accountID, room.Bet, room.ID); err != nil {
			m.mu.Lock()
			m.statsFor(accountID).failedPayments = append(m.statsFor(accountID).failedPayments, m.now())
			m.mu.Unlock()
			m.refund(ctx, room, locked)
			m.cancel(ctx, room, fmt.Sprintf("escrow lock failed for %s", accountID))
			return err
		}
		locked = append(locked, accountID)
		m.mu.Lock()
		seat := room.seat(accountID)
		seat.EscrowLocked = true
		if seat.IsBot {
			seat.EscrowConfirmed = true
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	if err := room.transition(StatusLocked); err != nil {
		m.mu.Unlock()
		return err
	}
	room.LockedAt = m.now()
	m.mu.Unlock()

	m.logger.Info("escrow locked in", "room_id", room.ID, "bet", domain.MoneyString(room.Bet))
	m.notifier.RoomEvent(room.ID, "match_locked", map[string]string{
		"bet_amount":     domain.MoneyString(room.Bet),
		"confirm_within": EscrowConfirmTimeout.String(),
	})
	return nil
}

// ConfirmEscrow records a player's acknowledgement that their stake is held.
// When the last human confirms, the game starts. A confirmation arriving
// after the window unwinds the room and reports the timeout.
func (m *Manager) ConfirmEscrow(ctx context.Context, roomID, accountID uuid.UUID, txHash string) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound("room", roomID.String())
	}
	if room.Status != StatusLocked {
		m.mu.Unlock()
		return domain.ErrConflict("room is not awaiting escrow confirmation")
	}
	seat := room.seat(accountID)
	if seat == nil {
		m.mu.Unlock()
		return domain.ErrValidation("not a participant of this room")
	}
	if m.now().Sub(room.LockedAt) > EscrowConfirmTimeout {
		m.mu.Unlock()
		m.abortLocked(ctx, room, "escrow confirmation timeout")
		return domain.ErrTimeout("escrow confirmation")
	}
	seat.EscrowConfirmed = true
	confirmed := room.allConfirmed()
	m.mu.Unlock()

	m.notifier.RoomEvent(roomID, "escrow_confirmed", map[string]string{
		"account_id":       accountID.String(),
		"transaction_hash": txHash,
	})
	if !confirmed {
		return nil
	}
	return m.startGame(room)
}

// startGame builds the game engine for a fully confirmed room and moves it
// in progress.
func (m *Manager) startGame(room *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room.Status != StatusLocked {
		return domain.ErrConflict("room is not ready to start")
	}

	if room.GameType == GameLudo {
		roller, err := dice.NewRoller()
		if err != nil {
			return err
		}
		game, err := ludo.NewGame(room.ID, room.participants(), roller)
		if err != nil {
			return err
		}
		room.game = game
		room.InitialStateHash = game.StateHash()
		if _, err := game.Start(); err != nil {
			return err
		}
	} else {
		m.shots[room.ID] = &shotState{
			scores: make(map[uuid.UUID]int),
			taken:  make(map[uuid.UUID]int),
		}
		room.InitialStateHash = room.ID.String()
	}
	if err := room.transition(StatusInProgress); err != nil {
		return err
	}
	for _, accountID := range room.participants() {
		m.detector.Register(accountID)
	}
	m.logger.Info("match started", "room_id", room.ID, "state_hash", room.InitialStateHash)
	m.notifier.RoomEvent(room.ID, "game_started", map[string]string{
		"initial_state_hash": room.InitialStateHash,
	})
	return nil
}

// abortLocked unwinds a locked room whose confirmations never completed:
// every held stake returns to its owner and the room cancels.
func (m *Manager) abortLocked(ctx context.Context, room *Room, reason string) {
	m.mu.Lock()
	var held []uuid.UUID
	for _, seat := range room.Seats {
		if seat.EscrowLocked {
			held = append(held, seat.AccountID)
		}
	}
	m.mu.Unlock()
	m.refund(ctx, room, held)
	m.cancel(ctx, room, reason)
}

// refund releases escrow for the given accounts, logging rather than failing
// on individual errors.
func (m *Manager) refund(ctx context.Context, room *Room, accounts []uuid.UUID) {
	for _, accountID := range accounts {
		if _, err := m.engine.ReleaseEscrow(ctx, accountID, room.Bet, room.ID); err != nil {
			m.logger.Error("escrow refund failed", "room_id", room.ID, "account_id", accountID, "error", err)
		}
	}
}

// cancel terminates a room before play and announces it.
func (m *Manager) cancel(ctx context.Context, room *Room, reason string) {
	m.mu.Lock()
	if err := room.transition(StatusCancelled); err != nil {
		m.mu.Unlock()
		m.logger.Error("cancel on terminal room", "room_id", room.ID, "error", err)
		return
	}
	room.CancelReason = reason
	m.mu.Unlock()
	m.logger.Info("room cancelled", "room_id", room.ID, "reason", reason)
	m.notifier.RoomEvent(room.ID, "match_cancelled", map[string]string{"reason": reason})
	m.recordEvent(ctx, room.ID, domain.EventMatchCancelled, map[string]string{"reason": reason})
}

// recordEvent queues a match lifecycle event for the outbox relay. Delivery
// is best effort from the room's point of view; a write failure is logged,
// never propagated into the match.
func (m *Manager) recordEvent(ctx context.Context, roomID uuid.UUID, kind domain.EventType, detail map[string]string) {
	if err := m.engine.RecordMatchEvent(ctx, roomID, kind, detail); err != nil {
		m.logger.Error("match event record failed", "room_id", roomID, "event", kind, "error", err)
	}
}

// RollDice rolls for a player in a ludo room, then lets the bot play any
// turns it is owed.
func (m *Manager) RollDice(ctx context.Context, roomID, accountID uuid.UUID, clientSeed string) (*ludo.RollOutcome, error) {
	room, game, err := m.ludoRoom(roomID)
	if err != nil {
		return nil, err
	}
	out, err := game.RollDice(accountID, clientSeed)
	if err != nil {
		return nil, err
	}
	m.notifier.RoomEvent(roomID, "dice_rolled", out)
	m.playBotTurns(ctx, room, game)
	return out, nil
}

// MovePiece executes a player's move in a ludo room.
func (m *Manager) MovePiece(ctx context.Context, roomID, accountID uuid.UUID, pieceID int) (*ludo.MoveOutcome, error) {
	room, game, err := m.ludoRoom(roomID)
	if err != nil {
		return nil, err
	}
	out, err := game.MovePiece(accountID, pieceID)
	if err != nil {
		return nil, err
	}
	m.notifier.RoomEvent(roomID, "piece_moved", out)
	if out.GameOver {
		return out, m.finishLudo(ctx, room, out)
	}
	m.playBotTurns(ctx, room, game)
	return out, nil
}

func (m *Manager) ludoRoom(roomID uuid.UUID) (*Room, *ludo.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrNotFound("room", roomID.String())
	}
	if room.Status != StatusInProgress {
		return nil, nil, domain.ErrConflict("match is not in progress")
	}
	if room.game == nil {
		return nil, nil, domain.ErrValidation("room has no board game")
	}
	return room, room.game, nil
}

// playBotTurns drives the house bot while it holds the turn.
func (m *Manager) playBotTurns(ctx context.Context, room *Room, game *ludo.Game) {
	for game.State() == ludo.StateRolling && game.CurrentTurn() == m.botAccount {
		if m.botDelay > 0 {
			time.Sleep(m.botDelay + time.Duration(m.rng.Int63n(int64(m.botDelay))))
		}
		out, err := game.RollDice(m.botAccount, "")
		if err != nil {
			return
		}
		m.notifier.RoomEvent(room.ID, "dice_rolled", out)
		if out.Penalty != "" || out.NoMoves {
			continue
		}
		choice := m.bot.ChooseMove(out.AvailableMoves)
		moved, err := game.MovePiece(m.botAccount, choice.PieceID)
		if err != nil {
			return
		}
		m.notifier.RoomEvent(room.ID, "piece_moved", moved)
		if moved.GameOver {
			if err := m.finishLudo(ctx, room, moved); err != nil {
				m.logger.Error("bot game settlement failed", "room_id", room.ID, "error", err)
			}
			return
		}
	}
}

// finishLudo runs validation and settlement for a decided board game.
func (m *Manager) finishLudo(ctx context.Context, room *Room, out *ludo.MoveOutcome) error {
	m.mu.Lock()
	if err := room.transition(StatusValidation); err != nil {
		m.mu.Unlock()
		return err
	}
	game := room.game
	m.mu.Unlock()

	// Replay the full roll log against the revealed seed before paying out.
	moves := game.Moves()
	rolls := make([]dice.Roll, len(moves))
	for i, mv := range moves {
		rolls[i] = mv.Roll
	}
	if out.Verification == nil || dice.Verify(out.Verification.ServerSeed, out.Verification.ServerSeedHash, rolls) != nil {
		m.dispute(room, "dice replay failed")
		return domain.ErrInternal("dice verification failed", nil)
	}
	return m.settle(ctx, room, out.Winner)
}

// settle pays the match out and closes the room. A payout failure holds the
// room in settlement with its winner recorded; the sweep retries until the
// ledger accepts the entry.
func (m *Manager) settle(ctx context.Context, room *Room, winnerID uuid.UUID) error {
	m.mu.Lock()
	if room.Status != StatusSettlement {
		if err := room.transition(StatusSettlement); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	room.WinnerID = winnerID
	participants := room.participants()
	m.mu.Unlock()

	entry, err := m.engine.SettleMatch(ctx, room.ID, winnerID, room.Bet, participants)
	if err != nil {
		m.logger.Error("settlement failed, holding for retry", "room_id", room.ID, "winner", winnerID, "error", err)
		return err
	}

	m.mu.Lock()
	room.SettlementID = entry.ID
	terr := room.transition(StatusCompleted)
	for _, accountID := range participants {
		st := m.statsFor(accountID)
		st.gamesPlayed++
		if accountID == winnerID {
			st.wins++
		}
	}
	m.mu.Unlock()
	if terr != nil {
		return terr
	}

	m.shield.RecordEncounter(participants)
	for _, accountID := range participants {
		m.detector.Unregister(accountID)
	}
	m.logger.Info("match completed", "room_id", room.ID, "winner", winnerID, "entry_id", entry.ID)
	m.notifier.RoomEvent(room.ID, "match_settled", map[string]string{
		"winner":   winnerID.String(),
		"entry_id": entry.ID,
		"prize":    domain.MoneyString(entry.CreditAmount),
		"rake":     domain.MoneyString(entry.RakeAmount),
		"status":   string(StatusCompleted),
	})
	m.recordEvent(ctx, room.ID, domain.EventMatchCompleted, map[string]string{
		"winner":   winnerID.String(),
		"entry_id": entry.ID,
	})
	return nil
}

// dispute parks the room for manual resolution.
func (m *Manager) dispute(room *Room, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := room.transition(StatusDisputed); err != nil {
		m.logger.Error("dispute transition failed", "room_id", room.ID, "error", err)
		return
	}
	room.CancelReason = reason
	m.logger.Warn("match disputed", "room_id", room.ID, "reason", reason)
	m.notifier.RoomEvent(room.ID, "match_disputed", map[string]string{"reason": reason})
}
