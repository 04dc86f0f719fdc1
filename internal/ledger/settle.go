package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
)

// TreasuryID is the account holding accumulated rake. It is created lazily
// on the first settlement.
var TreasuryID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

// SettleMatch liquidates a finished match in three phases: a pending
// triple-entry record is persisted first, then all balance moves are applied
// atomically and the entry committed, and on any failure the entry is marked
// rolled back with every escrow untouched.
//
// Each participant's escrowed bet is consumed from escrow_match; the winner
// receives the prize into available and the treasury collects the rake, so
// debit (total pot) = credit (prize) + rake holds by construction.
func (e *Engine) SettleMatch(ctx context.Context, matchID, winnerID uuid.UUID, bet decimal.Decimal, participants []uuid.UUID) (*domain.SettlementEntry, error) {
	breakdown, err := CalculateFee(bet, len(participants))
	if err != nil {
		return nil, err
	}
	losers := make([]uuid.UUID, 0, len(participants)-1)
	winnerPresent := false
	for _, p := range participants {
		if p == winnerID {
			winnerPresent = true
			continue
		}
		losers = append(losers, p)
	}
	if !winnerPresent {
		return nil, domain.ErrValidation("winner is not a match participant")
	}

	entry := &domain.SettlementEntry{
		ID:           domain.NewSettlementEntryID(matchID, e.now()),
		MatchID:      matchID,
		LoserID:      losers[0],
		WinnerID:     winnerID,
		TreasuryID:   domain.TreasuryAccountID,
		DebitAmount:  breakdown.TotalPot,
		CreditAmount: breakdown.WinnerPrize,
		RakeAmount:   breakdown.TotalFee,
		Status:       domain.SettlementPending,
		CreatedAt:    e.now(),
	}
	if !entry.BalanceEquationHolds() {
		return nil, domain.ErrInternal("settlement equation does not balance", nil)
	}
	if err := e.persistPendingEntry(ctx, matchID, entry); err != nil {
		return nil, err
	}

	if err := e.commitEntry(ctx, entry, breakdown, participants); err != nil {
		entry.Status = domain.SettlementRolledBack
		if rberr := e.markEntry(ctx, entry); rberr != nil {
			e.logger.Error("settlement rollback mark failed", "entry_id", entry.ID, "error", rberr)
		}
		e.logger.Warn("settlement rolled back", "match_id", matchID, "entry_id", entry.ID, "error", err)
		return entry, err
	}
	entry.Status = domain.SettlementCommitted
	e.logger.Info("match settled", "match_id", matchID, "entry_id", entry.ID, "breakdown", breakdown.String())
	return entry, nil
}

func (e *Engine) persistPendingEntry(ctx context.Context, matchID uuid.UUID, entry *domain.SettlementEntry) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	existing, err := tx.ListSettlements(ctx)
	if err != nil {
		return err
	}
	for _, prev := range existing {
		if prev.MatchID == matchID && prev.Status == domain.SettlementCommitted {
			return domain.ErrConflict(fmt.Sprintf("match %s already settled by entry %s", matchID, prev.ID))
		}
	}
	if err := tx.SaveSettlement(ctx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// commitEntry applies every balance move of a pending entry in one store
// transaction. Locks are taken over all involved accounts, ascending.
func (e *Engine) commitEntry(ctx context.Context, entry *domain.SettlementEntry, breakdown FeeBreakdown, participants []uuid.UUID) error {
	ids := append(append([]uuid.UUID{}, participants...), TreasuryID)
	unlock := e.lockAccounts(ids...)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	accounts := make(map[uuid.UUID]*domain.Account, len(participants))
	for _, id := range participants {
		a, err := e.loadVerified(ctx, tx, id)
		if err != nil {
			return finish(ctx, tx, err)
		}
		if a.EscrowMatch.LessThan(breakdown.BetPerPlayer) {
			return finish(ctx, tx, domain.ErrConflict(
				fmt.Sprintf("participant %s escrow %s below stake %s", id, domain.MoneyString(a.EscrowMatch), domain.MoneyString(breakdown.BetPerPlayer))))
		}
		accounts[id] = a
	}
	treasury, err := e.treasuryAccount(ctx, tx)
	if err != nil {
		return finish(ctx, tx, err)
	}

	matchID := entry.MatchID
	for _, id := range participants {
		a := accounts[id]
		before := a.Total()
		a.EscrowMatch = domain.Quantize(a.EscrowMatch.Sub(breakdown.BetPerPlayer))
		a.Reseal(e.now())
		ref := fmt.Sprintf("stake consumed by settlement %s", entry.ID)
		if _, err := e.appendTx(ctx, tx, a, &matchID, domain.TxEscrowRelease, breakdown.BetPerPlayer, before, a.Total(), ref); err != nil {
			return finish(ctx, tx, err)
		}
	}

	winner := accounts[entry.WinnerID]
	before := winner.Total()
	winner.Available = domain.Quantize(winner.Available.Add(breakdown.WinnerPrize))
	winner.Reseal(e.now())
	if _, err := e.appendTx(ctx, tx, winner, &matchID, domain.TxPrizeCredit, breakdown.WinnerPrize, before, winner.Total(),
		fmt.Sprintf("prize from settlement %s", entry.ID)); err != nil {
		return finish(ctx, tx, err)
	}

	before = treasury.Total()
	treasury.Available = domain.Quantize(treasury.Available.Add(breakdown.TotalFee))
	treasury.Reseal(e.now())
	if _, err := e.appendTx(ctx, tx, treasury, &matchID, domain.TxSystemFee, breakdown.TotalFee, before, treasury.Total(),
		fmt.Sprintf("rake from settlement %s (%s tier)", entry.ID, breakdown.RakeLevel)); err != nil {
		return finish(ctx, tx, err)
	}

	for _, a := range accounts {
		if err := tx.SaveAccount(ctx, a); err != nil {
			return finish(ctx, tx, err)
		}
	}
	if err := tx.SaveAccount(ctx, treasury); err != nil {
		return finish(ctx, tx, err)
	}

	committed := *entry
	committed.Status = domain.SettlementCommitted
	if err := tx.SaveSettlement(ctx, &committed); err != nil {
		return finish(ctx, tx, err)
	}
	if err := tx.InsertOutbox(ctx, domain.NewSettlementEvent(&committed)); err != nil {
		return finish(ctx, tx, err)
	}
	return tx.Commit(ctx)
}

// markEntry persists a status change of an existing entry.
func (e *Engine) markEntry(ctx context.Context, entry *domain.SettlementEntry) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := tx.SaveSettlement(ctx, entry); err != nil {
		return err
	}
	if entry.Status == domain.SettlementRolledBack {
		if err := tx.InsertOutbox(ctx, domain.NewSettlementEvent(entry)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// treasuryAccount loads the treasury, creating it on first use.
func (e *Engine) treasuryAccount(ctx context.Context, tx StoreTx) (*domain.Account, error) {
	a, err := tx.GetAccount(ctx, TreasuryID)
	if err == nil {
		return a, nil
	}
	a = domain.NewAccount(TreasuryID, decimal.Zero, e.now())
	a.KYCStatus = domain.KYCVerified
	if serr := tx.SaveAccount(ctx, a); serr != nil {
		return nil, serr
	}
	return a, nil
}

// GetSettlement returns one settlement entry by id.
func (e *Engine) GetSettlement(ctx context.Context, id string) (*domain.SettlementEntry, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	return tx.GetSettlement(ctx, id)
}

// TreasurySummary aggregates rake collection across all committed entries.
type TreasurySummary struct {
	MatchesSettled  int             `json:"matches_settled"`
	TotalRake       decimal.Decimal `json:"total_rake"`
	TreasuryBalance decimal.Decimal `json:"treasury_balance"`
	Drift           decimal.Decimal `json:"drift"`
}

// Treasury reports the committed rake total against the live treasury
// balance. Any nonzero drift means entries and balances disagree.
func (e *Engine) Treasury(ctx context.Context) (*TreasurySummary, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	entries, err := tx.ListSettlements(ctx)
	if err != nil {
		return nil, err
	}
	sum := &TreasurySummary{TotalRake: decimal.Zero, TreasuryBalance: decimal.Zero}
	for _, entry := range entries {
		if entry.Status != domain.SettlementCommitted {
			continue
		}
		sum.MatchesSettled++
		sum.TotalRake = sum.TotalRake.Add(entry.RakeAmount)
	}
	if treasury, err := tx.GetAccount(ctx, TreasuryID); err == nil {
		sum.TreasuryBalance = treasury.Total()
	}
	sum.Drift = domain.Quantize(sum.TreasuryBalance.Sub(sum.TotalRake))
	return sum, nil
}
