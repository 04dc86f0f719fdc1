package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
)

// LockEscrow moves amount from available into the match escrow sub-balance.
// The total balance is unchanged; one chain entry records the internal move.
func (e *Engine) LockEscrow(ctx context.Context, id uuid.UUID, amount decimal.Decimal, matchID uuid.UUID) (*domain.Transaction, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	unlock := e.lockAccounts(id)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	a, err := e.loadVerified(ctx, tx, id)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if a.Available.LessThan(amount) {
		return nil, finish(ctx, tx, domain.ErrInsufficientFunds())
	}
	before := a.Total()
	a.Available = domain.Quantize(a.Available.Sub(amount))
	a.EscrowMatch = domain.Quantize(a.EscrowMatch.Add(amount))
	a.Reseal(e.now())

	ref := fmt.Sprintf("available->escrow_match match=%s", matchID)
	entry, err := e.appendTx(ctx, tx, a, &matchID, domain.TxEscrowLock, amount, before, a.Total(), ref)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.logger.Info("escrow locked", "account_id", id, "match_id", matchID, "amount", domain.MoneyString(amount))
	return entry, nil
}

// ReleaseEscrow returns amount from the match escrow sub-balance to
// available. Used to refund a cancelled match or to unwind a partial lock.
func (e *Engine) ReleaseEscrow(ctx context.Context, id uuid.UUID, amount decimal.Decimal, matchID uuid.UUID) (*domain.Transaction, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	unlock := e.lockAccounts(id)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	a, err := e.loadVerified(ctx, tx, id)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if a.EscrowMatch.LessThan(amount) {
		return nil, finish(ctx, tx, domain.ErrConflict(
			fmt.Sprintf("escrow balance %s cannot release %s", domain.MoneyString(a.EscrowMatch), domain.MoneyString(amount))))
	}
	before := a.Total()
	a.EscrowMatch = domain.Quantize(a.EscrowMatch.Sub(amount))
	a.Available = domain.Quantize(a.Available.Add(amount))
	a.Reseal(e.now())

	ref := fmt.Sprintf("escrow_match->available match=%s", matchID)
	entry, err := e.appendTx(ctx, tx, a, &matchID, domain.TxEscrowRelease, amount, before, a.Total(), ref)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.logger.Info("escrow released", "account_id", id, "match_id", matchID, "amount", domain.MoneyString(amount))
	return entry, nil
}
