package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompite/arena/internal/domain"
)

func lockStakes(t *testing.T, e *Engine, matchID uuid.UUID, stake decimal.Decimal, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		_, err := e.LockEscrow(context.Background(), id, stake, matchID)
		require.NoError(t, err)
	}
}

func TestEngine_SettleMatchPaysWinnerAndTreasury(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	winner := fund(t, e, 100)
	loser := fund(t, e, 100)
	matchID := uuid.New()
	stake := decimal.NewFromInt(25)
	lockStakes(t, e, matchID, stake, winner, loser)

	entry, err := e.SettleMatch(ctx, matchID, winner, stake, []uuid.UUID{winner, loser})
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCommitted, entry.Status)
	assert.True(t, entry.BalanceEquationHolds())
	assert.True(t, entry.DebitAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, entry.CreditAmount.Equal(decimal.NewFromInt(47)))
	assert.True(t, entry.RakeAmount.Equal(decimal.NewFromInt(3)))

	w, err := e.GetAccount(ctx, winner)
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(decimal.NewFromInt(122)), "winner got %s", domain.MoneyString(w.Available))
	assert.True(t, w.EscrowMatch.IsZero())

	l, err := e.GetAccount(ctx, loser)
	require.NoError(t, err)
	assert.True(t, l.Available.Equal(decimal.NewFromInt(75)))
	assert.True(t, l.EscrowMatch.IsZero())

	treasury, err := e.GetAccount(ctx, TreasuryID)
	require.NoError(t, err)
	assert.True(t, treasury.Available.Equal(decimal.NewFromInt(3)))

	report, err := e.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "violations: %v", report.Violations)
}

func TestEngine_SettleMatchTwiceFails(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	winner := fund(t, e, 100)
	loser := fund(t, e, 100)
	matchID := uuid.New()
	stake := decimal.NewFromInt(25)
	lockStakes(t, e, matchID, stake, winner, loser)

	_, err := e.SettleMatch(ctx, matchID, winner, stake, []uuid.UUID{winner, loser})
	require.NoError(t, err)

	_, err = e.SettleMatch(ctx, matchID, winner, stake, []uuid.UUID{winner, loser})
	assert.Error(t, err, "a match settles at most once")
}

func TestEngine_SettleMatchRollsBackOnMissingEscrow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	winner := fund(t, e, 100)
	loser := fund(t, e, 100)
	matchID := uuid.New()
	stake := decimal.NewFromInt(25)

	// Winner escrowed, loser never confirmed.
	lockStakes(t, e, matchID, stake, winner)

	entry, err := e.SettleMatch(ctx, matchID, winner, stake, []uuid.UUID{winner, loser})
	require.Error(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.SettlementRolledBack, entry.Status)

	w, err := e.GetAccount(ctx, winner)
	require.NoError(t, err)
	assert.True(t, w.EscrowMatch.Equal(stake), "escrow must be intact after rollback")
	assert.True(t, w.Available.Equal(decimal.NewFromInt(75)))

	persisted, err := e.GetSettlement(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementRolledBack, persisted.Status)
}

func TestEngine_SettleMatchFourPlayers(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ids := []uuid.UUID{fund(t, e, 100), fund(t, e, 100), fund(t, e, 100), fund(t, e, 100)}
	matchID := uuid.New()
	stake := decimal.NewFromInt(10)
	lockStakes(t, e, matchID, stake, ids...)

	entry, err := e.SettleMatch(ctx, matchID, ids[2], stake, ids)
	require.NoError(t, err)

	// Seed tier: 8% of 10 = 0.80 per player, rake 3.20, prize 36.80.
	assert.True(t, entry.DebitAmount.Equal(decimal.NewFromInt(40)))
	assert.True(t, entry.RakeAmount.Equal(decimal.RequireFromString("3.20")))
	assert.True(t, entry.CreditAmount.Equal(decimal.RequireFromString("36.80")))

	w, err := e.GetAccount(ctx, ids[2])
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(decimal.RequireFromString("126.80")))

	sum, err := e.Treasury(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.MatchesSettled)
	assert.True(t, sum.Drift.IsZero())
}
