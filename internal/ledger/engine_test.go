package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompite/arena/internal/domain"
)

func newTestEngine(t *testing.T) (*Engine, *MemStore) {
	t.Helper()
	store := NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, logger), store
}

func fund(t *testing.T, e *Engine, amount int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := e.CreateAccount(context.Background(), id, decimal.NewFromInt(amount))
	require.NoError(t, err)
	return id
}

func TestEngine_CreditAppendsChainedTransaction(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 100)

	tx1, err := e.Credit(ctx, id, decimal.NewFromInt(50), domain.TxDeposit, "topup")
	require.NoError(t, err)
	tx2, err := e.Credit(ctx, id, decimal.NewFromInt(10), domain.TxDeposit, "topup")
	require.NoError(t, err)

	assert.Equal(t, domain.GenesisHash, tx1.PrevHash)
	assert.Equal(t, tx1.Hash, tx2.PrevHash)

	a, err := e.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Available.Equal(decimal.NewFromInt(160)))
	assert.True(t, a.VerifyIntegrity())

	assert.Len(t, store.Outbox(), 2)
}

func TestEngine_DebitRejectsOverdraft(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 20)

	_, err := e.Debit(ctx, id, decimal.NewFromInt(25), domain.TxWithdrawal, "cashout")
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_FUNDS", appErr.Code)

	a, err := e.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Available.Equal(decimal.NewFromInt(20)), "balance must be untouched")
}

func TestEngine_TamperedBalanceFreezesAccount(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 100)

	// Simulate a direct store manipulation that skips the engine.
	store.mu.Lock()
	store.accounts[id].Available = decimal.NewFromInt(9999)
	store.mu.Unlock()

	_, err := e.Credit(ctx, id, decimal.NewFromInt(1), domain.TxDeposit, "topup")
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INTEGRITY_VIOLATION", appErr.Code)

	a, err := e.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.IsFrozen)

	_, err = e.Credit(ctx, id, decimal.NewFromInt(1), domain.TxDeposit, "topup")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "ACCOUNT_FROZEN", appErr.Code, "frozen account must reject all mutations")

	frozen := false
	for _, ev := range store.Outbox() {
		if ev.EventType == domain.EventAccountFrozen {
			frozen = true
		}
	}
	assert.True(t, frozen, "freeze must emit an alert event")
}

func TestEngine_VerifyLedgerDetectsChainBreak(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 100)

	_, err := e.Credit(ctx, id, decimal.NewFromInt(5), domain.TxDeposit, "a")
	require.NoError(t, err)
	_, err = e.Credit(ctx, id, decimal.NewFromInt(5), domain.TxDeposit, "b")
	require.NoError(t, err)

	report, err := e.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())

	store.mu.Lock()
	store.chains[id][0].Amount = decimal.NewFromInt(500)
	store.mu.Unlock()

	report, err = e.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.NotEmpty(t, report.Violations)
}
