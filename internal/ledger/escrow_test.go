package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_EscrowRoundTrip(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 100)
	matchID := uuid.New()
	stake := decimal.NewFromInt(25)

	_, err := e.LockEscrow(ctx, id, stake, matchID)
	require.NoError(t, err)

	a, err := e.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Available.Equal(decimal.NewFromInt(75)))
	assert.True(t, a.EscrowMatch.Equal(stake))
	assert.True(t, a.Total().Equal(decimal.NewFromInt(100)), "lock must conserve the total")
	assert.True(t, a.VerifyIntegrity())

	_, err = e.ReleaseEscrow(ctx, id, stake, matchID)
	require.NoError(t, err)

	a, err = e.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Available.Equal(decimal.NewFromInt(100)))
	assert.True(t, a.EscrowMatch.IsZero())

	store.mu.Lock()
	chainLen := len(store.chains[id])
	store.mu.Unlock()
	assert.Equal(t, 2, chainLen, "round trip records exactly two transactions")
}

func TestEngine_LockEscrowRejectsOverdraft(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 10)

	_, err := e.LockEscrow(ctx, id, decimal.NewFromInt(25), uuid.New())
	assert.Error(t, err)

	a, err := e.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Available.Equal(decimal.NewFromInt(10)))
	assert.True(t, a.EscrowMatch.IsZero())
}

func TestEngine_ReleaseEscrowRejectsExcess(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id := fund(t, e, 100)
	matchID := uuid.New()

	_, err := e.LockEscrow(ctx, id, decimal.NewFromInt(10), matchID)
	require.NoError(t, err)

	_, err = e.ReleaseEscrow(ctx, id, decimal.NewFromInt(11), matchID)
	assert.Error(t, err)
}
