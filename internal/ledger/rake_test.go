package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForBet_Boundaries(t *testing.T) {
	assert.Equal(t, "seed", TierForBet(decimal.NewFromInt(1)).Level)
	assert.Equal(t, "seed", TierForBet(decimal.NewFromInt(10)).Level)
	assert.Equal(t, "competitor", TierForBet(decimal.NewFromInt(11)).Level)
	assert.Equal(t, "competitor", TierForBet(decimal.NewFromInt(50)).Level)
	assert.Equal(t, "pro", TierForBet(decimal.NewFromInt(51)).Level)
	assert.Equal(t, "pro", TierForBet(decimal.NewFromInt(500)).Level)
}

func TestCalculateFee_CompetitorTier(t *testing.T) {
	b, err := CalculateFee(decimal.NewFromInt(25), 2)
	require.NoError(t, err)

	assert.Equal(t, "competitor", b.RakeLevel)
	assert.True(t, b.FeePerPlayer.Equal(decimal.RequireFromString("1.50")), "fee/player %s", b.FeePerPlayer)
	assert.True(t, b.TotalPot.Equal(decimal.NewFromInt(50)))
	assert.True(t, b.TotalFee.Equal(decimal.NewFromInt(3)))
	assert.True(t, b.WinnerPrize.Equal(decimal.NewFromInt(47)))
}

func TestCalculateFee_RoundsFeeHalfEven(t *testing.T) {
	// 6% of 10.25 = 0.615, banker's rounding gives 0.62.
	b, err := CalculateFee(decimal.RequireFromString("10.25"), 2)
	require.NoError(t, err)
	assert.True(t, b.FeePerPlayer.Equal(decimal.RequireFromString("0.62")), "fee/player %s", b.FeePerPlayer)
	assert.True(t, b.WinnerPrize.Equal(b.TotalPot.Sub(b.TotalFee)))
}

func TestCalculateFee_RejectsBadInput(t *testing.T) {
	_, err := CalculateFee(decimal.Zero, 2)
	assert.Error(t, err)

	_, err = CalculateFee(decimal.NewFromInt(10), 1)
	assert.Error(t, err)
}
