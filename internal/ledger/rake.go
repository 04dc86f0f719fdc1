package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
)

// RakeTier is one bracket of the progressive fee schedule. Smaller stakes pay
// a higher rate.
type RakeTier struct {
	Level string
	Rate  decimal.Decimal
}

var (
	tierSeed       = RakeTier{Level: "seed", Rate: decimal.NewFromFloat(0.08)}
	tierCompetitor = RakeTier{Level: "competitor", Rate: decimal.NewFromFloat(0.06)}
	tierPro        = RakeTier{Level: "pro", Rate: decimal.NewFromFloat(0.05)}

	seedMax       = decimal.NewFromInt(10)
	competitorMax = decimal.NewFromInt(50)
)

// TierForBet returns the rake tier for a per-player bet. Bets of 10 or less
// fall in the seed tier, up to 50 in competitor, everything above in pro.
func TierForBet(bet decimal.Decimal) RakeTier {
	switch {
	case bet.LessThanOrEqual(seedMax):
		return tierSeed
	case bet.LessThanOrEqual(competitorMax):
		return tierCompetitor
	default:
		return tierPro
	}
}

// FeeBreakdown is the full fee arithmetic for one match, suitable for logging
// and for the settlement entry.
type FeeBreakdown struct {
	BetPerPlayer decimal.Decimal `json:"bet_per_player"`
	Players      int             `json:"players"`
	RakeLevel    string          `json:"rake_level"`
	RakeRate     decimal.Decimal `json:"rake_rate"`
	FeePerPlayer decimal.Decimal `json:"fee_per_player"`
	TotalPot     decimal.Decimal `json:"total_pot"`
	TotalFee     decimal.Decimal `json:"total_fee"`
	WinnerPrize  decimal.Decimal `json:"winner_prize"`
}

// CalculateFee resolves the tier and derives per-player fee, total pot, total
// fee and winner prize. The per-player fee is rounded half-even to cents
// before being multiplied out, so prize = pot - players*rounded_fee exactly.
func CalculateFee(bet decimal.Decimal, players int) (FeeBreakdown, error) {
	if err := domain.ValidatePositiveAmount(bet); err != nil {
		return FeeBreakdown{}, err
	}
	if players < 2 {
		return FeeBreakdown{}, domain.ErrValidation(fmt.Sprintf("match needs at least 2 players, got %d", players))
	}
	tier := TierForBet(bet)
	n := decimal.NewFromInt(int64(players))
	feePerPlayer := domain.QuantizeFee(bet.Mul(tier.Rate))
	pot := domain.Quantize(bet.Mul(n))
	totalFee := domain.Quantize(feePerPlayer.Mul(n))
	return FeeBreakdown{
		BetPerPlayer: domain.Quantize(bet),
		Players:      players,
		RakeLevel:    tier.Level,
		RakeRate:     tier.Rate,
		FeePerPlayer: feePerPlayer,
		TotalPot:     pot,
		TotalFee:     totalFee,
		WinnerPrize:  domain.Quantize(pot.Sub(totalFee)),
	}, nil
}

// String renders the breakdown for operator-facing logs.
func (b FeeBreakdown) String() string {
	return fmt.Sprintf("bet=%s x%d tier=%s rate=%s fee/player=%s pot=%s rake=%s prize=%s",
		domain.MoneyString(b.BetPerPlayer), b.Players, b.RakeLevel, b.RakeRate.String(),
		b.FeePerPlayer.StringFixed(2), domain.MoneyString(b.TotalPot),
		domain.MoneyString(b.TotalFee), domain.MoneyString(b.WinnerPrize))
}
