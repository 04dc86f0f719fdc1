// Package shield screens players before matchmaking. Hard rules (frozen
// account, quarantine, minimum trust, KYC for high stakes, request rate)
// reject outright; soft signals accumulate into a risk score that routes the
// entry to manual review when it crosses the threshold.
package shield

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
)

// Risk scoring thresholds and weights.
const (
	minTrustScore      = 30
	highStakesTrust    = 70
	reviewThreshold    = 70
	weightHighStakes   = 20
	weightTrustYellow  = 15
	weightTrustRed     = 30
	weightFailedPays   = 25
	weightWinRate      = 20
	weightDisconnects  = 15
	failedPaymentLimit = 5
	winRateFloorGames  = 20
)

var (
	highStakesBet    = decimal.NewFromInt(100)
	winRateThreshold = decimal.NewFromFloat(0.85)
)

// Decision is the outcome of a player screening.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionReview   Decision = "review_required"
	DecisionRefused  Decision = "refused"
)

// Snapshot is the player state the shield evaluates. The caller assembles it
// from the ledger account and the player's match statistics.
type Snapshot struct {
	AccountID  uuid.UUID
	TrustScore int
	TrustLevel domain.TrustLevel
	KYCStatus  domain.KYCStatus
	IsFrozen   bool

	GamesPlayed       int
	WinRate           decimal.Decimal
	FailedPayments1h  int
	RecentDisconnects int
}

// Verdict is the screening result for an admitted or reviewable player.
type Verdict struct {
	Decision  Decision `json:"decision"`
	RiskScore int      `json:"risk_score"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Shield runs the screening pipeline over a presence store.
type Shield struct {
	store  *MemoryStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a shield over the given store.
func New(store *MemoryStore, logger *slog.Logger) *Shield {
	return &Shield{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the shield clock. Test helper.
func (s *Shield) WithClock(now func() time.Time) *Shield {
	s.now = now
	return s
}

// VerifyPlayer screens one player for a match at the given stake. Hard rules
// are checked in severity order and short-circuit; surviving players get a
// risk score and either approval or a review flag.
func (s *Shield) VerifyPlayer(snap Snapshot, bet decimal.Decimal, ip, device string) (*Verdict, error) {
	now := s.now()

	if snap.IsFrozen {
		return nil, domain.ErrAccountFrozen(snap.AccountID.String())
	}
	if until, ok := s.store.QuarantinedUntil(snap.AccountID, now); ok {
		return nil, domain.ErrQuarantined(int(until.Sub(now).Seconds()) + 1)
	}
	if snap.TrustScore < minTrustScore {
		return nil, domain.ErrLowTrust(snap.TrustScore)
	}
	highStakes := bet.GreaterThanOrEqual(highStakesBet)
	if highStakes && snap.KYCStatus != domain.KYCVerified {
		return nil, domain.ErrKYCRequired()
	}
	if !s.store.AllowRequest(snap.AccountID, now) {
		return nil, domain.ErrRateLimited(int(rateWindow.Seconds()))
	}

	verdict := &Verdict{Decision: DecisionApproved}
	add := func(points int, reason string) {
		verdict.RiskScore += points
		verdict.Reasons = append(verdict.Reasons, reason)
	}
	if highStakes && snap.TrustScore < highStakesTrust {
		add(weightHighStakes, "high stakes with mid trust")
	}
	switch snap.TrustLevel {
	case domain.TrustYellow:
		add(weightTrustYellow, "trust level yellow")
	case domain.TrustRed:
		add(weightTrustRed, "trust level red")
	}
	if snap.FailedPayments1h >= failedPaymentLimit {
		add(weightFailedPays, "repeated failed payments")
	}
	if snap.GamesPlayed >= winRateFloorGames && snap.WinRate.GreaterThanOrEqual(winRateThreshold) {
		add(weightWinRate, "anomalous win rate")
	}
	if snap.RecentDisconnects >= 3 {
		add(weightDisconnects, "frequent disconnects")
	}
	if verdict.RiskScore >= reviewThreshold {
		verdict.Decision = DecisionReview
	}

	s.store.RecordPresence(snap.AccountID, ip, device, now)
	if verdict.Decision != DecisionApproved {
		s.logger.Warn("player flagged for review",
			"account_id", snap.AccountID, "risk_score", verdict.RiskScore, "reasons", verdict.Reasons)
	}
	return verdict, nil
}

// Quarantine blocks an account from matchmaking for the given duration.
func (s *Shield) Quarantine(accountID uuid.UUID, d time.Duration) {
	until := s.now().Add(d)
	s.store.Quarantine(accountID, until)
	s.logger.Info("account quarantined", "account_id", accountID, "until", until)
}

// RecordEncounter counts a finished match between each pair of participants.
func (s *Shield) RecordEncounter(participants []uuid.UUID) {
	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			s.store.RecordEncounter(participants[i], participants[j])
		}
	}
}

// Housekeep evicts expired presence data. Run from a ticker.
func (s *Shield) Housekeep() {
	s.store.Evict(s.now())
}
