package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TreasuryAccountID is the fixed treasury party of every settlement entry.
const TreasuryAccountID = "LK_TREASURY"

// SettlementStatus is the lifecycle of a triple-entry settlement record.
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"
	SettlementCommitted  SettlementStatus = "committed"
	SettlementRolledBack SettlementStatus = "rolled_back"
)

// SettlementEntry is the triple-entry record for one match liquidation:
// debit from the pot, credit to the winner, rake to the treasury.
type SettlementEntry struct {
	ID      string    `json:"entry_id"`
	MatchID uuid.UUID `json:"match_id"`

	LoserID    uuid.UUID `json:"loser_id"`
	WinnerID   uuid.UUID `json:"winner_id"`
	TreasuryID string    `json:"treasury_id"`

	// DebitAmount is the total pot (bet per player times players),
	// CreditAmount the winner's prize, RakeAmount the treasury fee.
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	RakeAmount   decimal.Decimal `json:"rake_amount"`

	Status    SettlementStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// BalanceEquationHolds checks the triple-entry invariant debit = credit + rake.
func (e *SettlementEntry) BalanceEquationHolds() bool {
	return e.DebitAmount.Equal(e.CreditAmount.Add(e.RakeAmount))
}

// EntryHash computes the immutability hash over the entry's economic fields.
func (e *SettlementEntry) EntryHash() string {
	payload := map[string]string{
		"entry_id":      e.ID,
		"match_id":      e.MatchID.String(),
		"loser_id":      e.LoserID.String(),
		"winner_id":     e.WinnerID.String(),
		"debit_amount":  MoneyString(e.DebitAmount),
		"credit_amount": MoneyString(e.CreditAmount),
		"rake_amount":   MoneyString(e.RakeAmount),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NewSettlementEntryID builds the human-scannable ledger entry id.
func NewSettlementEntryID(matchID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("LED-%s-%d", matchID.String()[:8], now.Unix())
}
