package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
)

// VerifyReport is the result of a full ledger audit.
type VerifyReport struct {
	AccountsChecked int             `json:"accounts_checked"`
	EntriesChecked  int             `json:"entries_checked"`
	Drift           decimal.Decimal `json:"drift"`
	Violations      []string        `json:"violations,omitempty"`
}

// OK reports whether the audit found no violations and no drift.
func (r *VerifyReport) OK() bool {
	return len(r.Violations) == 0 && r.Drift.IsZero()
}

// VerifyLedger audits every account integrity hash, every transaction chain
// link and every committed settlement entry, and reconciles the treasury
// balance against the committed rake total.
func (e *Engine) VerifyLedger(ctx context.Context) (*VerifyReport, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	report := &VerifyReport{Drift: decimal.Zero}

	accounts, err := tx.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		report.AccountsChecked++
		if !a.VerifyIntegrity() {
			report.Violations = append(report.Violations, fmt.Sprintf("account %s: integrity hash mismatch", a.ID))
		}
		chain, err := tx.ListTransactions(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		prev := domain.GenesisHash
		for i, entry := range chain {
			if entry.PrevHash != prev {
				report.Violations = append(report.Violations, fmt.Sprintf("account %s: chain break at entry %d", a.ID, i))
			}
			want := domain.ComputeTransactionHash(entry.PrevHash, entry.Amount, entry.CreatedAt, entry.AccountID)
			if entry.Hash != want {
				report.Violations = append(report.Violations, fmt.Sprintf("account %s: tampered entry %d", a.ID, i))
			}
			prev = entry.Hash
		}
	}

	entries, err := tx.ListSettlements(ctx)
	if err != nil {
		return nil, err
	}
	totalRake := decimal.Zero
	for _, entry := range entries {
		report.EntriesChecked++
		if !entry.BalanceEquationHolds() {
			report.Violations = append(report.Violations, fmt.Sprintf("settlement %s: debit != credit + rake", entry.ID))
		}
		if entry.Status == domain.SettlementCommitted {
			totalRake = totalRake.Add(entry.RakeAmount)
		}
	}
	treasuryBalance := decimal.Zero
	if treasury, err := tx.GetAccount(ctx, TreasuryID); err == nil {
		treasuryBalance = treasury.Total()
	}
	report.Drift = domain.Quantize(treasuryBalance.Sub(totalRake))
	if !report.Drift.IsZero() {
		report.Violations = append(report.Violations, fmt.Sprintf("treasury drift %s", domain.MoneyString(report.Drift)))
	}
	return report, nil
}
