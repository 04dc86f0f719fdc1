// Package repository is the pgx-backed durable store for the ledger. Money
// columns are numeric(20,4) and travel as canonical 4-digit strings so the
// decimal values survive the round trip bit-exact.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
	"github.com/kompite/arena/internal/ledger"
)

// PgStore implements ledger.Store over a pgx connection pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates the durable ledger store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Begin opens one database transaction for a unit of ledger work.
func (s *PgStore) Begin(ctx context.Context) (ledger.StoreTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ledger tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

const accountColumns = `id, available::text, escrow_match::text, escrow_out::text,
       balance_salt, integrity_hash, balance_version,
       trust_score, trust_level, kyc_status, is_frozen, frozen_reason,
       created_at, updated_at`

func (t *pgTx) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts WHERE id = $1
		FOR UPDATE`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound("account", id.String())
	}
	return a, err
}

func (t *pgTx) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveAccount(ctx context.Context, a *domain.Account) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts
		  (id, available, escrow_match, escrow_out,
		   balance_salt, integrity_hash, balance_version,
		   trust_score, trust_level, kyc_status, is_frozen, frozen_reason,
		   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
		  available = EXCLUDED.available,
		  escrow_match = EXCLUDED.escrow_match,
		  escrow_out = EXCLUDED.escrow_out,
		  integrity_hash = EXCLUDED.integrity_hash,
		  balance_version = EXCLUDED.balance_version,
		  trust_score = EXCLUDED.trust_score,
		  trust_level = EXCLUDED.trust_level,
		  kyc_status = EXCLUDED.kyc_status,
		  is_frozen = EXCLUDED.is_frozen,
		  frozen_reason = EXCLUDED.frozen_reason,
		  updated_at = EXCLUDED.updated_at`,
		a.ID,
		domain.MoneyString(a.Available),
		domain.MoneyString(a.EscrowMatch),
		domain.MoneyString(a.EscrowOut),
		a.BalanceSalt,
		a.IntegrityHash,
		a.BalanceVersion,
		a.TrustScore,
		string(a.TrustLevel),
		string(a.KYCStatus),
		a.IsFrozen,
		a.FrozenReason,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, entry *domain.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_transactions
		  (id, account_id, match_id, type, amount, balance_before, balance_after,
		   tx_hash, prev_tx_hash, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID,
		entry.AccountID,
		entry.MatchID,
		string(entry.Type),
		domain.MoneyString(entry.Amount),
		domain.MoneyString(entry.BalanceBefore),
		domain.MoneyString(entry.BalanceAfter),
		entry.Hash,
		entry.PrevHash,
		entry.Reference,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (t *pgTx) TipHash(ctx context.Context, accountID uuid.UUID) (string, error) {
	var hash string
	err := t.tx.QueryRow(ctx, `
		SELECT tx_hash FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT 1`, accountID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("tip hash: %w", err)
	}
	return hash, nil
}

func (t *pgTx) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, account_id, match_id, type, amount::text, balance_before::text, balance_after::text,
		       tx_hash, prev_tx_hash, reference, created_at
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY seq ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var entry domain.Transaction
		var amount, before, after string
		err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.MatchID, &entry.Type,
			&amount, &before, &after,
			&entry.Hash, &entry.PrevHash, &entry.Reference, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if entry.BalanceBefore, err = decimal.NewFromString(before); err != nil {
			return nil, fmt.Errorf("parse balance_before: %w", err)
		}
		if entry.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("parse balance_after: %w", err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveSettlement(ctx context.Context, e *domain.SettlementEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO settlement_entries
		  (entry_id, match_id, loser_id, winner_id, treasury_id,
		   debit_amount, credit_amount, rake_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (entry_id) DO UPDATE SET status = EXCLUDED.status`,
		e.ID,
		e.MatchID,
		e.LoserID,
		e.WinnerID,
		e.TreasuryID,
		domain.MoneyString(e.DebitAmount),
		domain.MoneyString(e.CreditAmount),
		domain.MoneyString(e.RakeAmount),
		string(e.Status),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save settlement: %w", err)
	}
	return nil
}

const settlementColumns = `entry_id, match_id, loser_id, winner_id, treasury_id,
       debit_amount::text, credit_amount::text, rake_amount::text, status, created_at`

func (t *pgTx) GetSettlement(ctx context.Context, id string) (*domain.SettlementEntry, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_entries WHERE entry_id = $1`, id)
	e, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound("settlement entry", id)
	}
	return e, err
}

func (t *pgTx) ListSettlements(ctx context.Context) ([]*domain.SettlementEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_entries ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []*domain.SettlementEntry
	for rows.Next() {
		e, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertOutbox(ctx context.Context, draft domain.OutboxDraft) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_outbox
		  ("eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "payload", "occurredAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		draft.EventID,
		string(draft.AggregateType),
		draft.AggregateID,
		string(draft.EventType),
		draft.PartitionKey,
		draft.Payload,
		draft.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var available, escrowMatch, escrowOut string
	var trustLevel, kycStatus string
	err := row.Scan(
		&a.ID, &available, &escrowMatch, &escrowOut,
		&a.BalanceSalt, &a.IntegrityHash, &a.BalanceVersion,
		&a.TrustScore, &trustLevel, &kycStatus, &a.IsFrozen, &a.FrozenReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.TrustLevel = domain.TrustLevel(trustLevel)
	a.KYCStatus = domain.KYCStatus(kycStatus)
	if a.Available, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("parse available: %w", err)
	}
	if a.EscrowMatch, err = decimal.NewFromString(escrowMatch); err != nil {
		return nil, fmt.Errorf("parse escrow_match: %w", err)
	}
	if a.EscrowOut, err = decimal.NewFromString(escrowOut); err != nil {
		return nil, fmt.Errorf("parse escrow_out: %w", err)
	}
	return &a, nil
}

func scanSettlement(row pgx.Row) (*domain.SettlementEntry, error) {
	var e domain.SettlementEntry
	var debit, credit, rake, status string
	err := row.Scan(
		&e.ID, &e.MatchID, &e.LoserID, &e.WinnerID, &e.TreasuryID,
		&debit, &credit, &rake, &status, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.SettlementStatus(status)
	if e.DebitAmount, err = decimal.NewFromString(debit); err != nil {
		return nil, fmt.Errorf("parse debit_amount: %w", err)
	}
	if e.CreditAmount, err = decimal.NewFromString(credit); err != nil {
		return nil, fmt.Errorf("parse credit_amount: %w", err)
	}
	if e.RakeAmount, err = decimal.NewFromString(rake); err != nil {
		return nil, fmt.Errorf("parse rake_amount: %w", err)
	}
	return &e, nil
}
