package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates all ledger transaction kinds.
type TransactionType string

const (
	TxDeposit       TransactionType = "deposit"
	TxWithdrawal    TransactionType = "withdrawal"
	TxEscrowLock    TransactionType = "escrow_lock"
	TxEscrowRelease TransactionType = "escrow_release"
	TxPrizeCredit   TransactionType = "prize_credit"
	TxSystemFee     TransactionType = "system_fee"
	TxRollback      TransactionType = "rollback"
	TxAdjustment    TransactionType = "adjustment"
)

// GenesisHash anchors the first transaction of each account's chain.
const GenesisHash = "GENESIS"

// Transaction is one append-only ledger entry. Entries of an account form a
// hash chain: each one's PrevHash equals the previous entry's Hash.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	MatchID   *uuid.UUID      `json:"match_id,omitempty"`
	Type      TransactionType `json:"type"`

	// Amount is always non-negative; the type determines direction.
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`

	Hash     string `json:"transaction_hash"`
	PrevHash string `json:"previous_tx_hash"`

	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ComputeTransactionHash derives SHA256(prev:amount:created_at:account_id),
// linking each transaction to its predecessor.
func ComputeTransactionHash(prev string, amount decimal.Decimal, createdAt time.Time, accountID uuid.UUID) string {
	if prev == "" {
		prev = GenesisHash
	}
	input := fmt.Sprintf("%s:%s:%s:%s", prev, MoneyString(amount), createdAt.UTC().Format(time.RFC3339Nano), accountID)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NewTransaction builds a sealed chain entry following prev.
func NewTransaction(accountID uuid.UUID, matchID *uuid.UUID, kind TransactionType, amount, before, after decimal.Decimal, prev, ref string, now time.Time) *Transaction {
	tx := &Transaction{
		ID:            uuid.New(),
		AccountID:     accountID,
		MatchID:       matchID,
		Type:          kind,
		Amount:        Quantize(amount),
		BalanceBefore: Quantize(before),
		BalanceAfter:  Quantize(after),
		PrevHash:      prev,
		Reference:     ref,
		CreatedAt:     now,
	}
	if tx.PrevHash == "" {
		tx.PrevHash = GenesisHash
	}
	tx.Hash = ComputeTransactionHash(tx.PrevHash, tx.Amount, tx.CreatedAt, tx.AccountID)
	return tx
}
