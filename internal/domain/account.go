package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrustLevel is the categorical view of the trust score.
type TrustLevel string

const (
	TrustGreen  TrustLevel = "green"
	TrustYellow TrustLevel = "yellow"
	TrustRed    TrustLevel = "red"
)

// KYCStatus tracks identity verification progress.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
)

// Account holds a user's token balance split into three sub-balances.
// The integrity hash binds the total balance to the account id and a
// per-account salt; any direct store manipulation without recomputing the
// hash is detectable.
type Account struct {
	ID uuid.UUID `json:"id"`

	Available   decimal.Decimal `json:"available"`
	EscrowMatch decimal.Decimal `json:"escrow_match"`
	EscrowOut   decimal.Decimal `json:"escrow_out"`

	BalanceSalt    string `json:"-"`
	IntegrityHash  string `json:"-"`
	BalanceVersion int64  `json:"balance_version"`

	TrustScore int        `json:"trust_score"`
	TrustLevel TrustLevel `json:"trust_level"`
	KYCStatus  KYCStatus  `json:"kyc_status"`

	IsFrozen     bool   `json:"is_frozen"`
	FrozenReason string `json:"frozen_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Total returns the sum of the three sub-balances.
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.EscrowMatch).Add(a.EscrowOut)
}

// ComputeIntegrityHash derives SHA256(account_id:balance:salt) over the
// canonical 4-digit rendering of the total balance.
func (a *Account) ComputeIntegrityHash() string {
	input := fmt.Sprintf("%s:%s:%s", a.ID, MoneyString(a.Total()), a.BalanceSalt)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether the stored hash matches the recomputed one.
func (a *Account) VerifyIntegrity() bool {
	expected := a.ComputeIntegrityHash()
	return subtle.ConstantTimeCompare([]byte(a.IntegrityHash), []byte(expected)) == 1
}

// Reseal recomputes the integrity hash and bumps the balance version. Must be
// called on every balance mutation.
func (a *Account) Reseal(now time.Time) {
	a.BalanceVersion++
	a.UpdatedAt = now
	a.IntegrityHash = a.ComputeIntegrityHash()
}

// NewBalanceSalt generates the per-account salt for the integrity hash.
func NewBalanceSalt() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("balance salt: %v", err))
	}
	return hex.EncodeToString(b)
}

// NewAccount creates a sealed account with the given opening balance.
func NewAccount(id uuid.UUID, opening decimal.Decimal, now time.Time) *Account {
	a := &Account{
		ID:          id,
		Available:   Quantize(opening),
		EscrowMatch: decimal.Zero,
		EscrowOut:   decimal.Zero,
		BalanceSalt: NewBalanceSalt(),
		TrustScore:  100,
		TrustLevel:  TrustGreen,
		KYCStatus:   KYCPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	a.IntegrityHash = a.ComputeIntegrityHash()
	return a
}
