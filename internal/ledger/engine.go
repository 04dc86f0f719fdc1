package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/domain"
)

// Engine is the single write path for account balances. Every mutation runs
// under the owning account's lock, verifies the integrity hash before
// touching the balance, appends a hash-chained transaction, and reseals the
// account inside one store transaction.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewEngine creates a ledger engine over the given store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// WithClock overrides the engine clock. Test helper.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) lockFor(id uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// lockAccounts acquires the per-account locks in ascending id order so that
// concurrent settlements over overlapping account sets cannot deadlock.
func (e *Engine) lockAccounts(ids ...uuid.UUID) func() {
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, id)
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && lessUUID(ordered[j], ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	locked := make([]*sync.Mutex, 0, len(ordered))
	seen := make(map[uuid.UUID]bool, len(ordered))
	for _, id := range ordered {
		if seen[id] {
			continue
		}
		seen[id] = true
		l := e.lockFor(id)
		l.Lock()
		locked = append(locked, l)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// CreateAccount registers a new sealed account with an opening balance.
func (e *Engine) CreateAccount(ctx context.Context, id uuid.UUID, opening decimal.Decimal) (*domain.Account, error) {
	if opening.IsNegative() {
		return nil, domain.ErrValidation("opening balance must not be negative")
	}
	unlock := e.lockAccounts(id)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.GetAccount(ctx, id); err == nil {
		return nil, domain.ErrConflict("account already exists")
	}
	a := domain.NewAccount(id, opening, e.now())
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.logger.Info("account created", "account_id", id, "opening", domain.MoneyString(a.Available))
	return a, nil
}

// GetAccount returns the current account snapshot without verifying it.
func (e *Engine) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	return tx.GetAccount(ctx, id)
}

// trustLevelFor maps a trust score to its categorical level.
func trustLevelFor(score int) domain.TrustLevel {
	switch {
	case score < 40:
		return domain.TrustRed
	case score < 70:
		return domain.TrustYellow
	default:
		return domain.TrustGreen
	}
}

// AdjustTrust shifts an account's trust score by delta, clamped to 0..100,
// and recomputes the trust level. Trust is not part of the balance hash, so
// no reseal happens here.
func (e *Engine) AdjustTrust(ctx context.Context, id uuid.UUID, delta int, reason string) (int, error) {
	unlock := e.lockAccounts(id)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	a, err := tx.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	a.TrustScore += delta
	if a.TrustScore < 0 {
		a.TrustScore = 0
	}
	if a.TrustScore > 100 {
		a.TrustScore = 100
	}
	a.TrustLevel = trustLevelFor(a.TrustScore)
	a.UpdatedAt = e.now()
	if err := tx.SaveAccount(ctx, a); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	e.logger.Info("trust adjusted", "account_id", id, "delta", delta, "score", a.TrustScore, "reason", reason)
	return a.TrustScore, nil
}

// RecordMatchEvent queues a match lifecycle event on the outbox so the relay
// carries terminal room states to downstream consumers.
func (e *Engine) RecordMatchEvent(ctx context.Context, matchID uuid.UUID, kind domain.EventType, detail map[string]string) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := tx.InsertOutbox(ctx, domain.NewMatchLifecycleEvent(matchID, kind, detail)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transactions returns the account's chain entries, oldest first.
func (e *Engine) Transactions(ctx context.Context, id uuid.UUID) ([]*domain.Transaction, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return tx.ListTransactions(ctx, id)
}

// loadVerified fetches an account, rejects frozen ones and verifies the
// integrity hash. On a mismatch the account is frozen in place and the alert
// event is queued before the violation error is returned.
func (e *Engine) loadVerified(ctx context.Context, tx StoreTx, id uuid.UUID) (*domain.Account, error) {
	a, err := tx.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsFrozen {
		return nil, domain.ErrAccountFrozen(a.ID.String())
	}
	if !a.VerifyIntegrity() {
		a.IsFrozen = true
		a.FrozenReason = "integrity hash mismatch"
		a.UpdatedAt = e.now()
		if err := tx.SaveAccount(ctx, a); err != nil {
			return nil, err
		}
		if err := tx.InsertOutbox(ctx, domain.NewAccountFrozenEvent(a.ID, a.FrozenReason)); err != nil {
			return nil, err
		}
		e.logger.Error("balance integrity violation, account frozen", "account_id", a.ID)
		return nil, errFreezeCommit{inner: domain.ErrIntegrityViolation(a.ID.String(), "stored hash does not match recomputed hash")}
	}
	return a, nil
}

// errFreezeCommit marks an integrity failure whose freeze must still be
// committed even though the surrounding operation is aborted.
type errFreezeCommit struct{ inner error }

func (e errFreezeCommit) Error() string { return e.inner.Error() }
func (e errFreezeCommit) Unwrap() error { return e.inner }

// finish commits the freeze if loadVerified flagged one, otherwise rolls the
// transaction back and surfaces the original error.
func finish(ctx context.Context, tx StoreTx, err error) error {
	if fc, ok := err.(errFreezeCommit); ok {
		if cerr := tx.Commit(ctx); cerr != nil {
			return cerr
		}
		return fc.inner
	}
	tx.Rollback(ctx)
	return err
}

// appendTx seals and appends one chain entry plus its outbox event.
func (e *Engine) appendTx(ctx context.Context, tx StoreTx, a *domain.Account, matchID *uuid.UUID, kind domain.TransactionType, amount, before, after decimal.Decimal, ref string) (*domain.Transaction, error) {
	prev, err := tx.TipHash(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	entry := domain.NewTransaction(a.ID, matchID, kind, amount, before, after, prev, ref, e.now())
	if err := tx.AppendTransaction(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.InsertOutbox(ctx, domain.NewTransactionPostedEvent(entry)); err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit adds amount to the account's available balance.
func (e *Engine) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal, kind domain.TransactionType, ref string) (*domain.Transaction, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	unlock := e.lockAccounts(id)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	a, err := e.loadVerified(ctx, tx, id)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	before := a.Total()
	a.Available = domain.Quantize(a.Available.Add(amount))
	a.Reseal(e.now())
	entry, err := e.appendTx(ctx, tx, a, nil, kind, amount, before, a.Total(), ref)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes amount from the account's available balance, failing when
// available funds do not cover it.
func (e *Engine) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal, kind domain.TransactionType, ref string) (*domain.Transaction, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	unlock := e.lockAccounts(id)
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	a, err := e.loadVerified(ctx, tx, id)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if a.Available.LessThan(amount) {
		return nil, finish(ctx, tx, domain.ErrInsufficientFunds())
	}
	before := a.Total()
	a.Available = domain.Quantize(a.Available.Sub(amount))
	a.Reseal(e.now())
	entry, err := e.appendTx(ctx, tx, a, nil, kind, amount, before, a.Total(), ref)
	if err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, finish(ctx, tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}
