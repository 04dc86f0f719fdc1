package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kompite/arena/internal/domain"
)

// Store abstracts the durable side of the ledger. Every engine operation runs
// inside one StoreTx so the read-modify-write cycle commits or rolls back as
// a unit.
type Store interface {
	Begin(ctx context.Context) (StoreTx, error)
}

// StoreTx is a single atomic unit of ledger work.
type StoreTx interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	SaveAccount(ctx context.Context, a *domain.Account) error
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
	TipHash(ctx context.Context, accountID uuid.UUID) (string, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error)
	SaveSettlement(ctx context.Context, e *domain.SettlementEntry) error
	GetSettlement(ctx context.Context, id string) (*domain.SettlementEntry, error)
	ListSettlements(ctx context.Context) ([]*domain.SettlementEntry, error)
	InsertOutbox(ctx context.Context, draft domain.OutboxDraft) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MemStore is the in-process Store used by tests and by single-node
// deployments that delegate durability to the repository layer's
// write-behind. Writes are journaled per transaction and applied on commit.
type MemStore struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]*domain.Account
	chains      map[uuid.UUID][]*domain.Transaction
	settlements map[string]*domain.SettlementEntry
	outbox      []domain.OutboxDraft
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts:    make(map[uuid.UUID]*domain.Account),
		chains:      make(map[uuid.UUID][]*domain.Transaction),
		settlements: make(map[string]*domain.SettlementEntry),
	}
}

// Begin locks the store for the lifetime of the returned transaction.
// Ledger concurrency is serialized per account above this layer, so holding
// the store lock across a short journal is not a contention point.
func (s *MemStore) Begin(_ context.Context) (StoreTx, error) {
	s.mu.Lock()
	return &memTx{
		store:       s,
		accounts:    make(map[uuid.UUID]*domain.Account),
		settlements: make(map[string]*domain.SettlementEntry),
	}, nil
}

// Outbox returns a copy of the committed outbox rows, oldest first.
func (s *MemStore) Outbox() []domain.OutboxDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboxDraft, len(s.outbox))
	copy(out, s.outbox)
	return out
}

type memTx struct {
	store       *MemStore
	done        bool
	accounts    map[uuid.UUID]*domain.Account
	appended    []*domain.Transaction
	settlements map[string]*domain.SettlementEntry
	outbox      []domain.OutboxDraft
}

func (t *memTx) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	if a, ok := t.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	a, ok := t.store.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound("account", id.String())
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) ListAccounts(_ context.Context) ([]*domain.Account, error) {
	seen := make(map[uuid.UUID]bool)
	out := make([]*domain.Account, 0, len(t.store.accounts))
	for id, a := range t.accounts {
		cp := *a
		out = append(out, &cp)
		seen[id] = true
	}
	for id, a := range t.store.accounts {
		if seen[id] {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return lessUUID(out[i].ID, out[j].ID) })
	return out, nil
}

func (t *memTx) SaveAccount(_ context.Context, a *domain.Account) error {
	cp := *a
	t.accounts[a.ID] = &cp
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, tx *domain.Transaction) error {
	cp := *tx
	t.appended = append(t.appended, &cp)
	return nil
}

func (t *memTx) TipHash(_ context.Context, accountID uuid.UUID) (string, error) {
	for i := len(t.appended) - 1; i >= 0; i-- {
		if t.appended[i].AccountID == accountID {
			return t.appended[i].Hash, nil
		}
	}
	chain := t.store.chains[accountID]
	if len(chain) == 0 {
		return domain.GenesisHash, nil
	}
	return chain[len(chain)-1].Hash, nil
}

func (t *memTx) ListTransactions(_ context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	chain := t.store.chains[accountID]
	out := make([]*domain.Transaction, 0, len(chain))
	for _, tx := range chain {
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (t *memTx) SaveSettlement(_ context.Context, e *domain.SettlementEntry) error {
	cp := *e
	t.settlements[e.ID] = &cp
	return nil
}

func (t *memTx) GetSettlement(_ context.Context, id string) (*domain.SettlementEntry, error) {
	if e, ok := t.settlements[id]; ok {
		cp := *e
		return &cp, nil
	}
	e, ok := t.store.settlements[id]
	if !ok {
		return nil, domain.ErrNotFound("settlement entry", id)
	}
	cp := *e
	return &cp, nil
}

func (t *memTx) ListSettlements(_ context.Context) ([]*domain.SettlementEntry, error) {
	out := make([]*domain.SettlementEntry, 0, len(t.store.settlements))
	for _, e := range t.store.settlements {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertOutbox(_ context.Context, draft domain.OutboxDraft) error {
	t.outbox = append(t.outbox, draft)
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return domain.ErrConflict("store transaction already finished")
	}
	t.done = true
	for id, a := range t.accounts {
		t.store.accounts[id] = a
	}
	for _, tx := range t.appended {
		t.store.chains[tx.AccountID] = append(t.store.chains[tx.AccountID], tx)
	}
	for id, e := range t.settlements {
		t.store.settlements[id] = e
	}
	t.store.outbox = append(t.store.outbox, t.outbox...)
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}
