package payments

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// MemoryStore implements Store in memory for tests and local development.
// A single mutex serializes transactions, which is stricter than row locking.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]entitlement.Account
	results  map[uuid.UUID]entitlement.Result
	events   map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]entitlement.Account),
		results:  make(map[uuid.UUID]entitlement.Result),
		events:   make(map[string]struct{}),
	}
}

// CreateAccount inserts an account. Account creation belongs to the signup
// flow; this exists for tests and seeding.
func (ms *MemoryStore) CreateAccount(_ context.Context, a entitlement.Account) error {
	if a.Tier == "" {
		a.Tier = entitlement.TierNone
	}
	if err := a.CheckInvariants(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.accounts[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.ID)
	}
	ms.accounts[a.ID] = a.Clone()
	return nil
}

// PutResult stores the generated result of an account.
func (ms *MemoryStore) PutResult(_ context.Context, r entitlement.Result) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.accounts[r.AccountID]; !exists {
		return ErrAccountNotFound
	}
	ms.results[r.AccountID] = r
	return nil
}

// GetResult returns the stored result of an account.
func (ms *MemoryStore) GetResult(_ context.Context, id uuid.UUID) (entitlement.Result, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	r, ok := ms.results[id]
	return r, ok
}

// Snapshot returns copies of every account, ordered by id.
func (ms *MemoryStore) Snapshot() []entitlement.Account {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]entitlement.Account, 0, len(ms.accounts))
	for _, a := range ms.accounts {
		out = append(out, a.Clone())
	}
	slices.SortFunc(out, func(a, b entitlement.Account) int {
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Get implements Store.
func (ms *MemoryStore) Get(_ context.Context, id uuid.UUID) (entitlement.Account, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	a, ok := ms.accounts[id]
	if !ok {
		return entitlement.Account{}, ErrAccountNotFound
	}
	return a.Clone(), nil
}

// Update implements Store.
func (ms *MemoryStore) Update(ctx context.Context, id uuid.UUID, fn func(Tx) error) (entitlement.Account, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.update(ctx, id, fn)
}

// UpdateBySubscription implements Store.
func (ms *MemoryStore) UpdateBySubscription(ctx context.Context, ref string, fn func(Tx) error) (entitlement.Account, error) {
	if ref == "" {
		return entitlement.Account{}, ErrAccountNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for id, a := range ms.accounts {
		if a.SubscriptionRef == ref {
			return ms.update(ctx, id, fn)
		}
	}
	return entitlement.Account{}, ErrAccountNotFound
}

// update runs fn against copies and swaps them in only on success. Caller holds mu.
func (ms *MemoryStore) update(ctx context.Context, id uuid.UUID, fn func(Tx) error) (entitlement.Account, error) {
	if err := ctx.Err(); err != nil {
		return entitlement.Account{}, err
	}

	current, ok := ms.accounts[id]
	if !ok {
		return entitlement.Account{}, ErrAccountNotFound
	}

	tx := &memoryTx{
		store:   ms,
		account: current.Clone(),
		claimed: make(map[string]struct{}),
	}
	if r, ok := ms.results[id]; ok {
		tx.result = &r
	}

	if err := fn(tx); err != nil {
		return entitlement.Account{}, err
	}
	if err := tx.account.CheckInvariants(); err != nil {
		return entitlement.Account{}, err
	}

	ms.accounts[id] = tx.account.Clone()
	if tx.result != nil {
		ms.results[id] = *tx.result
	}
	for key := range tx.claimed {
		ms.events[key] = struct{}{}
	}
	return tx.account.Clone(), nil
}

// ListExpired implements Store.
func (ms *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var ids []uuid.UUID
	for id, a := range ms.accounts {
		if expired(a, now) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids, nil
}

// Summary implements Store.
func (ms *MemoryStore) Summary(_ context.Context, now time.Time) (Summary, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var s Summary
	for _, a := range ms.accounts {
		if a.HasSubscription() {
			s.Add(a, now)
		}
	}
	return s, nil
}

type memoryTx struct {
	store   *MemoryStore
	account entitlement.Account
	result  *entitlement.Result
	claimed map[string]struct{}
}

func (tx *memoryTx) Account() *entitlement.Account { return &tx.account }

func (tx *memoryTx) Result() *entitlement.Result { return tx.result }

func (tx *memoryTx) ClaimEvent(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("event key is required")
	}
	if _, seen := tx.store.events[key]; seen {
		return false, nil
	}
	if _, seen := tx.claimed[key]; seen {
		return false, nil
	}
	tx.claimed[key] = struct{}{}
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
