package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/money"
)

// InMemoryJournal is a concurrency-safe journal plus lock port backed by
// maps. It exists for unit tests and local development.
type InMemoryJournal struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]Transaction
	entries      map[uuid.UUID][]Entry
	reversals    map[uuid.UUID]uuid.UUID

	lockMu sync.Mutex
	locks  map[AccountRef]*sync.Mutex
}

// NewInMemoryJournal creates an empty in-memory journal.
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{
		transactions: make(map[uuid.UUID]Transaction),
		entries:      make(map[uuid.UUID][]Entry),
		reversals:    make(map[uuid.UUID]uuid.UUID),
		locks:        make(map[AccountRef]*sync.Mutex),
	}
}

// Append stores the header and entries all-or-nothing.
func (j *InMemoryJournal) Append(_ context.Context, tx Transaction, entries []Entry) error {
	if !Balanced(entries) {
		return ErrUnbalanced
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.transactions[tx.ID]; exists {
		return ErrDuplicateTransaction
	}
	if tx.OriginalTransactionID != nil {
		if _, exists := j.reversals[*tx.OriginalTransactionID]; exists {
			return ErrAlreadyReversed
		}
	}

	j.transactions[tx.ID] = tx
	j.entries[tx.ID] = append([]Entry(nil), entries...)
	if tx.OriginalTransactionID != nil {
		j.reversals[*tx.OriginalTransactionID] = tx.ID
	}
	return nil
}

// BalanceOf sums signed entries for the account.
func (j *InMemoryJournal) BalanceOf(_ context.Context, ref AccountRef) (money.Money, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	balance := money.Zero()
	for _, entries := range j.entries {
		for _, e := range entries {
			if e.Account == ref {
				balance = balance.Plus(e.Signed())
			}
		}
	}
	return balance, nil
}

// FindTransaction loads one transaction header.
func (j *InMemoryJournal) FindTransaction(_ context.Context, txID uuid.UUID) (Transaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	tx, ok := j.transactions[txID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

// EntriesForTransaction returns the entries posted under txID.
func (j *InMemoryJournal) EntriesForTransaction(_ context.Context, txID uuid.UUID) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entries, ok := j.entries[txID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return append([]Entry(nil), entries...), nil
}

// FindReversalOf returns the reversal of txID, or nil when none exists.
func (j *InMemoryJournal) FindReversalOf(_ context.Context, txID uuid.UUID) (*Transaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	revID, ok := j.reversals[txID]
	if !ok {
		return nil, nil
	}
	rev := j.transactions[revID]
	return &rev, nil
}

// FindInconsistentTransactions returns ids of transactions whose entries
// do not sum to zero. The in-memory append rejects those up front, so a
// non-empty result means the store was tampered with by a test.
func (j *InMemoryJournal) FindInconsistentTransactions(_ context.Context) ([]uuid.UUID, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var ids []uuid.UUID
	for txID, entries := range j.entries {
		if !Balanced(entries) {
			ids = append(ids, txID)
		}
	}
	return ids, nil
}

// Lock grants the per-account mutex, creating it on first use.
func (j *InMemoryJournal) Lock(_ context.Context, ref AccountRef) (Unlock, error) {
	j.lockMu.Lock()
	m, ok := j.locks[ref]
	if !ok {
		m = &sync.Mutex{}
		j.locks[ref] = m
	}
	j.lockMu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
