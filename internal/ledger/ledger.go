// Package ledger defines the append-only double-entry journal: account
// addressing, entries, transaction headers and the ports adapters must
// satisfy. The single invariant everything else leans on is that the
// entries of one transaction sum to zero.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/money"
)

// AccountType partitions the ledger address space.
type AccountType string

const (
	AccountClient              AccountType = "CLIENT"
	AccountMerchant            AccountType = "MERCHANT"
	AccountAgentWallet         AccountType = "AGENT_WALLET"
	AccountAgentCashClearing   AccountType = "AGENT_CASH_CLEARING"
	AccountPlatformFeeRevenue  AccountType = "PLATFORM_FEE_REVENUE"
	AccountPlatformClearing    AccountType = "PLATFORM_CLEARING"
	AccountPlatformRefundClear AccountType = "PLATFORM_CLIENT_REFUND_CLEARING"
	AccountPlatformBank        AccountType = "PLATFORM_BANK"
)

// SystemOwnerRef is the owner reference carried by platform accounts.
const SystemOwnerRef = "SYSTEM"

// AccountRef addresses one ledger account. It is immutable and
// comparable, serving both as lock scope and as map key.
type AccountRef struct {
	Type     AccountType
	OwnerRef string
}

func (r AccountRef) String() string {
	return string(r.Type) + ":" + r.OwnerRef
}

// IsSystem reports whether the account belongs to the platform.
func (r AccountRef) IsSystem() bool {
	return r.OwnerRef == SystemOwnerRef
}

func ClientAccount(ownerRef string) AccountRef {
	return AccountRef{Type: AccountClient, OwnerRef: ownerRef}
}

func MerchantAccount(ownerRef string) AccountRef {
	return AccountRef{Type: AccountMerchant, OwnerRef: ownerRef}
}

func AgentWalletAccount(ownerRef string) AccountRef {
	return AccountRef{Type: AccountAgentWallet, OwnerRef: ownerRef}
}

func AgentCashClearingAccount(ownerRef string) AccountRef {
	return AccountRef{Type: AccountAgentCashClearing, OwnerRef: ownerRef}
}

func PlatformFeeRevenueAccount() AccountRef {
	return AccountRef{Type: AccountPlatformFeeRevenue, OwnerRef: SystemOwnerRef}
}

func PlatformClearingAccount() AccountRef {
	return AccountRef{Type: AccountPlatformClearing, OwnerRef: SystemOwnerRef}
}

func PlatformClientRefundClearingAccount() AccountRef {
	return AccountRef{Type: AccountPlatformRefundClear, OwnerRef: SystemOwnerRef}
}

func PlatformBankAccount() AccountRef {
	return AccountRef{Type: AccountPlatformBank, OwnerRef: SystemOwnerRef}
}

// EntryType marks a posting as a credit or a debit.
type EntryType string

const (
	Credit EntryType = "CREDIT"
	Debit  EntryType = "DEBIT"
)

// Entry is one immutable posting against one account. Entries exist only
// through Append; there is no update or delete path.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Account       AccountRef
	Type          EntryType
	Amount        money.Money
}

// NewCredit builds a credit posting for the given transaction.
func NewCredit(txID uuid.UUID, account AccountRef, amount money.Money) Entry {
	return Entry{ID: uuid.New(), TransactionID: txID, Account: account, Type: Credit, Amount: amount}
}

// NewDebit builds a debit posting for the given transaction.
func NewDebit(txID uuid.UUID, account AccountRef, amount money.Money) Entry {
	return Entry{ID: uuid.New(), TransactionID: txID, Account: account, Type: Debit, Amount: amount}
}

// Signed returns the entry amount with credits positive and debits
// negative. An account balance is the sum of its signed entries.
func (e Entry) Signed() money.Money {
	if e.Type == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// TransactionType identifies the business operation behind a posting.
type TransactionType string

const (
	TxEnrollCard       TransactionType = "ENROLL_CARD"
	TxPayByCard        TransactionType = "PAY_BY_CARD"
	TxMerchantWithdraw TransactionType = "MERCHANT_WITHDRAW_AT_AGENT"
	TxAgentPayout      TransactionType = "AGENT_PAYOUT"
	TxCashInByAgent    TransactionType = "CASH_IN_BY_AGENT"
	TxClientRefund     TransactionType = "CLIENT_REFUND"
	TxReversal         TransactionType = "REVERSAL"
)

// Transaction is the header shared by one operation's entries. A REVERSAL
// additionally carries the transaction it undoes.
type Transaction struct {
	ID                    uuid.UUID
	Type                  TransactionType
	Amount                money.Money
	CreatedAt             time.Time
	OriginalTransactionID *uuid.UUID
}

// NewTransaction builds a transaction header.
func NewTransaction(txType TransactionType, amount money.Money, now time.Time) Transaction {
	return Transaction{ID: uuid.New(), Type: txType, Amount: amount, CreatedAt: now}
}

// NewReversal builds the header for a reversal of original.
func NewReversal(original Transaction, now time.Time) Transaction {
	origID := original.ID
	return Transaction{
		ID:                    uuid.New(),
		Type:                  TxReversal,
		Amount:                original.Amount,
		CreatedAt:             now,
		OriginalTransactionID: &origID,
	}
}

// Balanced reports whether the entries sum to zero, credits minus debits.
func Balanced(entries []Entry) bool {
	sum := money.Zero()
	for _, e := range entries {
		sum = sum.Plus(e.Signed())
	}
	return sum.IsZero()
}

// Invert mirrors entries with CREDIT and DEBIT swapped, re-homed under
// reversalID. Posting them restores every touched account to its
// pre-transaction balance.
func Invert(entries []Entry, reversalID uuid.UUID) []Entry {
	inverted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type == Credit {
			inverted = append(inverted, NewDebit(reversalID, e.Account, e.Amount))
		} else {
			inverted = append(inverted, NewCredit(reversalID, e.Account, e.Amount))
		}
	}
	return inverted
}

// ErrUnbalanced rejects an append whose entries do not sum to zero.
var ErrUnbalanced = fault.Internal("ledger_entries_unbalanced", nil)

// ErrTransactionNotFound reports a missing transaction header.
var ErrTransactionNotFound = fault.Missing("transaction_not_found", nil)

// ErrDuplicateTransaction rejects re-appending an existing transaction id.
var ErrDuplicateTransaction = fault.Conflicting("transaction_duplicate", nil)

// ErrAlreadyReversed rejects a second reversal of the same transaction.
var ErrAlreadyReversed = fault.Conflicting("transaction_already_reversed", nil)

// AppendPort commits one transaction header plus its entries atomically.
// Implementations must reject unbalanced entry sets with ErrUnbalanced.
type AppendPort interface {
	Append(ctx context.Context, tx Transaction, entries []Entry) error
}

// QueryPort is the read side of the journal. FindInconsistentTransactions
// exists for an external reconciliation job and is never consulted on the
// write path.
type QueryPort interface {
	BalanceOf(ctx context.Context, ref AccountRef) (money.Money, error)
	FindTransaction(ctx context.Context, txID uuid.UUID) (Transaction, error)
	EntriesForTransaction(ctx context.Context, txID uuid.UUID) ([]Entry, error)
	FindReversalOf(ctx context.Context, txID uuid.UUID) (*Transaction, error)
	FindInconsistentTransactions(ctx context.Context) ([]uuid.UUID, error)
}

// Unlock releases a lock acquired through LockPort.
type Unlock func()

// LockPort grants a scope-exclusive advisory lock on one account. The
// lock must be held across any check-then-append sequence so two
// concurrent commands cannot both pass a balance check before either
// posts. Locking is per account, so unrelated accounts proceed in
// parallel.
type LockPort interface {
	Lock(ctx context.Context, ref AccountRef) (Unlock, error)
}

// LockAll acquires the locks for every distinct ref in a deterministic
// order so two commands touching the same accounts can never deadlock.
// On failure the locks already held are released before returning, in
// reverse acquisition order.
func LockAll(ctx context.Context, locker LockPort, refs ...AccountRef) (Unlock, error) {
	distinct := make([]AccountRef, 0, len(refs))
	seen := make(map[AccountRef]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		distinct = append(distinct, ref)
	}
	sort.Slice(distinct, func(i, j int) bool {
		return distinct[i].String() < distinct[j].String()
	})

	unlocks := make([]Unlock, 0, len(distinct))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, ref := range distinct {
		unlock, err := locker.Lock(ctx, ref)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
