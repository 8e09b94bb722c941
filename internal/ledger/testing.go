package ledger

import (
	"context"
	"time"

	"github.com/kori-finance/kori/internal/money"
)

// SeedBalance is a test helper that posts a balanced seed transaction
// against the platform bank, so tests can start an account at a known
// balance without bypassing the double-entry invariant. Negative amounts
// seed a debit balance.
func SeedBalance(j *InMemoryJournal, ref AccountRef, amount money.Money) {
	tx := NewTransaction(TxCashInByAgent, amount, time.Now().UTC())
	entries := []Entry{
		NewDebit(tx.ID, PlatformBankAccount(), amount),
		NewCredit(tx.ID, ref, amount),
	}
	if amount.IsNegative() {
		entries = []Entry{
			NewCredit(tx.ID, PlatformBankAccount(), amount.Neg()),
			NewDebit(tx.ID, ref, amount.Neg()),
		}
	}
	if err := j.Append(context.Background(), tx, entries); err != nil {
		panic(err)
	}
}
