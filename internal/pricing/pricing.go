// Package pricing exposes the admin-maintained fee schedule and
// platform limits. Implementations are queried fresh on every
// operation so an admin change takes effect on the next transaction
// without a restart.
package pricing

import (
	"context"

	"github.com/kori-finance/kori/internal/guard"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/money"
)

// FeePolicy prices an operation. The fee is charged on top of or
// carved out of the amount depending on the operation's entry plan.
type FeePolicy interface {
	FeeFor(ctx context.Context, txType ledger.TransactionType, amount money.Money) (money.Money, error)
}

// CommissionPolicy derives the acquiring party's cut from a fee. A
// commission only ever exists relative to the fee it is carved from.
type CommissionPolicy interface {
	CommissionFor(ctx context.Context, txType ledger.TransactionType, fee money.Money) (money.Money, error)
}

// PlatformConfig holds the global knobs admins tune.
type PlatformConfig interface {
	AgentCashLimit(ctx context.Context) (money.Money, error)
	AmountBounds(ctx context.Context, txType ledger.TransactionType) (guard.AmountBounds, error)
	MaxPinAttempts(ctx context.Context) (int, error)
	CardEnrollmentFee(ctx context.Context) (money.Money, error)
}
