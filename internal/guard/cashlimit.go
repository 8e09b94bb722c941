package guard

import (
	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/money"
)

// CheckCashLimit projects an agent's cash-clearing balance after a
// hypothetical posting and rejects if the projection falls strictly below
// -limit. A projection exactly at -limit is allowed. The caller must hold
// the clearing account's lock while reading the current balance and
// deciding, and keep it until the append commits.
func CheckCashLimit(current, change, limit money.Money) error {
	projected := current.Plus(change)
	floor := limit.Neg()
	if projected.IsLessThan(floor) {
		return fault.Conflicting("agent_cash_limit_exceeded", map[string]string{
			"projected": projected.String(),
			"limit":     limit.String(),
		})
	}
	return nil
}
