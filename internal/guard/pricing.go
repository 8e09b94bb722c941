package guard

import (
	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/money"
)

// PlatformRevenue derives the platform's net take as fee minus
// commission. This is the only valid way to compute it: a commission is
// always carved out of the fee it belongs to, never computed on its own.
// A commission equal to the fee is allowed and yields zero revenue.
func PlatformRevenue(fee, commission money.Money) (money.Money, error) {
	if fee.IsNegative() {
		return money.Money{}, fault.Invalid("fee_negative", map[string]string{
			"fee": fee.String(),
		})
	}
	if commission.IsNegative() {
		return money.Money{}, fault.Invalid("commission_negative", map[string]string{
			"commission": commission.String(),
		})
	}
	if commission.IsGreaterThan(fee) {
		return money.Money{}, fault.Invalid("commission_exceeds_fee", map[string]string{
			"fee":        fee.String(),
			"commission": commission.String(),
		})
	}
	return fee.Minus(commission), nil
}
