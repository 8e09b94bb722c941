package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/guard"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/money"
)

// Rate prices one transaction type as a flat component plus a
// percentage of the amount, with CommissionShare of the resulting fee
// going to the acquiring party.
type Rate struct {
	Flat            money.Money
	Percent         decimal.Decimal // e.g. 0.015 for 1.5%
	CommissionShare decimal.Decimal // fraction of the fee, 0..1
}

// Static serves a fixed schedule from memory. Used by tests and as a
// deployment fallback when no schedule row exists yet.
type Static struct {
	Rates         map[ledger.TransactionType]Rate
	Bounds        map[ledger.TransactionType]guard.AmountBounds
	CashLimit     money.Money
	PinAttempts   int
	EnrollmentFee money.Money
}

var (
	_ FeePolicy        = (*Static)(nil)
	_ CommissionPolicy = (*Static)(nil)
	_ PlatformConfig   = (*Static)(nil)
)

func (s *Static) rate(txType ledger.TransactionType) (Rate, error) {
	r, ok := s.Rates[txType]
	if !ok {
		return Rate{}, fault.Missing("fee_schedule_missing", map[string]string{
			"transaction_type": string(txType),
		})
	}
	return r, nil
}

func (s *Static) FeeFor(_ context.Context, txType ledger.TransactionType, amount money.Money) (money.Money, error) {
	r, err := s.rate(txType)
	if err != nil {
		return money.Money{}, err
	}
	variable := money.New(amount.Decimal().Mul(r.Percent))
	return r.Flat.Plus(variable), nil
}

func (s *Static) CommissionFor(_ context.Context, txType ledger.TransactionType, fee money.Money) (money.Money, error) {
	r, err := s.rate(txType)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(fee.Decimal().Mul(r.CommissionShare)), nil
}

func (s *Static) AgentCashLimit(_ context.Context) (money.Money, error) {
	return s.CashLimit, nil
}

func (s *Static) AmountBounds(_ context.Context, txType ledger.TransactionType) (guard.AmountBounds, error) {
	b, ok := s.Bounds[txType]
	if !ok {
		return guard.AmountBounds{}, fault.Missing("amount_bounds_missing", map[string]string{
			"transaction_type": string(txType),
		})
	}
	return b, nil
}

func (s *Static) MaxPinAttempts(_ context.Context) (int, error) {
	return s.PinAttempts, nil
}

func (s *Static) CardEnrollmentFee(_ context.Context) (money.Money, error) {
	return s.EnrollmentFee, nil
}
