package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/money"
)

func TestStaticFeeCombinesFlatAndPercent(t *testing.T) {
	s := &Static{Rates: map[ledger.TransactionType]Rate{
		ledger.TxCashInByAgent: {
			Flat:            money.FromMinorUnits(50), // 0.50
			Percent:         decimal.RequireFromString("0.015"),
			CommissionShare: decimal.RequireFromString("0.5"),
		},
	}}

	fee, err := s.FeeFor(context.Background(), ledger.TxCashInByAgent, money.FromMinorUnits(10000))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	// 0.50 + 1.5% of 100.00 = 2.00
	if want := money.FromMinorUnits(200); !fee.Equals(want) {
		t.Fatalf("fee = %s, want %s", fee, want)
	}

	commission, err := s.CommissionFor(context.Background(), ledger.TxCashInByAgent, fee)
	if err != nil {
		t.Fatalf("commission: %v", err)
	}
	if want := money.FromMinorUnits(100); !commission.Equals(want) {
		t.Fatalf("commission = %s, want %s", commission, want)
	}
}

func TestStaticMissingScheduleIsNotFound(t *testing.T) {
	s := &Static{}
	_, err := s.FeeFor(context.Background(), ledger.TxPayByCard, money.FromMinorUnits(100))
	if fault.CategoryOf(err) != fault.NotFound {
		t.Fatalf("category = %s, want NOT_FOUND", fault.CategoryOf(err))
	}
	if _, err := s.AmountBounds(context.Background(), ledger.TxPayByCard); fault.CategoryOf(err) != fault.NotFound {
		t.Fatalf("bounds category = %s, want NOT_FOUND", fault.CategoryOf(err))
	}
}
