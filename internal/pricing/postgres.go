package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/guard"
	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/money"
)

// Postgres reads the schedule from admin-maintained tables. Every call
// hits the database: the schedule must reflect the admin's latest write
// on the very next operation, so nothing is cached here.
type Postgres struct {
	db *pgxpool.Pool
}

var (
	_ FeePolicy        = (*Postgres)(nil)
	_ CommissionPolicy = (*Postgres)(nil)
	_ PlatformConfig   = (*Postgres)(nil)
)

// NewPostgres builds a database-backed pricing source.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

type scheduleRow struct {
	flat            money.Money
	percent         decimal.Decimal
	commissionShare decimal.Decimal
	minAmount       money.Money
	maxAmount       money.Money
}

func (p *Postgres) schedule(ctx context.Context, txType ledger.TransactionType) (scheduleRow, error) {
	const query = `SELECT flat_amount::text, percent::text, commission_share::text,
        min_amount::text, max_amount::text
        FROM fee_schedule WHERE transaction_type = $1`

	var flat, percent, share, min, max string
	err := p.db.QueryRow(ctx, query, string(txType)).Scan(&flat, &percent, &share, &min, &max)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scheduleRow{}, fault.Missing("fee_schedule_missing", map[string]string{
				"transaction_type": string(txType),
			})
		}
		return scheduleRow{}, err
	}
	return parseScheduleRow(flat, percent, share, min, max)
}

func parseScheduleRow(flat, percent, share, min, max string) (scheduleRow, error) {
	var (
		row scheduleRow
		err error
	)
	if row.flat, err = money.FromString(flat); err != nil {
		return scheduleRow{}, err
	}
	if row.percent, err = decimal.NewFromString(percent); err != nil {
		return scheduleRow{}, fault.Internal("fee_schedule_corrupt", map[string]string{"field": "percent"})
	}
	if row.commissionShare, err = decimal.NewFromString(share); err != nil {
		return scheduleRow{}, fault.Internal("fee_schedule_corrupt", map[string]string{"field": "commission_share"})
	}
	if row.minAmount, err = money.FromString(min); err != nil {
		return scheduleRow{}, err
	}
	if row.maxAmount, err = money.FromString(max); err != nil {
		return scheduleRow{}, err
	}
	return row, nil
}

func (p *Postgres) FeeFor(ctx context.Context, txType ledger.TransactionType, amount money.Money) (money.Money, error) {
	row, err := p.schedule(ctx, txType)
	if err != nil {
		return money.Money{}, err
	}
	variable := money.New(amount.Decimal().Mul(row.percent))
	return row.flat.Plus(variable), nil
}

func (p *Postgres) CommissionFor(ctx context.Context, txType ledger.TransactionType, fee money.Money) (money.Money, error) {
	row, err := p.schedule(ctx, txType)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(fee.Decimal().Mul(row.commissionShare)), nil
}

func (p *Postgres) AmountBounds(ctx context.Context, txType ledger.TransactionType) (guard.AmountBounds, error) {
	row, err := p.schedule(ctx, txType)
	if err != nil {
		return guard.AmountBounds{}, err
	}
	return guard.AmountBounds{Min: row.minAmount, Max: row.maxAmount}, nil
}

func (p *Postgres) AgentCashLimit(ctx context.Context) (money.Money, error) {
	var limit string
	err := p.db.QueryRow(ctx, `SELECT agent_cash_limit::text FROM platform_config WHERE id = 1`).Scan(&limit)
	if err != nil {
		return money.Money{}, platformConfigErr(err)
	}
	return money.FromString(limit)
}

func (p *Postgres) MaxPinAttempts(ctx context.Context) (int, error) {
	var attempts int
	err := p.db.QueryRow(ctx, `SELECT max_pin_attempts FROM platform_config WHERE id = 1`).Scan(&attempts)
	if err != nil {
		return 0, platformConfigErr(err)
	}
	return attempts, nil
}

func (p *Postgres) CardEnrollmentFee(ctx context.Context) (money.Money, error) {
	var fee string
	err := p.db.QueryRow(ctx, `SELECT card_enrollment_fee::text FROM platform_config WHERE id = 1`).Scan(&fee)
	if err != nil {
		return money.Money{}, platformConfigErr(err)
	}
	return money.FromString(fee)
}

func platformConfigErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fault.Missing("platform_config_missing", nil)
	}
	return err
}
