package account

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kori-finance/kori/internal/ledger"
	"github.com/kori-finance/kori/internal/status"
)

// PostgresPort persists account profiles in PostgreSQL.
type PostgresPort struct {
	db *pgxpool.Pool
}

// NewPostgresPort builds a Postgres-backed profile store.
func NewPostgresPort(db *pgxpool.Pool) *PostgresPort {
	return &PostgresPort{db: db}
}

// FindByAccount loads the profile, returning (nil, nil) when absent.
func (p *PostgresPort) FindByAccount(ctx context.Context, account ledger.AccountRef) (*Profile, error) {
	const query = `SELECT account_type, owner_ref, status, created_at
        FROM account_profiles WHERE account_type = $1 AND owner_ref = $2`

	var (
		profile Profile
		accType string
		st      string
	)
	err := p.db.QueryRow(ctx, query, string(account.Type), account.OwnerRef).
		Scan(&accType, &profile.Account.OwnerRef, &st, &profile.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	profile.Account.Type = ledger.AccountType(accType)
	profile.Status = status.Status(st)
	return &profile, nil
}

// Save upserts the profile keyed by its account ref.
func (p *PostgresPort) Save(ctx context.Context, profile Profile) error {
	_, err := p.db.Exec(ctx, `INSERT INTO account_profiles (account_type, owner_ref, status, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (account_type, owner_ref) DO UPDATE SET status = EXCLUDED.status`,
		string(profile.Account.Type), profile.Account.OwnerRef, string(profile.Status), profile.CreatedAt)
	return err
}
