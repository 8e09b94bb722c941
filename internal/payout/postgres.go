package payout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kori-finance/kori/internal/money"
)

// PostgresRepository persists payouts in PostgreSQL.
//
// The service checks ExistsRequestedForAgent under the wallet lock, and
// the schema enforces the same rule against out-of-band writers with a
// partial unique index:
//
//	CREATE UNIQUE INDEX payouts_one_requested_per_agent
//	    ON payouts (agent_ref) WHERE status = 'REQUESTED';
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const payoutColumns = `id, agent_ref, amount::text, status, transaction_id,
    settlement_transaction_id, created_at, completed_at, failed_at, failure_reason`

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Payout, error) {
	row := r.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)

	var (
		p      Payout
		amount string
		status string
		reason *string
	)
	err := row.Scan(&p.ID, &p.AgentRef, &amount, &status, &p.TransactionID,
		&p.SettlementTransactionID, &p.CreatedAt, &p.CompletedAt, &p.FailedAt, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payout{}, ErrPayoutNotFound
		}
		return Payout{}, err
	}
	if p.Amount, err = money.FromString(amount); err != nil {
		return Payout{}, err
	}
	p.Status = Status(status)
	if reason != nil {
		p.FailureReason = *reason
	}
	return p, nil
}

func (r *PostgresRepository) Save(ctx context.Context, p Payout) error {
	var reason *string
	if p.FailureReason != "" {
		reason = &p.FailureReason
	}
	_, err := r.db.Exec(ctx, `INSERT INTO payouts
        (id, agent_ref, amount, status, transaction_id, settlement_transaction_id,
         created_at, completed_at, failed_at, failure_reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            settlement_transaction_id = EXCLUDED.settlement_transaction_id,
            completed_at = EXCLUDED.completed_at,
            failed_at = EXCLUDED.failed_at,
            failure_reason = EXCLUDED.failure_reason`,
		p.ID, p.AgentRef, p.Amount.String(), string(p.Status), p.TransactionID,
		p.SettlementTransactionID, p.CreatedAt, p.CompletedAt, p.FailedAt, reason)
	return err
}

func (r *PostgresRepository) ExistsRequestedForAgent(ctx context.Context, agentRef string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payouts WHERE agent_ref = $1 AND status = 'REQUESTED')`,
		agentRef).Scan(&exists)
	return exists, err
}

// PostgresRefundRepository persists client refunds in PostgreSQL.
//
// As with payouts, a partial unique index backs the one-open-refund
// rule at the schema level:
//
//	CREATE UNIQUE INDEX client_refunds_one_requested_per_client
//	    ON client_refunds (client_ref) WHERE status = 'REQUESTED';
type PostgresRefundRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRefundRepository(db *pgxpool.Pool) *PostgresRefundRepository {
	return &PostgresRefundRepository{db: db}
}

const refundColumns = `id, client_ref, amount::text, status, transaction_id,
    created_at, completed_at, failed_at, failure_reason`

func (r *PostgresRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (ClientRefund, error) {
	row := r.db.QueryRow(ctx, `SELECT `+refundColumns+` FROM client_refunds WHERE id = $1`, id)

	var (
		refund ClientRefund
		amount string
		status string
		reason *string
	)
	err := row.Scan(&refund.ID, &refund.ClientRef, &amount, &status, &refund.TransactionID,
		&refund.CreatedAt, &refund.CompletedAt, &refund.FailedAt, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientRefund{}, ErrRefundNotFound
		}
		return ClientRefund{}, err
	}
	if refund.Amount, err = money.FromString(amount); err != nil {
		return ClientRefund{}, err
	}
	refund.Status = Status(status)
	if reason != nil {
		refund.FailureReason = *reason
	}
	return refund, nil
}

func (r *PostgresRefundRepository) Save(ctx context.Context, refund ClientRefund) error {
	var reason *string
	if refund.FailureReason != "" {
		reason = &refund.FailureReason
	}
	_, err := r.db.Exec(ctx, `INSERT INTO client_refunds
        (id, client_ref, amount, status, transaction_id, created_at, completed_at, failed_at, failure_reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            completed_at = EXCLUDED.completed_at,
            failed_at = EXCLUDED.failed_at,
            failure_reason = EXCLUDED.failure_reason`,
		refund.ID, refund.ClientRef, refund.Amount.String(), string(refund.Status), refund.TransactionID,
		refund.CreatedAt, refund.CompletedAt, refund.FailedAt, reason)
	return err
}

func (r *PostgresRefundRepository) ExistsRequestedForClient(ctx context.Context, clientRef string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM client_refunds WHERE client_ref = $1 AND status = 'REQUESTED')`,
		clientRef).Scan(&exists)
	return exists, err
}
