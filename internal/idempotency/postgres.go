package idempotency

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps idempotency records in the same database as the
// ledger, letting completion commit in the same storage transaction
// boundary as the posting when a command runs against Postgres.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed idempotency store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// ClaimOrLoad inserts the claim row or classifies the existing one. The
// INSERT ... ON CONFLICT DO NOTHING is the atomic operation concurrent
// callers race on.
func (s *PostgresStore) ClaimOrLoad(ctx context.Context, key, requestHash string) (Claim, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, request_hash, completed, updated_at)
        VALUES ($1, $2, FALSE, NOW())
        ON CONFLICT (key) DO NOTHING`, key, requestHash)
	if err != nil {
		return Claim{}, err
	}
	if tag.RowsAffected() == 1 {
		return Claim{State: StateClaimed}, nil
	}

	var (
		storedHash string
		completed  bool
		result     []byte
	)
	err = s.db.QueryRow(ctx, `SELECT request_hash, completed, result
        FROM idempotency_keys WHERE key = $1`, key).Scan(&storedHash, &completed, &result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row deleted between insert and select: a concurrent Fail
			// released the claim. Tell the caller to retry.
			return Claim{State: StateInProgress}, nil
		}
		return Claim{}, err
	}

	if storedHash != requestHash {
		return Claim{State: StateConflict}, nil
	}
	if completed {
		return Claim{State: StateCompleted, Result: result}, nil
	}
	return Claim{State: StateInProgress}, nil
}

// Complete stores the result under the claimed key.
func (s *PostgresStore) Complete(ctx context.Context, key, requestHash string, result []byte) error {
	_, err := s.db.Exec(ctx, `UPDATE idempotency_keys
        SET completed = TRUE, result = $3, updated_at = NOW()
        WHERE key = $1 AND request_hash = $2`, key, requestHash, result)
	return err
}

// Fail releases an in-flight claim; completed results are never removed.
func (s *PostgresStore) Fail(ctx context.Context, key, requestHash string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys
        WHERE key = $1 AND request_hash = $2 AND completed = FALSE`, key, requestHash)
	return err
}
