package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kori-finance/kori/internal/money"
)

const pgUniqueViolation = "23505"

// PostgresJournal persists the journal in PostgreSQL. The append path
// commits header plus entries in one database transaction; balances are
// derived as signed sums, never stored.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal constructs a Postgres-backed journal.
func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// Append writes the transaction header and its entries atomically.
func (j *PostgresJournal) Append(ctx context.Context, tx Transaction, entries []Entry) error {
	if !Balanced(entries) {
		return ErrUnbalanced
	}

	dbtx, err := j.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer dbtx.Rollback(ctx) // nolint:errcheck

	if _, err := dbtx.Exec(ctx, `INSERT INTO ledger_transactions (id, tx_type, amount, created_at, original_transaction_id)
        VALUES ($1, $2, $3, $4, $5)`, tx.ID, string(tx.Type), tx.Amount.String(), tx.CreatedAt, tx.OriginalTransactionID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if tx.OriginalTransactionID != nil && pgErr.ConstraintName == "ledger_transactions_original_transaction_id_key" {
				return ErrAlreadyReversed
			}
			return ErrDuplicateTransaction
		}
		return err
	}

	for _, e := range entries {
		if _, err := dbtx.Exec(ctx, `INSERT INTO ledger_entries (id, transaction_id, account_type, owner_ref, entry_type, amount)
            VALUES ($1, $2, $3, $4, $5, $6)`, e.ID, e.TransactionID, string(e.Account.Type), e.Account.OwnerRef, string(e.Type), e.Amount.String()); err != nil {
			return err
		}
	}

	return dbtx.Commit(ctx)
}

// BalanceOf derives the signed sum for the account.
func (j *PostgresJournal) BalanceOf(ctx context.Context, ref AccountRef) (money.Money, error) {
	const query = `
        SELECT COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE -amount END), 0)::text
        FROM ledger_entries
        WHERE account_type = $1 AND owner_ref = $2`

	var raw string
	if err := j.db.QueryRow(ctx, query, string(ref.Type), ref.OwnerRef).Scan(&raw); err != nil {
		return money.Money{}, err
	}
	return money.FromString(raw)
}

// FindTransaction loads one transaction header.
func (j *PostgresJournal) FindTransaction(ctx context.Context, txID uuid.UUID) (Transaction, error) {
	const query = `SELECT id, tx_type, amount::text, created_at, original_transaction_id
        FROM ledger_transactions WHERE id = $1`
	return scanTransaction(j.db.QueryRow(ctx, query, txID))
}

// EntriesForTransaction returns all entries posted under txID.
func (j *PostgresJournal) EntriesForTransaction(ctx context.Context, txID uuid.UUID) ([]Entry, error) {
	const query = `SELECT id, transaction_id, account_type, owner_ref, entry_type, amount::text
        FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`

	rows, err := j.db.Query(ctx, query, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			accType   string
			entryType string
			raw       string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &accType, &e.Account.OwnerRef, &entryType, &raw); err != nil {
			return nil, err
		}
		e.Account.Type = AccountType(accType)
		e.Type = EntryType(entryType)
		if e.Amount, err = money.FromString(raw); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrTransactionNotFound
	}
	return entries, nil
}

// FindReversalOf returns the reversal of txID, or nil when none exists.
func (j *PostgresJournal) FindReversalOf(ctx context.Context, txID uuid.UUID) (*Transaction, error) {
	const query = `SELECT id, tx_type, amount::text, created_at, original_transaction_id
        FROM ledger_transactions WHERE original_transaction_id = $1`

	tx, err := scanTransaction(j.db.QueryRow(ctx, query, txID))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// FindInconsistentTransactions surfaces transactions whose entries do not
// sum to zero, for the external reconciliation job.
func (j *PostgresJournal) FindInconsistentTransactions(ctx context.Context) ([]uuid.UUID, error) {
	const query = `
        SELECT transaction_id
        FROM ledger_entries
        GROUP BY transaction_id
        HAVING SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE -amount END) <> 0`

	rows, err := j.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx     Transaction
		txType string
		raw    string
	)
	if err := row.Scan(&tx.ID, &txType, &raw, &tx.CreatedAt, &tx.OriginalTransactionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	tx.Type = TransactionType(txType)
	var err error
	if tx.Amount, err = money.FromString(raw); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
