package card

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists cards in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed card store.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const cardColumns = `id, client_ref, card_uid, hashed_pin, status, failed_pin_attempts, created_at`

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Card, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)
	return scanCard(row)
}

func (r *PostgresRepository) FindByUID(ctx context.Context, cardUID string) (Card, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_uid = $1`, cardUID)
	return scanCard(row)
}

func (r *PostgresRepository) FindByClient(ctx context.Context, clientRef string) ([]Card, error) {
	rows, err := r.db.Query(ctx, `SELECT `+cardColumns+` FROM cards WHERE client_ref = $1 ORDER BY created_at`, clientRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *PostgresRepository) Save(ctx context.Context, card Card) error {
	_, err := r.db.Exec(ctx, `INSERT INTO cards (id, client_ref, card_uid, hashed_pin, status, failed_pin_attempts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            hashed_pin = EXCLUDED.hashed_pin,
            status = EXCLUDED.status,
            failed_pin_attempts = EXCLUDED.failed_pin_attempts`,
		card.ID, card.ClientRef, card.CardUID, card.HashedPIN, string(card.Status), card.FailedPinAttempts, card.CreatedAt)
	return err
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		c  Card
		st string
	)
	if err := row.Scan(&c.ID, &c.ClientRef, &c.CardUID, &c.HashedPIN, &st, &c.FailedPinAttempts, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrCardNotFound
		}
		return Card{}, err
	}
	c.Status = Status(st)
	return c, nil
}
