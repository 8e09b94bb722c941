package actor

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kori-finance/kori/internal/fault"
	"github.com/kori-finance/kori/internal/status"
)

// PostgresAgents persists agents in PostgreSQL.
type PostgresAgents struct {
	db *pgxpool.Pool
}

func NewPostgresAgents(db *pgxpool.Pool) *PostgresAgents {
	return &PostgresAgents{db: db}
}

func (r *PostgresAgents) FindByRef(ctx context.Context, ref string) (Agent, error) {
	var (
		a  Agent
		st string
	)
	err := r.db.QueryRow(ctx, `SELECT ref, name, phone, status, created_at FROM agents WHERE ref = $1`, ref).
		Scan(&a.Ref, &a.Name, &a.Phone, &st, &a.CreatedAt)
	if err != nil {
		return Agent{}, notFound(err, ErrAgentNotFound)
	}
	a.Status = status.Status(st)
	return a, nil
}

func (r *PostgresAgents) Save(ctx context.Context, agent Agent) error {
	_, err := r.db.Exec(ctx, `INSERT INTO agents (ref, name, phone, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, status = EXCLUDED.status`,
		agent.Ref, agent.Name, agent.Phone, string(agent.Status), agent.CreatedAt)
	return err
}

// PostgresMerchants persists merchants in PostgreSQL.
type PostgresMerchants struct {
	db *pgxpool.Pool
}

func NewPostgresMerchants(db *pgxpool.Pool) *PostgresMerchants {
	return &PostgresMerchants{db: db}
}

func (r *PostgresMerchants) FindByRef(ctx context.Context, ref string) (Merchant, error) {
	var (
		m  Merchant
		st string
	)
	err := r.db.QueryRow(ctx, `SELECT ref, name, status, created_at FROM merchants WHERE ref = $1`, ref).
		Scan(&m.Ref, &m.Name, &st, &m.CreatedAt)
	if err != nil {
		return Merchant{}, notFound(err, ErrMerchantNotFound)
	}
	m.Status = status.Status(st)
	return m, nil
}

func (r *PostgresMerchants) Save(ctx context.Context, merchant Merchant) error {
	_, err := r.db.Exec(ctx, `INSERT INTO merchants (ref, name, status, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`,
		merchant.Ref, merchant.Name, string(merchant.Status), merchant.CreatedAt)
	return err
}

// PostgresClients persists clients in PostgreSQL.
type PostgresClients struct {
	db *pgxpool.Pool
}

func NewPostgresClients(db *pgxpool.Pool) *PostgresClients {
	return &PostgresClients{db: db}
}

func (r *PostgresClients) FindByRef(ctx context.Context, ref string) (Client, error) {
	var (
		c  Client
		st string
	)
	err := r.db.QueryRow(ctx, `SELECT ref, phone, status, created_at FROM clients WHERE ref = $1`, ref).
		Scan(&c.Ref, &c.Phone, &st, &c.CreatedAt)
	if err != nil {
		return Client{}, notFound(err, ErrClientNotFound)
	}
	c.Status = status.Status(st)
	return c, nil
}

func (r *PostgresClients) Save(ctx context.Context, client Client) error {
	_, err := r.db.Exec(ctx, `INSERT INTO clients (ref, phone, status, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (ref) DO UPDATE SET phone = EXCLUDED.phone, status = EXCLUDED.status`,
		client.Ref, client.Phone, string(client.Status), client.CreatedAt)
	return err
}

// PostgresAdmins persists admins in PostgreSQL.
type PostgresAdmins struct {
	db *pgxpool.Pool
}

func NewPostgresAdmins(db *pgxpool.Pool) *PostgresAdmins {
	return &PostgresAdmins{db: db}
}

func (r *PostgresAdmins) FindByRef(ctx context.Context, ref string) (Admin, error) {
	var (
		a  Admin
		st string
	)
	err := r.db.QueryRow(ctx, `SELECT ref, name, status, created_at FROM admins WHERE ref = $1`, ref).
		Scan(&a.Ref, &a.Name, &st, &a.CreatedAt)
	if err != nil {
		return Admin{}, notFound(err, ErrAdminNotFound)
	}
	a.Status = status.Status(st)
	return a, nil
}

func (r *PostgresAdmins) Save(ctx context.Context, admin Admin) error {
	_, err := r.db.Exec(ctx, `INSERT INTO admins (ref, name, status, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`,
		admin.Ref, admin.Name, string(admin.Status), admin.CreatedAt)
	return err
}

// PostgresTerminals persists terminals in PostgreSQL.
type PostgresTerminals struct {
	db *pgxpool.Pool
}

func NewPostgresTerminals(db *pgxpool.Pool) *PostgresTerminals {
	return &PostgresTerminals{db: db}
}

func (r *PostgresTerminals) FindByRef(ctx context.Context, ref string) (Terminal, error) {
	var (
		t  Terminal
		st string
	)
	err := r.db.QueryRow(ctx, `SELECT ref, merchant_ref, status, created_at FROM terminals WHERE ref = $1`, ref).
		Scan(&t.Ref, &t.MerchantRef, &st, &t.CreatedAt)
	if err != nil {
		return Terminal{}, notFound(err, ErrTerminalNotFound)
	}
	t.Status = status.Status(st)
	return t, nil
}

func (r *PostgresTerminals) FindByMerchant(ctx context.Context, merchantRef string) ([]Terminal, error) {
	rows, err := r.db.Query(ctx, `SELECT ref, merchant_ref, status, created_at FROM terminals WHERE merchant_ref = $1 ORDER BY ref`, merchantRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terminals []Terminal
	for rows.Next() {
		var (
			t  Terminal
			st string
		)
		if err := rows.Scan(&t.Ref, &t.MerchantRef, &st, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = status.Status(st)
		terminals = append(terminals, t)
	}
	return terminals, rows.Err()
}

func (r *PostgresTerminals) Save(ctx context.Context, terminal Terminal) error {
	_, err := r.db.Exec(ctx, `INSERT INTO terminals (ref, merchant_ref, status, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (ref) DO UPDATE SET status = EXCLUDED.status`,
		terminal.Ref, terminal.MerchantRef, string(terminal.Status), terminal.CreatedAt)
	return err
}

func notFound(err error, missing *fault.Error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return missing
	}
	return err
}
