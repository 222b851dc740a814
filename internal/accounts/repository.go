package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountExists indicates the name is already registered.
	ErrAccountExists = errors.New("account exists")
	// ErrAccountNotFound indicates the name is not registered.
	ErrAccountNotFound = errors.New("account not found")
)

// Repository persists registered accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByName(ctx context.Context, name string) (Account, error)
	UpdateTokenVersion(ctx context.Context, name string, version int) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	cmd, err := r.db.Exec(ctx, `INSERT INTO registered_accounts (name, secret_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
		account.Name, account.SecretHash, account.TokenVersion, account.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountExists, account.Name)
	}
	return nil
}

// FindByName fetches an account by name.
func (r *PostgresRepository) FindByName(ctx context.Context, name string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT name, secret_hash, token_version, created_at FROM registered_accounts WHERE name = $1`, name)
	var (
		createdAt time.Time
		account   Account
	)
	if err := row.Scan(&account.Name, &account.SecretHash, &account.TokenVersion, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
		}
		return Account{}, err
	}
	account.CreatedAt = createdAt.UTC()
	return account, nil
}

// UpdateTokenVersion stores a new token version, invalidating older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, name string, version int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE registered_accounts SET token_version = $1 WHERE name = $2`, version, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return nil
}
