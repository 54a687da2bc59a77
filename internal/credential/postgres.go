package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps tokens in a Postgres table.
type PostgresStore struct {
	db    DB
	table string // Sanitized identifier
}

// NewPostgresStore uses table in db. Call EnsureSchema once before use.
func NewPostgresStore(db DB, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// EnsureSchema creates the token table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			name       TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create token table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Token(ctx context.Context, name string) (string, bool, error) {
	var token string
	err := s.db.QueryRow(ctx, `SELECT token FROM `+s.table+` WHERE name = $1`, name).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select token: %w", err)
	}
	return token, true, nil
}

func (s *PostgresStore) SetToken(ctx context.Context, name, token string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (name, token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at
	`, name, token)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveToken(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
