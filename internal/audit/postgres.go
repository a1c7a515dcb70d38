package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore appends entries to the gateway_calls table.
type PostgresStore struct {
	db execer
}

// OpenPostgres opens a database handle for dsn with the lib/pq driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InitSchema creates the table and its indexes if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS gateway_calls (
			id VARCHAR(64) PRIMARY KEY,
			operation VARCHAR(32) NOT NULL,
			action VARCHAR(32) NOT NULL,
			reference VARCHAR(255),
			success BOOLEAN NOT NULL,
			authorization_id VARCHAR(255),
			error_kind VARCHAR(64),
			message TEXT,
			amount NUMERIC NOT NULL,
			currency VARCHAR(3),
			test BOOLEAN NOT NULL,
			transport_error TEXT,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_calls_authorization ON gateway_calls(authorization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_calls_recorded_at ON gateway_calls(recorded_at)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init gateway_calls schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_calls (id, operation, action, reference, success, authorization_id,
			error_kind, message, amount, currency, test, transport_error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.Operation, e.Action, nullString(e.Reference), e.Success, nullString(e.Authorization),
		nullString(e.ErrorKind), e.Message, e.Amount.String(), nullString(e.Currency), e.Test,
		nullString(e.Error), e.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert gateway call %s: %w", e.ID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
