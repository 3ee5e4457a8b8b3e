package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"fhirnlp/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_logs (
	id               UUID PRIMARY KEY,
	query            TEXT NOT NULL,
	intent           JSONB NOT NULL,
	fhir_query       JSONB NOT NULL,
	modifiers        JSONB,
	result_count     INTEGER NOT NULL DEFAULT 0,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_query_logs_created_at ON query_logs (created_at DESC);
`

// PostgresRepository stores processed queries in PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the query_logs table if it does not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create query_logs schema: %w", err)
	}
	return nil
}

// LogQuery records one processed query
func (r *PostgresRepository) LogQuery(ctx context.Context, entry *model.QueryLog) error {
	query := `
		INSERT INTO query_logs (id, query, intent, fhir_query, modifiers, result_count, response_time_ms, created_at)
		VALUES (:id, :query, :intent, :fhir_query, :modifiers, :result_count, :response_time_ms, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// RecentQueries returns the latest query logs, newest first
func (r *PostgresRepository) RecentQueries(ctx context.Context, limit int) ([]model.QueryLog, error) {
	query := `
		SELECT id, query, intent, fhir_query, modifiers, result_count, response_time_ms, created_at
		FROM query_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	logs := []model.QueryLog{}
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent queries: %w", err)
	}
	return logs, nil
}
