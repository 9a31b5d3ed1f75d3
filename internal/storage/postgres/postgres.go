package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// schema is applied by Migrate; statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		token_symbol TEXT NOT NULL,
		chain TEXT NOT NULL,
		status TEXT NOT NULL,
		check_method TEXT NOT NULL,
		eligibility_api_url TEXT NOT NULL DEFAULT '',
		claim_url TEXT NOT NULL DEFAULT '',
		claim_deadline TIMESTAMPTZ,
		snapshot_date TIMESTAMPTZ,
		eligibility_source TEXT NOT NULL DEFAULT '',
		criteria TEXT[] NOT NULL DEFAULT '{}',
		total_eligible_addresses BIGINT,
		average_allocation_usd NUMERIC,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
	`CREATE TABLE IF NOT EXISTS eligibility_results (
		campaign_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		is_eligible BOOLEAN NOT NULL,
		allocation_amount NUMERIC,
		allocation_usd NUMERIC,
		has_claimed BOOLEAN NOT NULL,
		merkle_proof TEXT[] NOT NULL DEFAULT '{}',
		error_message TEXT NOT NULL DEFAULT '',
		checked_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (campaign_id, wallet_address)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_eligibility_wallet ON eligibility_results(wallet_address)`,
	`CREATE TABLE IF NOT EXISTS points_programs (
		id TEXT PRIMARY KEY,
		protocol_name TEXT NOT NULL,
		points_name TEXT NOT NULL,
		chain TEXT NOT NULL,
		status TEXT NOT NULL,
		tracking_method TEXT NOT NULL,
		api_endpoint TEXT NOT NULL DEFAULT '',
		dashboard_url TEXT NOT NULL DEFAULT '',
		token_symbol TEXT NOT NULL DEFAULT '',
		estimated_tge_date TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS points_snapshots (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		program_id TEXT NOT NULL,
		protocol_name TEXT NOT NULL,
		points NUMERIC NOT NULL,
		rank INTEGER,
		percentile NUMERIC,
		estimated_value_usd NUMERIC,
		previous_points NUMERIC,
		points_change NUMERIC,
		sequence BIGINT NOT NULL,
		snapshot_date TIMESTAMPTZ NOT NULL,
		UNIQUE (wallet_address, program_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_wallet_date ON points_snapshots(wallet_address, snapshot_date DESC)`,
	`CREATE TABLE IF NOT EXISTS tracked_wallets (
		wallet_address TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		last_refreshed TIMESTAMPTZ
	)`,
}

// Migrate creates the tables used by Store.
func (p *Pool) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
