package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
)

// UpsertProgram creates or updates a points program.
func (db *DB) UpsertProgram(ctx context.Context, p models.PointsProgram) error {
	query := `INSERT INTO points_programs (
		id, protocol_name, points_name, chain, status, tracking_method,
		api_endpoint, dashboard_url, token_symbol, estimated_tge_date,
		created_at, last_updated
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		protocol_name = excluded.protocol_name,
		points_name = excluded.points_name,
		chain = excluded.chain,
		status = excluded.status,
		tracking_method = excluded.tracking_method,
		api_endpoint = excluded.api_endpoint,
		dashboard_url = excluded.dashboard_url,
		token_symbol = excluded.token_symbol,
		estimated_tge_date = excluded.estimated_tge_date,
		last_updated = excluded.last_updated`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	lastUpdated := p.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	_, err := db.conn.ExecContext(ctx, query,
		p.ID,
		p.ProtocolName,
		p.PointsName,
		p.Chain,
		string(p.Status),
		p.TrackingMethod,
		p.APIEndpoint,
		p.DashboardURL,
		p.TokenSymbol,
		p.EstimatedTGEDate,
		formatTime(createdAt),
		formatTime(lastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert program: %w", err)
	}

	return nil
}

const programColumns = `id, protocol_name, points_name, chain, status, tracking_method,
	api_endpoint, dashboard_url, token_symbol, estimated_tge_date, created_at, last_updated`

// GetProgram returns a points program by ID.
func (db *DB) GetProgram(ctx context.Context, id string) (*models.PointsProgram, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+programColumns+` FROM points_programs WHERE id = ?`, id)
	p, err := scanProgram(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get program: %w", err)
	}
	return p, nil
}

// ListProgramsByStatus returns all programs with the given status.
func (db *DB) ListProgramsByStatus(ctx context.Context, status models.ProgramStatus) ([]models.PointsProgram, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+programColumns+` FROM points_programs WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	defer rows.Close()

	programs := []models.PointsProgram{}
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating programs: %w", err)
	}

	return programs, nil
}

// InsertSnapshot appends a snapshot; a duplicate (wallet, program, sequence)
// yields storage.ErrConflict.
func (db *DB) InsertSnapshot(ctx context.Context, s models.PointsSnapshot) error {
	query := `INSERT INTO points_snapshots (
		id, wallet_address, program_id, protocol_name, points, rank, percentile,
		estimated_value_usd, previous_points, points_change, sequence, snapshot_date
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var rank interface{}
	if s.Rank != nil {
		rank = *s.Rank
	}

	_, err := db.conn.ExecContext(ctx, query,
		s.ID,
		strings.ToLower(s.WalletAddress),
		s.ProgramID,
		s.ProtocolName,
		s.Points.String(),
		rank,
		formatNullDecimal(s.Percentile),
		formatNullDecimal(s.EstimatedValueUSD),
		formatNullDecimal(s.PreviousPoints),
		formatNullDecimal(s.PointsChange),
		s.Sequence,
		formatTime(s.SnapshotDate),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

const snapshotColumns = `id, wallet_address, program_id, protocol_name, points, rank, percentile,
	estimated_value_usd, previous_points, points_change, sequence, snapshot_date`

// LatestSnapshot returns the most recent snapshot for (wallet, program).
func (db *DB) LatestSnapshot(ctx context.Context, wallet, programID string) (*models.PointsSnapshot, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM points_snapshots
		WHERE wallet_address = ? AND program_id = ?
		ORDER BY snapshot_date DESC, sequence DESC
		LIMIT 1`,
		strings.ToLower(wallet), programID)

	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return s, nil
}

// ListSnapshots returns up to limit snapshots for a wallet, newest first.
func (db *DB) ListSnapshots(ctx context.Context, wallet, programID string, limit int) ([]models.PointsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM points_snapshots WHERE wallet_address = ?`
	args := []interface{}{strings.ToLower(wallet)}

	if programID != "" {
		query += ` AND program_id = ?`
		args = append(args, programID)
	}

	query += ` ORDER BY snapshot_date DESC, sequence DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.PointsSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// TrackWallet adds a wallet to the scheduled refresh list.
func (db *DB) TrackWallet(ctx context.Context, w models.TrackedWallet) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx, `INSERT INTO tracked_wallets (wallet_address, label, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET label = excluded.label`,
		strings.ToLower(w.WalletAddress), w.Label, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to track wallet: %w", err)
	}
	return nil
}

// UntrackWallet removes a wallet from the scheduled refresh list.
func (db *DB) UntrackWallet(ctx context.Context, wallet string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tracked_wallets WHERE wallet_address = ?`, strings.ToLower(wallet))
	if err != nil {
		return fmt.Errorf("failed to untrack wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to untrack wallet: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTrackedWallets returns every tracked wallet.
func (db *DB) ListTrackedWallets(ctx context.Context) ([]models.TrackedWallet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT wallet_address, label, created_at, last_refreshed FROM tracked_wallets ORDER BY wallet_address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked wallets: %w", err)
	}
	defer rows.Close()

	wallets := []models.TrackedWallet{}
	for rows.Next() {
		var w models.TrackedWallet
		var createdAt string
		var lastRefreshed sql.NullString
		if err := rows.Scan(&w.WalletAddress, &w.Label, &createdAt, &lastRefreshed); err != nil {
			return nil, fmt.Errorf("failed to scan tracked wallet: %w", err)
		}
		if w.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if w.LastRefreshed, err = parseNullTime(lastRefreshed); err != nil {
			return nil, fmt.Errorf("failed to parse last_refreshed: %w", err)
		}
		wallets = append(wallets, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked wallets: %w", err)
	}

	return wallets, nil
}

// MarkRefreshed stamps the last scheduled refresh time of a wallet.
func (db *DB) MarkRefreshed(ctx context.Context, wallet string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE tracked_wallets SET last_refreshed = ? WHERE wallet_address = ?`,
		formatTime(at), strings.ToLower(wallet))
	if err != nil {
		return fmt.Errorf("failed to mark wallet refreshed: %w", err)
	}
	return nil
}

func scanProgram(row rowScanner) (*models.PointsProgram, error) {
	var p models.PointsProgram
	var status, createdAt, lastUpdated string

	err := row.Scan(
		&p.ID,
		&p.ProtocolName,
		&p.PointsName,
		&p.Chain,
		&status,
		&p.TrackingMethod,
		&p.APIEndpoint,
		&p.DashboardURL,
		&p.TokenSymbol,
		&p.EstimatedTGEDate,
		&createdAt,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}

	p.Status = models.ProgramStatus(status)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, fmt.Errorf("failed to parse last_updated: %w", err)
	}

	return &p, nil
}

func scanSnapshot(row rowScanner) (*models.PointsSnapshot, error) {
	var s models.PointsSnapshot
	var points, snapshotDate string
	var rank sql.NullInt64
	var percentile, valueUSD, previous, change sql.NullString

	err := row.Scan(
		&s.ID,
		&s.WalletAddress,
		&s.ProgramID,
		&s.ProtocolName,
		&points,
		&rank,
		&percentile,
		&valueUSD,
		&previous,
		&change,
		&s.Sequence,
		&snapshotDate,
	)
	if err != nil {
		return nil, err
	}

	pts, err := parseNullDecimal(sql.NullString{String: points, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse points: %w", err)
	}
	if pts != nil {
		s.Points = *pts
	}
	if rank.Valid {
		r := int(rank.Int64)
		s.Rank = &r
	}
	if s.Percentile, err = parseNullDecimal(percentile); err != nil {
		return nil, fmt.Errorf("failed to parse percentile: %w", err)
	}
	if s.EstimatedValueUSD, err = parseNullDecimal(valueUSD); err != nil {
		return nil, fmt.Errorf("failed to parse estimated_value_usd: %w", err)
	}
	if s.PreviousPoints, err = parseNullDecimal(previous); err != nil {
		return nil, fmt.Errorf("failed to parse previous_points: %w", err)
	}
	if s.PointsChange, err = parseNullDecimal(change); err != nil {
		return nil, fmt.Errorf("failed to parse points_change: %w", err)
	}
	if s.SnapshotDate, err = parseTime(snapshotDate); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot_date: %w", err)
	}

	return &s, nil
}
