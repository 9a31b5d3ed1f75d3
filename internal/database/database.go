package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
)

// timeLayout is fixed-width so that TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// Compile-time interface check.
var _ storage.Store = (*DB)(nil)

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases shared across goroutines.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			token_symbol TEXT NOT NULL,
			chain TEXT NOT NULL,
			status TEXT NOT NULL,
			check_method TEXT NOT NULL,
			eligibility_api_url TEXT NOT NULL DEFAULT '',
			claim_url TEXT NOT NULL DEFAULT '',
			claim_deadline TEXT,
			snapshot_date TEXT,
			eligibility_source TEXT NOT NULL DEFAULT '',
			criteria TEXT NOT NULL DEFAULT '[]',
			total_eligible_addresses INTEGER,
			average_allocation_usd TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
		`CREATE TABLE IF NOT EXISTS eligibility_results (
			campaign_id TEXT NOT NULL,
			wallet_address TEXT NOT NULL,
			is_eligible INTEGER NOT NULL,
			allocation_amount TEXT,
			allocation_usd TEXT,
			has_claimed INTEGER NOT NULL,
			merkle_proof TEXT NOT NULL DEFAULT '[]',
			error_message TEXT NOT NULL DEFAULT '',
			checked_at TEXT NOT NULL,
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
			created_at TEXT NOT NULL,
			last_updated TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_programs_status ON points_programs(status)`,
		`CREATE TABLE IF NOT EXISTS points_snapshots (
			id TEXT PRIMARY KEY,
			wallet_address TEXT NOT NULL,
			program_id TEXT NOT NULL,
			protocol_name TEXT NOT NULL,
			points TEXT NOT NULL,
			rank INTEGER,
			percentile TEXT,
			estimated_value_usd TEXT,
			previous_points TEXT,
			points_change TEXT,
			sequence INTEGER NOT NULL,
			snapshot_date TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_version ON points_snapshots(wallet_address, program_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_wallet_date ON points_snapshots(wallet_address, snapshot_date)`,
		`CREATE TABLE IF NOT EXISTS tracked_wallets (
			wallet_address TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_refreshed TEXT
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// UpsertCampaign creates or updates a campaign.
func (db *DB) UpsertCampaign(ctx context.Context, c models.Campaign) error {
	query := `INSERT INTO campaigns (
		id, name, token_symbol, chain, status, check_method, eligibility_api_url,
		claim_url, claim_deadline, snapshot_date, eligibility_source, criteria,
		total_eligible_addresses, average_allocation_usd, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		token_symbol = excluded.token_symbol,
		chain = excluded.chain,
		status = excluded.status,
		check_method = excluded.check_method,
		eligibility_api_url = excluded.eligibility_api_url,
		claim_url = excluded.claim_url,
		claim_deadline = excluded.claim_deadline,
		snapshot_date = excluded.snapshot_date,
		eligibility_source = excluded.eligibility_source,
		criteria = excluded.criteria,
		total_eligible_addresses = excluded.total_eligible_addresses,
		average_allocation_usd = excluded.average_allocation_usd,
		updated_at = excluded.updated_at`

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var total interface{}
	if c.TotalEligibleAddresses != nil {
		total = *c.TotalEligibleAddresses
	}

	_, err := db.conn.ExecContext(ctx, query,
		c.ID,
		c.Name,
		c.TokenSymbol,
		c.Chain,
		string(c.Status),
		c.CheckMethod,
		c.EligibilityAPIURL,
		c.ClaimURL,
		formatNullTime(c.ClaimDeadline),
		formatNullTime(c.SnapshotDate),
		c.EligibilitySource,
		serializeStringList(c.Criteria),
		total,
		formatNullDecimal(c.AverageAllocationUSD),
		formatTime(createdAt),
		formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign: %w", err)
	}

	return nil
}

const campaignColumns = `id, name, token_symbol, chain, status, check_method, eligibility_api_url,
	claim_url, claim_deadline, snapshot_date, eligibility_source, criteria,
	total_eligible_addresses, average_allocation_usd, created_at, updated_at`

// GetCampaign returns a campaign by ID.
func (db *DB) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListCampaignsByStatus returns all campaigns in any of the given statuses.
func (db *DB) ListCampaignsByStatus(ctx context.Context, statuses ...models.CampaignStatus) ([]models.Campaign, error) {
	if len(statuses) == 0 {
		return []models.Campaign{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE status IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

// UpsertEligibility overwrites the cached result for (campaign, wallet).
func (db *DB) UpsertEligibility(ctx context.Context, r models.EligibilityResult) error {
	query := `INSERT INTO eligibility_results (
		campaign_id, wallet_address, is_eligible, allocation_amount, allocation_usd,
		has_claimed, merkle_proof, error_message, checked_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(campaign_id, wallet_address) DO UPDATE SET
		is_eligible = excluded.is_eligible,
		allocation_amount = excluded.allocation_amount,
		allocation_usd = excluded.allocation_usd,
		has_claimed = excluded.has_claimed,
		merkle_proof = excluded.merkle_proof,
		error_message = excluded.error_message,
		checked_at = excluded.checked_at`

	_, err := db.conn.ExecContext(ctx, query,
		r.CampaignID,
		strings.ToLower(r.WalletAddress),
		r.IsEligible,
		formatNullDecimal(r.AllocationAmount),
		formatNullDecimal(r.AllocationUSD),
		r.HasClaimed,
		serializeStringList(r.MerkleProof),
		r.ErrorMessage,
		formatTime(r.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert eligibility result: %w", err)
	}

	return nil
}

const eligibilityColumns = `campaign_id, wallet_address, is_eligible, allocation_amount,
	allocation_usd, has_claimed, merkle_proof, error_message, checked_at`

// GetEligibility returns the cached result for (campaign, wallet).
func (db *DB) GetEligibility(ctx context.Context, campaignID, wallet string) (*models.EligibilityResult, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+eligibilityColumns+` FROM eligibility_results WHERE campaign_id = ? AND wallet_address = ?`,
		campaignID, strings.ToLower(wallet))

	r, err := scanEligibility(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get eligibility result: %w", err)
	}
	return r, nil
}

// ListEligibilityByWallet returns every cached result for a wallet.
func (db *DB) ListEligibilityByWallet(ctx context.Context, wallet string) ([]models.EligibilityResult, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+eligibilityColumns+` FROM eligibility_results WHERE wallet_address = ? ORDER BY checked_at DESC, campaign_id`,
		strings.ToLower(wallet))
	if err != nil {
		return nil, fmt.Errorf("failed to query eligibility results: %w", err)
	}
	defer rows.Close()

	results := []models.EligibilityResult{}
	for rows.Next() {
		r, err := scanEligibility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eligibility result: %w", err)
		}
		results = append(results, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating eligibility results: %w", err)
	}

	return results, nil
}

// isUniqueViolation checks if err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	var status, criteria, createdAt, updatedAt string
	var claimDeadline, snapshotDate, avgAllocation sql.NullString
	var total sql.NullInt64

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.TokenSymbol,
		&c.Chain,
		&status,
		&c.CheckMethod,
		&c.EligibilityAPIURL,
		&c.ClaimURL,
		&claimDeadline,
		&snapshotDate,
		&c.EligibilitySource,
		&criteria,
		&total,
		&avgAllocation,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.CampaignStatus(status)
	c.Criteria = deserializeStringList(criteria)
	if total.Valid {
		v := total.Int64
		c.TotalEligibleAddresses = &v
	}
	if c.ClaimDeadline, err = parseNullTime(claimDeadline); err != nil {
		return nil, fmt.Errorf("failed to parse claim_deadline: %w", err)
	}
	if c.SnapshotDate, err = parseNullTime(snapshotDate); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot_date: %w", err)
	}
	if c.AverageAllocationUSD, err = parseNullDecimal(avgAllocation); err != nil {
		return nil, fmt.Errorf("failed to parse average_allocation_usd: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &c, nil
}

func scanEligibility(row rowScanner) (*models.EligibilityResult, error) {
	var r models.EligibilityResult
	var amount, usd sql.NullString
	var proof, checkedAt string

	err := row.Scan(
		&r.CampaignID,
		&r.WalletAddress,
		&r.IsEligible,
		&amount,
		&usd,
		&r.HasClaimed,
		&proof,
		&r.ErrorMessage,
		&checkedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.AllocationAmount, err = parseNullDecimal(amount); err != nil {
		return nil, fmt.Errorf("failed to parse allocation_amount: %w", err)
	}
	if r.AllocationUSD, err = parseNullDecimal(usd); err != nil {
		return nil, fmt.Errorf("failed to parse allocation_usd: %w", err)
	}
	if proofs := deserializeStringList(proof); len(proofs) > 0 {
		r.MerkleProof = proofs
	}
	if r.CheckedAt, err = parseTime(checkedAt); err != nil {
		return nil, fmt.Errorf("failed to parse checked_at: %w", err)
	}

	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// serializeStringList converts a slice of strings to a JSON string.
func serializeStringList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// deserializeStringList converts a serialized list back to a slice.
func deserializeStringList(serialized string) []string {
	if serialized == "" || serialized == "[]" {
		return []string{}
	}

	var result []string
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return []string{}
	}
	return result
}
