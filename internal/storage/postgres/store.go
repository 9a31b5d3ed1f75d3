package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
)

// Store implements storage.Store using PostgreSQL. NUMERIC columns travel as
// text so decimals keep their exact representation.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Close closes the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertCampaign creates or replaces a campaign by ID.
func (s *Store) UpsertCampaign(ctx context.Context, c models.Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, name, token_symbol, chain, status, check_method, eligibility_api_url,
			claim_url, claim_deadline, snapshot_date, eligibility_source, criteria,
			total_eligible_addresses, average_allocation_usd, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::text::numeric, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			token_symbol = EXCLUDED.token_symbol,
			chain = EXCLUDED.chain,
			status = EXCLUDED.status,
			check_method = EXCLUDED.check_method,
			eligibility_api_url = EXCLUDED.eligibility_api_url,
			claim_url = EXCLUDED.claim_url,
			claim_deadline = EXCLUDED.claim_deadline,
			snapshot_date = EXCLUDED.snapshot_date,
			eligibility_source = EXCLUDED.eligibility_source,
			criteria = EXCLUDED.criteria,
			total_eligible_addresses = EXCLUDED.total_eligible_addresses,
			average_allocation_usd = EXCLUDED.average_allocation_usd,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	createdAt, updatedAt := c.CreatedAt, c.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	criteria := c.Criteria
	if criteria == nil {
		criteria = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.Name, c.TokenSymbol, c.Chain, string(c.Status), c.CheckMethod,
		c.EligibilityAPIURL, c.ClaimURL, c.ClaimDeadline, c.SnapshotDate,
		c.EligibilitySource, criteria, c.TotalEligibleAddresses,
		decimalText(c.AverageAllocationUSD), createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

const campaignColumns = `id, name, token_symbol, chain, status, check_method, eligibility_api_url,
	claim_url, claim_deadline, snapshot_date, eligibility_source, criteria,
	total_eligible_addresses, average_allocation_usd::text, created_at, updated_at`

// GetCampaign retrieves a campaign by ID. Returns ErrNotFound if not exists.
func (s *Store) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaignsByStatus returns campaigns in any of the given statuses.
func (s *Store) ListCampaignsByStatus(ctx context.Context, statuses ...models.CampaignStatus) ([]models.Campaign, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = ANY($1) ORDER BY id`, values)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// UpsertEligibility creates or overwrites the entry for (campaign, wallet).
func (s *Store) UpsertEligibility(ctx context.Context, r models.EligibilityResult) error {
	query := `
		INSERT INTO eligibility_results (
			campaign_id, wallet_address, is_eligible, allocation_amount, allocation_usd,
			has_claimed, merkle_proof, error_message, checked_at
		) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6, $7, $8, $9)
		ON CONFLICT (campaign_id, wallet_address) DO UPDATE SET
			is_eligible = EXCLUDED.is_eligible,
			allocation_amount = EXCLUDED.allocation_amount,
			allocation_usd = EXCLUDED.allocation_usd,
			has_claimed = EXCLUDED.has_claimed,
			merkle_proof = EXCLUDED.merkle_proof,
			error_message = EXCLUDED.error_message,
			checked_at = EXCLUDED.checked_at
	`

	proof := r.MerkleProof
	if proof == nil {
		proof = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		r.CampaignID, strings.ToLower(r.WalletAddress), r.IsEligible,
		decimalText(r.AllocationAmount), decimalText(r.AllocationUSD),
		r.HasClaimed, proof, r.ErrorMessage, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert eligibility: %w", err)
	}
	return nil
}

const eligibilityColumns = `campaign_id, wallet_address, is_eligible, allocation_amount::text,
	allocation_usd::text, has_claimed, merkle_proof, error_message, checked_at`

// GetEligibility retrieves the entry for (campaign, wallet).
func (s *Store) GetEligibility(ctx context.Context, campaignID, wallet string) (*models.EligibilityResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eligibilityColumns+` FROM eligibility_results WHERE campaign_id = $1 AND wallet_address = $2`,
		campaignID, strings.ToLower(wallet))
	r, err := scanEligibility(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get eligibility: %w", err)
	}
	return r, nil
}

// ListEligibilityByWallet returns every cached entry for a wallet.
func (s *Store) ListEligibilityByWallet(ctx context.Context, wallet string) ([]models.EligibilityResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eligibilityColumns+` FROM eligibility_results WHERE wallet_address = $1 ORDER BY checked_at DESC, campaign_id`,
		strings.ToLower(wallet))
	if err != nil {
		return nil, fmt.Errorf("list eligibility: %w", err)
	}
	defer rows.Close()

	results := []models.EligibilityResult{}
	for rows.Next() {
		r, err := scanEligibility(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eligibility: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligibility: %w", err)
	}
	return results, nil
}

// UpsertProgram creates or replaces a program by ID.
func (s *Store) UpsertProgram(ctx context.Context, p models.PointsProgram) error {
	query := `
		INSERT INTO points_programs (
			id, protocol_name, points_name, chain, status, tracking_method,
			api_endpoint, dashboard_url, token_symbol, estimated_tge_date,
			created_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			protocol_name = EXCLUDED.protocol_name,
			points_name = EXCLUDED.points_name,
			chain = EXCLUDED.chain,
			status = EXCLUDED.status,
			tracking_method = EXCLUDED.tracking_method,
			api_endpoint = EXCLUDED.api_endpoint,
			dashboard_url = EXCLUDED.dashboard_url,
			token_symbol = EXCLUDED.token_symbol,
			estimated_tge_date = EXCLUDED.estimated_tge_date,
			last_updated = EXCLUDED.last_updated
	`

	now := time.Now().UTC()
	createdAt, lastUpdated := p.CreatedAt, p.LastUpdated
	if createdAt.IsZero() {
		createdAt = now
	}
	if lastUpdated.IsZero() {
		lastUpdated = now
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.ProtocolName, p.PointsName, p.Chain, string(p.Status), p.TrackingMethod,
		p.APIEndpoint, p.DashboardURL, p.TokenSymbol, p.EstimatedTGEDate,
		createdAt, lastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert program: %w", err)
	}
	return nil
}

const programColumns = `id, protocol_name, points_name, chain, status, tracking_method,
	api_endpoint, dashboard_url, token_symbol, estimated_tge_date, created_at, last_updated`

// GetProgram retrieves a program by ID. Returns ErrNotFound if not exists.
func (s *Store) GetProgram(ctx context.Context, id string) (*models.PointsProgram, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+programColumns+` FROM points_programs WHERE id = $1`, id)
	p, err := scanProgram(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get program: %w", err)
	}
	return p, nil
}

// ListProgramsByStatus returns programs with the given status.
func (s *Store) ListProgramsByStatus(ctx context.Context, status models.ProgramStatus) ([]models.PointsProgram, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+programColumns+` FROM points_programs WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	programs := []models.PointsProgram{}
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return programs, nil
}

// InsertSnapshot appends a snapshot. Returns ErrConflict on a duplicate
// (wallet, program, sequence).
func (s *Store) InsertSnapshot(ctx context.Context, snap models.PointsSnapshot) error {
	query := `
		INSERT INTO points_snapshots (
			id, wallet_address, program_id, protocol_name, points, rank, percentile,
			estimated_value_usd, previous_points, points_change, sequence, snapshot_date
		) VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7::text::numeric, $8::text::numeric,
			$9::text::numeric, $10::text::numeric, $11, $12)
	`

	points := snap.Points.String()
	_, err := s.pool.Exec(ctx, query,
		snap.ID, strings.ToLower(snap.WalletAddress), snap.ProgramID, snap.ProtocolName,
		&points, snap.Rank, decimalText(snap.Percentile), decimalText(snap.EstimatedValueUSD),
		decimalText(snap.PreviousPoints), decimalText(snap.PointsChange),
		snap.Sequence, snap.SnapshotDate,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, wallet_address, program_id, protocol_name, points::text, rank,
	percentile::text, estimated_value_usd::text, previous_points::text, points_change::text,
	sequence, snapshot_date`

// LatestSnapshot returns the most recent snapshot for (wallet, program).
func (s *Store) LatestSnapshot(ctx context.Context, wallet, programID string) (*models.PointsSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM points_snapshots
		WHERE wallet_address = $1 AND program_id = $2
		ORDER BY snapshot_date DESC, sequence DESC
		LIMIT 1
	`, strings.ToLower(wallet), programID)

	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots for a wallet, newest first.
func (s *Store) ListSnapshots(ctx context.Context, wallet, programID string, limit int) ([]models.PointsSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM points_snapshots
		WHERE wallet_address = $1 AND ($2 = '' OR program_id = $2)
		ORDER BY snapshot_date DESC, sequence DESC
		LIMIT $3
	`, strings.ToLower(wallet), programID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.PointsSnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// TrackWallet adds a wallet or updates its label.
func (s *Store) TrackWallet(ctx context.Context, w models.TrackedWallet) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_wallets (wallet_address, label, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO UPDATE SET label = EXCLUDED.label
	`, strings.ToLower(w.WalletAddress), w.Label, createdAt)
	if err != nil {
		return fmt.Errorf("track wallet: %w", err)
	}
	return nil
}

// UntrackWallet removes a wallet. Returns ErrNotFound if it was not tracked.
func (s *Store) UntrackWallet(ctx context.Context, wallet string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tracked_wallets WHERE wallet_address = $1`, strings.ToLower(wallet))
	if err != nil {
		return fmt.Errorf("untrack wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTrackedWallets returns every tracked wallet ordered by address.
func (s *Store) ListTrackedWallets(ctx context.Context) ([]models.TrackedWallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT wallet_address, label, created_at, last_refreshed FROM tracked_wallets ORDER BY wallet_address`)
	if err != nil {
		return nil, fmt.Errorf("list tracked wallets: %w", err)
	}
	defer rows.Close()

	wallets := []models.TrackedWallet{}
	for rows.Next() {
		var w models.TrackedWallet
		if err := rows.Scan(&w.WalletAddress, &w.Label, &w.CreatedAt, &w.LastRefreshed); err != nil {
			return nil, fmt.Errorf("scan tracked wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked wallets: %w", err)
	}
	return wallets, nil
}

// MarkRefreshed records the time of the last scheduled refresh.
func (s *Store) MarkRefreshed(ctx context.Context, wallet string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE tracked_wallets SET last_refreshed = $1 WHERE wallet_address = $2`,
		at, strings.ToLower(wallet))
	if err != nil {
		return fmt.Errorf("mark wallet refreshed: %w", err)
	}
	return nil
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var status string
	var avg *string

	err := row.Scan(
		&c.ID, &c.Name, &c.TokenSymbol, &c.Chain, &status, &c.CheckMethod,
		&c.EligibilityAPIURL, &c.ClaimURL, &c.ClaimDeadline, &c.SnapshotDate,
		&c.EligibilitySource, &c.Criteria, &c.TotalEligibleAddresses, &avg,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.CampaignStatus(status)
	if c.AverageAllocationUSD, err = parseDecimalText(avg); err != nil {
		return nil, err
	}
	if c.Criteria == nil {
		c.Criteria = []string{}
	}
	return &c, nil
}

func scanEligibility(row pgx.Row) (*models.EligibilityResult, error) {
	var r models.EligibilityResult
	var amount, usd *string

	err := row.Scan(
		&r.CampaignID, &r.WalletAddress, &r.IsEligible, &amount, &usd,
		&r.HasClaimed, &r.MerkleProof, &r.ErrorMessage, &r.CheckedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.AllocationAmount, err = parseDecimalText(amount); err != nil {
		return nil, err
	}
	if r.AllocationUSD, err = parseDecimalText(usd); err != nil {
		return nil, err
	}
	if len(r.MerkleProof) == 0 {
		r.MerkleProof = nil
	}
	return &r, nil
}

func scanProgram(row pgx.Row) (*models.PointsProgram, error) {
	var p models.PointsProgram
	var status string

	err := row.Scan(
		&p.ID, &p.ProtocolName, &p.PointsName, &p.Chain, &status, &p.TrackingMethod,
		&p.APIEndpoint, &p.DashboardURL, &p.TokenSymbol, &p.EstimatedTGEDate,
		&p.CreatedAt, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.ProgramStatus(status)
	return &p, nil
}

func scanSnapshot(row pgx.Row) (*models.PointsSnapshot, error) {
	var snap models.PointsSnapshot
	var points string
	var percentile, valueUSD, previous, change *string

	err := row.Scan(
		&snap.ID, &snap.WalletAddress, &snap.ProgramID, &snap.ProtocolName,
		&points, &snap.Rank, &percentile, &valueUSD, &previous, &change,
		&snap.Sequence, &snap.SnapshotDate,
	)
	if err != nil {
		return nil, err
	}

	if snap.Points, err = decimal.NewFromString(points); err != nil {
		return nil, fmt.Errorf("parse points: %w", err)
	}
	if snap.Percentile, err = parseDecimalText(percentile); err != nil {
		return nil, err
	}
	if snap.EstimatedValueUSD, err = parseDecimalText(valueUSD); err != nil {
		return nil, err
	}
	if snap.PreviousPoints, err = parseDecimalText(previous); err != nil {
		return nil, err
	}
	if snap.PointsChange, err = parseDecimalText(change); err != nil {
		return nil, err
	}
	return &snap, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimalText(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return &d, nil
}
