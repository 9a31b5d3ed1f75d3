package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus is the lifecycle state of an airdrop campaign.
type CampaignStatus string

const (
	CampaignUpcoming  CampaignStatus = "upcoming"
	CampaignClaimable CampaignStatus = "claimable"
	CampaignExpired   CampaignStatus = "expired"
)

// Campaign represents an airdrop campaign tracked by the service.
type Campaign struct {
	ID                     string           `json:"id"`
	Name                   string           `json:"name"`
	TokenSymbol            string           `json:"token_symbol"`
	Chain                  string           `json:"chain"`
	Status                 CampaignStatus   `json:"status"`
	CheckMethod            string           `json:"check_method"` // api, merkle, manual
	EligibilityAPIURL      string           `json:"eligibility_api_url,omitempty"`
	ClaimURL               string           `json:"claim_url,omitempty"`
	ClaimDeadline          *time.Time       `json:"claim_deadline,omitempty"`
	SnapshotDate           *time.Time       `json:"snapshot_date,omitempty"`
	EligibilitySource      string           `json:"eligibility_source,omitempty"`
	Criteria               []string         `json:"criteria"`
	TotalEligibleAddresses *int64           `json:"total_eligible_addresses,omitempty"`
	AverageAllocationUSD   *decimal.Decimal `json:"average_allocation_usd,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// IsActive reports whether eligibility checks should consider the campaign.
func (c Campaign) IsActive() bool {
	return c.Status == CampaignClaimable || c.Status == CampaignUpcoming
}

// EligibilityResult is the cached outcome of a strategy run for one
// (campaign, wallet) pair. WalletAddress is always lower-case.
type EligibilityResult struct {
	CampaignID       string           `json:"campaign_id"`
	WalletAddress    string           `json:"wallet_address"`
	IsEligible       bool             `json:"is_eligible"`
	AllocationAmount *decimal.Decimal `json:"allocation_amount,omitempty"`
	AllocationUSD    *decimal.Decimal `json:"allocation_usd,omitempty"`
	HasClaimed       bool             `json:"has_claimed"`
	MerkleProof      []string         `json:"merkle_proof,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CheckedAt        time.Time        `json:"checked_at"`
}

// EligibilityCheck is the normalized per-campaign answer returned to callers.
type EligibilityCheck struct {
	CampaignID       string           `json:"campaign_id"`
	CampaignName     string           `json:"campaign_name"`
	TokenSymbol      string           `json:"token_symbol"`
	Status           CampaignStatus   `json:"status"`
	IsEligible       bool             `json:"is_eligible"`
	AllocationAmount *decimal.Decimal `json:"allocation_amount,omitempty"`
	AllocationUSD    *decimal.Decimal `json:"allocation_usd,omitempty"`
	HasClaimed       bool             `json:"has_claimed"`
	ClaimDeadline    *time.Time       `json:"claim_deadline,omitempty"`
	ClaimURL         string           `json:"claim_url,omitempty"`
	Criteria         []string         `json:"criteria"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

// ProgramStatus is the lifecycle state of a points program.
type ProgramStatus string

const (
	ProgramActive   ProgramStatus = "active"
	ProgramEnded    ProgramStatus = "ended"
	ProgramUpcoming ProgramStatus = "upcoming"
)

// PointsProgram represents a protocol points/rewards program.
type PointsProgram struct {
	ID               string        `json:"id"`
	ProtocolName     string        `json:"protocol_name"`
	PointsName       string        `json:"points_name"`
	Chain            string        `json:"chain"`
	Status           ProgramStatus `json:"status"`
	TrackingMethod   string        `json:"tracking_method"` // api, scrape, manual
	APIEndpoint      string        `json:"api_endpoint,omitempty"`
	DashboardURL     string        `json:"dashboard_url,omitempty"`
	TokenSymbol      string        `json:"token_symbol,omitempty"`
	EstimatedTGEDate string        `json:"estimated_tge_date,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	LastUpdated      time.Time     `json:"last_updated"`
}

// PointsSnapshot is one immutable points reading for a (wallet, program).
// Sequence increases by one per snapshot of the same pair.
type PointsSnapshot struct {
	ID                string           `json:"id"`
	WalletAddress     string           `json:"wallet_address"`
	ProgramID         string           `json:"program_id"`
	ProtocolName      string           `json:"protocol_name"`
	Points            decimal.Decimal  `json:"points"`
	Rank              *int             `json:"rank,omitempty"`
	Percentile        *decimal.Decimal `json:"percentile,omitempty"`
	EstimatedValueUSD *decimal.Decimal `json:"estimated_value_usd,omitempty"`
	PreviousPoints    *decimal.Decimal `json:"previous_points,omitempty"`
	PointsChange      *decimal.Decimal `json:"points_change,omitempty"`
	Sequence          int64            `json:"sequence"`
	SnapshotDate      time.Time        `json:"snapshot_date"`
}

// PointsBalance is the latest known points position of a wallet in a program.
type PointsBalance struct {
	ProgramID         string           `json:"program_id"`
	ProtocolName      string           `json:"protocol_name"`
	PointsName        string           `json:"points_name"`
	Points            decimal.Decimal  `json:"points"`
	Rank              *int             `json:"rank,omitempty"`
	Percentile        *decimal.Decimal `json:"percentile,omitempty"`
	EstimatedValueUSD *decimal.Decimal `json:"estimated_value_usd,omitempty"`
	PointsChange24h   *decimal.Decimal `json:"points_change_24h,omitempty"`
	DashboardURL      string           `json:"dashboard_url,omitempty"`
	LastUpdated       time.Time        `json:"last_updated"`
}

// TrackedWallet is a wallet whose points are refreshed on a schedule.
type TrackedWallet struct {
	WalletAddress string     `json:"wallet_address"`
	Label         string     `json:"label,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

// WalletActivity summarizes on-chain activity of a wallet on one chain.
type WalletActivity struct {
	Address          string          `json:"address"`
	Chain            string          `json:"chain"`
	TransactionCount uint64          `json:"transaction_count"`
	HasActivity      bool            `json:"has_activity"`
	NativeBalance    decimal.Decimal `json:"native_balance"`
	FetchedAt        time.Time       `json:"fetched_at"`
}

// EligibilityResponse is the payload returned for a wallet-wide check.
type EligibilityResponse struct {
	WalletAddress string             `json:"wallet_address"`
	Checks        []EligibilityCheck `json:"checks"`
}

// PointsResponse is the payload returned for wallet-wide points queries.
type PointsResponse struct {
	WalletAddress string          `json:"wallet_address"`
	Balances      []PointsBalance `json:"balances"`
}

// HistoryResponse is the payload returned for snapshot history queries.
type HistoryResponse struct {
	WalletAddress string           `json:"wallet_address"`
	Snapshots     []PointsSnapshot `json:"snapshots"`
}

// TrackWalletRequest is the optional body of a track request.
type TrackWalletRequest struct {
	Label string `json:"label"`
}

// SeedResponse reports how many catalogue entries were upserted.
type SeedResponse struct {
	CampaignsSeeded int `json:"campaigns_seeded"`
	ProgramsSeeded  int `json:"programs_seeded"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
