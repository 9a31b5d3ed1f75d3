// Package seed holds the curated campaign and points program catalogue.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/pkg/logger"
)

// CampaignUpserter stores a campaign.
type CampaignUpserter interface {
	UpsertCampaign(ctx context.Context, c models.Campaign) (*models.Campaign, error)
}

// ProgramUpserter stores a points program.
type ProgramUpserter interface {
	UpsertProgram(ctx context.Context, p models.PointsProgram) (*models.PointsProgram, error)
}

// Seed upserts the whole catalogue. Running it again overwrites the same
// records, so it is safe to repeat.
func Seed(ctx context.Context, campaigns CampaignUpserter, programs ProgramUpserter) (*models.SeedResponse, error) {
	logger.Info("Starting data seed")

	resp := &models.SeedResponse{}
	for _, c := range Campaigns() {
		if _, err := campaigns.UpsertCampaign(ctx, c); err != nil {
			return resp, fmt.Errorf("seed campaign %s: %w", c.ID, err)
		}
		resp.CampaignsSeeded++
	}
	for _, p := range Programs() {
		if _, err := programs.UpsertProgram(ctx, p); err != nil {
			return resp, fmt.Errorf("seed program %s: %w", p.ID, err)
		}
		resp.ProgramsSeeded++
	}

	logger.WithFields(map[string]interface{}{
		"campaigns": resp.CampaignsSeeded,
		"programs":  resp.ProgramsSeeded,
	}).Info("Seed complete")
	return resp, nil
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func count(n int64) *int64 { return &n }

func usd(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

// Campaigns returns the curated airdrop campaigns.
func Campaigns() []models.Campaign {
	return []models.Campaign{
		{
			ID:                     "starknet-strk",
			Name:                   "Starknet",
			TokenSymbol:            "STRK",
			Chain:                  "ethereum",
			Status:                 models.CampaignClaimable,
			ClaimURL:               "https://provisions.starknet.io/",
			ClaimDeadline:          date(2026, time.June, 15),
			SnapshotDate:           date(2024, time.November, 15),
			Criteria:               []string{"Starknet ecosystem user (bridge, dApp interaction)", "Ethereum staker", "Open source contributor"},
			TotalEligibleAddresses: count(1_300_000),
			AverageAllocationUSD:   usd(450),
			CheckMethod:            "api",
			EligibilityAPIURL:      "https://provisions.starknet.io/api/check",
		},
		{
			ID:                     "layerzero-zro",
			Name:                   "LayerZero",
			TokenSymbol:            "ZRO",
			Chain:                  "ethereum",
			Status:                 models.CampaignClaimable,
			ClaimURL:               "https://layerzero.foundation/eligibility",
			ClaimDeadline:          date(2026, time.September, 30),
			SnapshotDate:           date(2024, time.May, 1),
			Criteria:               []string{"Cross-chain message sender via LayerZero", "Stargate Finance user", "Minimum 50 messages across 2+ chains"},
			TotalEligibleAddresses: count(600_000),
			AverageAllocationUSD:   usd(320),
			CheckMethod:            "merkle",
			EligibilitySource:      "https://github.com/LayerZero-Labs/sybil-report",
		},
		{
			ID:                     "zksync-zk",
			Name:                   "ZKSync",
			TokenSymbol:            "ZK",
			Chain:                  "ethereum",
			Status:                 models.CampaignClaimable,
			ClaimURL:               "https://claim.zknation.io/",
			ClaimDeadline:          date(2026, time.December, 31),
			SnapshotDate:           date(2024, time.March, 24),
			Criteria:               []string{"ZKSync Era transactor", "Bridged assets to ZKSync", "Interacted with ZKSync dApps"},
			TotalEligibleAddresses: count(695_000),
			AverageAllocationUSD:   usd(280),
			CheckMethod:            "merkle",
		},
		{
			ID:                     "wormhole-w",
			Name:                   "Wormhole",
			TokenSymbol:            "W",
			Chain:                  "ethereum",
			Status:                 models.CampaignClaimable,
			ClaimURL:               "https://wormhole.com/airdrop",
			ClaimDeadline:          date(2026, time.April, 3),
			SnapshotDate:           date(2024, time.February, 6),
			Criteria:               []string{"Cross-chain transfers via Wormhole", "Portal Bridge user", "Minimum 3 bridge transactions"},
			TotalEligibleAddresses: count(400_000),
			AverageAllocationUSD:   usd(200),
			CheckMethod:            "api",
		},
		{
			ID:                "scroll-scr",
			Name:              "Scroll",
			TokenSymbol:       "SCR",
			Chain:             "ethereum",
			Status:            models.CampaignUpcoming,
			Criteria:          []string{"Scroll Marks holder (Session 1-3)", "Deployed contracts on Scroll", "Active DeFi participation on Scroll"},
			CheckMethod:       "manual",
			EligibilitySource: "Scroll Marks dashboard",
		},
		{
			ID:                "linea-lxp",
			Name:              "Linea",
			TokenSymbol:       "LXP",
			Chain:             "ethereum",
			Status:            models.CampaignUpcoming,
			Criteria:          []string{"Linea Voyage participant", "LXP token holder", "Bridged to Linea mainnet"},
			CheckMethod:       "manual",
			EligibilitySource: "Linea Voyage dashboard",
		},
		{
			ID:          "debridge-dbr",
			Name:        "deBridge",
			TokenSymbol: "DBR",
			Chain:       "ethereum",
			Status:      models.CampaignUpcoming,
			Criteria:    []string{"deBridge cross-chain transfer user", "deSwap user", "Points accumulated via deBridge Points"},
			CheckMethod: "api",
		},
		{
			ID:                     "arbitrum-arb",
			Name:                   "Arbitrum",
			TokenSymbol:            "ARB",
			Chain:                  "arbitrum",
			Status:                 models.CampaignExpired,
			ClaimURL:               "https://arbitrum.foundation/airdrop",
			ClaimDeadline:          date(2024, time.September, 24),
			SnapshotDate:           date(2023, time.February, 6),
			Criteria:               []string{"Arbitrum One bridge user", "Conducted transactions on Arbitrum One", "Bridged before cutoff date"},
			TotalEligibleAddresses: count(625_000),
			AverageAllocationUSD:   usd(2100),
			CheckMethod:            "merkle",
		},
		{
			ID:                     "optimism-op",
			Name:                   "Optimism",
			TokenSymbol:            "OP",
			Chain:                  "optimism",
			Status:                 models.CampaignExpired,
			ClaimURL:               "https://app.optimism.io/airdrop/check",
			ClaimDeadline:          date(2023, time.September, 14),
			SnapshotDate:           date(2022, time.March, 25),
			Criteria:               []string{"Optimism early user (bridge + transactions)", "Repeat Optimism user", "DAO voter", "Multi-sig signer"},
			TotalEligibleAddresses: count(248_000),
			AverageAllocationUSD:   usd(1200),
			CheckMethod:            "merkle",
		},
		{
			ID:                     "blur-blur",
			Name:                   "Blur",
			TokenSymbol:            "BLUR",
			Chain:                  "ethereum",
			Status:                 models.CampaignExpired,
			ClaimURL:               "https://blur.io/airdrop",
			ClaimDeadline:          date(2024, time.June, 14),
			SnapshotDate:           date(2023, time.February, 14),
			Criteria:               []string{"NFT trader on Blur marketplace", "Listed NFTs on Blur", "Placed bids on Blur"},
			TotalEligibleAddresses: count(124_000),
			AverageAllocationUSD:   usd(1850),
			CheckMethod:            "merkle",
		},
	}
}

// Programs returns the curated points programs. Protocol names match the
// provider registrations in internal/points.
func Programs() []models.PointsProgram {
	return []models.PointsProgram{
		{
			ID:               "hyperliquid-points",
			ProtocolName:     "Hyperliquid",
			PointsName:       "Points",
			Chain:            "arbitrum",
			Status:           models.ProgramActive,
			DashboardURL:     "https://app.hyperliquid.xyz/points",
			APIEndpoint:      "https://api.hyperliquid.xyz/info",
			TrackingMethod:   "api",
			EstimatedTGEDate: "TBD",
			TokenSymbol:      "HYPE",
		},
		{
			ID:               "eigenlayer-points",
			ProtocolName:     "EigenLayer",
			PointsName:       "Restaked Points",
			Chain:            "ethereum",
			Status:           models.ProgramActive,
			DashboardURL:     "https://app.eigenlayer.xyz/",
			APIEndpoint:      "https://claims.eigenfoundation.org/clique-eigenlayer-api",
			TrackingMethod:   "api",
			EstimatedTGEDate: "Season 3 ongoing",
			TokenSymbol:      "EIGEN",
		},
		{
			ID:               "ethena-sats",
			ProtocolName:     "Ethena",
			PointsName:       "Sats",
			Chain:            "ethereum",
			Status:           models.ProgramActive,
			DashboardURL:     "https://app.ethena.fi/earn",
			APIEndpoint:      "https://app.ethena.fi/api/users/points",
			TrackingMethod:   "api",
			EstimatedTGEDate: "Season 3 ongoing",
			TokenSymbol:      "ENA",
		},
		{
			ID:               "scroll-marks",
			ProtocolName:     "Scroll",
			PointsName:       "Marks",
			Chain:            "ethereum",
			Status:           models.ProgramActive,
			DashboardURL:     "https://scroll.io/sessions",
			TrackingMethod:   "manual",
			EstimatedTGEDate: "2026 H1",
		},
	}
}
