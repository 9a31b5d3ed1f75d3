package storage

import (
	"context"
	"time"

	"airdrop-eligibility-api/internal/models"
)

// CampaignStore provides access to airdrop campaign metadata.
type CampaignStore interface {
	// UpsertCampaign creates or replaces a campaign by ID.
	UpsertCampaign(ctx context.Context, c models.Campaign) error

	// GetCampaign retrieves a campaign by ID. Returns ErrNotFound if not exists.
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)

	// ListCampaignsByStatus returns campaigns whose status is one of statuses,
	// ordered by ID.
	ListCampaignsByStatus(ctx context.Context, statuses ...models.CampaignStatus) ([]models.Campaign, error)
}

// EligibilityStore provides access to cached eligibility results.
type EligibilityStore interface {
	// UpsertEligibility creates or overwrites the entry for (campaign, wallet).
	UpsertEligibility(ctx context.Context, r models.EligibilityResult) error

	// GetEligibility retrieves the entry for (campaign, wallet). Returns
	// ErrNotFound if not exists.
	GetEligibility(ctx context.Context, campaignID, wallet string) (*models.EligibilityResult, error)

	// ListEligibilityByWallet returns every cached entry for a wallet,
	// most recently checked first.
	ListEligibilityByWallet(ctx context.Context, wallet string) ([]models.EligibilityResult, error)
}

// ProgramStore provides access to points program metadata.
type ProgramStore interface {
	// UpsertProgram creates or replaces a program by ID.
	UpsertProgram(ctx context.Context, p models.PointsProgram) error

	// GetProgram retrieves a program by ID. Returns ErrNotFound if not exists.
	GetProgram(ctx context.Context, id string) (*models.PointsProgram, error)

	// ListProgramsByStatus returns programs with the given status, ordered by ID.
	ListProgramsByStatus(ctx context.Context, status models.ProgramStatus) ([]models.PointsProgram, error)
}

// SnapshotStore provides append-only access to points snapshots.
type SnapshotStore interface {
	// InsertSnapshot appends a snapshot. Returns ErrConflict if a snapshot
	// with the same (wallet, program, sequence) already exists.
	InsertSnapshot(ctx context.Context, s models.PointsSnapshot) error

	// LatestSnapshot returns the snapshot with the greatest snapshot date for
	// (wallet, program). Returns ErrNotFound if none exists.
	LatestSnapshot(ctx context.Context, wallet, programID string) (*models.PointsSnapshot, error)

	// ListSnapshots returns up to limit snapshots for wallet, optionally
	// restricted to one program (programID == ""), newest first.
	ListSnapshots(ctx context.Context, wallet, programID string, limit int) ([]models.PointsSnapshot, error)
}

// WalletStore provides access to wallets tracked for scheduled refreshes.
type WalletStore interface {
	// TrackWallet adds a wallet or updates its label.
	TrackWallet(ctx context.Context, w models.TrackedWallet) error

	// UntrackWallet removes a wallet. Returns ErrNotFound if it was not tracked.
	UntrackWallet(ctx context.Context, wallet string) error

	// ListTrackedWallets returns every tracked wallet ordered by address.
	ListTrackedWallets(ctx context.Context) ([]models.TrackedWallet, error)

	// MarkRefreshed records the time of the last scheduled refresh.
	MarkRefreshed(ctx context.Context, wallet string, at time.Time) error
}

// Store aggregates every storage contract a backend implements.
type Store interface {
	CampaignStore
	EligibilityStore
	ProgramStore
	SnapshotStore
	WalletStore
	Close() error
}
