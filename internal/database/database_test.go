package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCampaignUpsertAndStatusFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	deadline := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	total := int64(1300000)
	campaigns := []models.Campaign{
		{ID: "starknet-strk", Name: "Starknet", TokenSymbol: "STRK", Chain: "starknet",
			Status: models.CampaignClaimable, CheckMethod: "api", ClaimDeadline: &deadline,
			Criteria: []string{"bridge", "dev"}, TotalEligibleAddresses: &total, AverageAllocationUSD: decPtr("1200")},
		{ID: "scroll-scr", Name: "Scroll", TokenSymbol: "SCR", Chain: "scroll",
			Status: models.CampaignUpcoming, CheckMethod: "manual"},
		{ID: "old-drop", Name: "Old", TokenSymbol: "OLD", Chain: "ethereum",
			Status: models.CampaignExpired, CheckMethod: "merkle"},
	}
	for _, c := range campaigns {
		require.NoError(t, db.UpsertCampaign(ctx, c))
	}

	got, err := db.GetCampaign(ctx, "starknet-strk")
	require.NoError(t, err)
	assert.Equal(t, "STRK", got.TokenSymbol)
	assert.Equal(t, []string{"bridge", "dev"}, got.Criteria)
	require.NotNil(t, got.ClaimDeadline)
	assert.True(t, deadline.Equal(*got.ClaimDeadline))
	require.NotNil(t, got.TotalEligibleAddresses)
	assert.Equal(t, total, *got.TotalEligibleAddresses)
	assert.True(t, decimal.NewFromInt(1200).Equal(*got.AverageAllocationUSD))

	active, err := db.ListCampaignsByStatus(ctx, models.CampaignClaimable, models.CampaignUpcoming)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "scroll-scr", active[0].ID)
	assert.Equal(t, "starknet-strk", active[1].ID)

	campaigns[1].Status = models.CampaignExpired
	require.NoError(t, db.UpsertCampaign(ctx, campaigns[1]))
	active, err = db.ListCampaignsByStatus(ctx, models.CampaignClaimable, models.CampaignUpcoming)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = db.GetCampaign(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEligibilityUpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	checkedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := models.EligibilityResult{
		CampaignID:       "starknet-strk",
		WalletAddress:    "0xABCDEF0000000000000000000000000000000001",
		IsEligible:       true,
		AllocationAmount: decPtr("1500"),
		MerkleProof:      []string{"0xaa", "0xbb"},
		CheckedAt:        checkedAt,
	}
	require.NoError(t, db.UpsertEligibility(ctx, first))

	got, err := db.GetEligibility(ctx, "starknet-strk", "0xabcdef0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", got.WalletAddress)
	assert.True(t, got.IsEligible)
	assert.Equal(t, []string{"0xaa", "0xbb"}, got.MerkleProof)
	assert.True(t, decimal.NewFromInt(1500).Equal(*got.AllocationAmount))
	assert.Nil(t, got.AllocationUSD)

	second := first
	second.IsEligible = false
	second.AllocationAmount = nil
	second.MerkleProof = nil
	second.ErrorMessage = "API returned 500"
	second.CheckedAt = checkedAt.Add(time.Hour)
	require.NoError(t, db.UpsertEligibility(ctx, second))

	all, err := db.ListEligibilityByWallet(ctx, first.WalletAddress)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsEligible)
	assert.Equal(t, "API returned 500", all[0].ErrorMessage)
	assert.True(t, second.CheckedAt.Equal(all[0].CheckedAt))

	_, err = db.GetEligibility(ctx, "other", first.WalletAddress)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotHistoryAndConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	wallet := "0x00000000000000000000000000000000000000aa"
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertSnapshot(ctx, models.PointsSnapshot{
			ID:            uuid.New().String(),
			WalletAddress: wallet,
			ProgramID:     "eigenlayer",
			ProtocolName:  "EigenLayer",
			Points:        decimal.NewFromInt(int64(100 + i*10)),
			Sequence:      int64(i + 1),
			SnapshotDate:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, db.InsertSnapshot(ctx, models.PointsSnapshot{
		ID: uuid.New().String(), WalletAddress: wallet, ProgramID: "ethena", ProtocolName: "Ethena",
		Points: decimal.NewFromInt(5), Sequence: 1, SnapshotDate: base.Add(10 * time.Hour),
	}))

	err := db.InsertSnapshot(ctx, models.PointsSnapshot{
		ID: uuid.New().String(), WalletAddress: wallet, ProgramID: "eigenlayer", ProtocolName: "EigenLayer",
		Points: decimal.NewFromInt(999), Sequence: 3, SnapshotDate: base.Add(20 * time.Hour),
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	latest, err := db.LatestSnapshot(ctx, wallet, "eigenlayer")
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest.Sequence)
	assert.True(t, decimal.NewFromInt(120).Equal(latest.Points))

	history, err := db.ListSnapshots(ctx, wallet, "eigenlayer", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(3), history[0].Sequence)
	assert.Equal(t, int64(2), history[1].Sequence)

	all, err := db.ListSnapshots(ctx, wallet, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "ethena", all[0].ProgramID)

	_, err = db.LatestSnapshot(ctx, wallet, "hyperliquid")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProgramsAndTrackedWallets(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProgram(ctx, models.PointsProgram{
		ID: "eigenlayer", ProtocolName: "EigenLayer", PointsName: "Restaked Points",
		Chain: "ethereum", Status: models.ProgramActive, TrackingMethod: "api",
	}))
	require.NoError(t, db.UpsertProgram(ctx, models.PointsProgram{
		ID: "blast", ProtocolName: "Blast", PointsName: "Blast Points",
		Chain: "blast", Status: models.ProgramEnded, TrackingMethod: "manual",
	}))

	active, err := db.ListProgramsByStatus(ctx, models.ProgramActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "eigenlayer", active[0].ID)

	_, err = db.GetProgram(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	wallet := "0xAbC0000000000000000000000000000000000001"
	require.NoError(t, db.TrackWallet(ctx, models.TrackedWallet{WalletAddress: wallet, Label: "main"}))
	require.NoError(t, db.TrackWallet(ctx, models.TrackedWallet{WalletAddress: wallet, Label: "renamed"}))

	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.MarkRefreshed(ctx, wallet, at))

	tracked, err := db.ListTrackedWallets(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", tracked[0].WalletAddress)
	assert.Equal(t, "renamed", tracked[0].Label)
	require.NotNil(t, tracked[0].LastRefreshed)
	assert.True(t, at.Equal(*tracked[0].LastRefreshed))

	require.NoError(t, db.UntrackWallet(ctx, wallet))
	assert.ErrorIs(t, db.UntrackWallet(ctx, wallet), storage.ErrNotFound)
}
