package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-eligibility-api/internal/models"
	apperrors "airdrop-eligibility-api/pkg/errors"
)

func validCampaign() models.Campaign {
	return models.Campaign{
		Name:              "  Starknet Provisions ",
		TokenSymbol:       "strk",
		Chain:             "Starknet",
		Status:            models.CampaignClaimable,
		CheckMethod:       "API",
		EligibilityAPIURL: "https://provisions.starknet.io/api/check",
		Criteria:          []string{"Bridged before snapshot", "  ", "Used 3+ dapps"},
	}
}

func TestValidateCampaign_NormalizesAndDerivesID(t *testing.T) {
	c := validCampaign()
	require.NoError(t, ValidateCampaign(&c))

	assert.Equal(t, "starknet-provisions", c.ID)
	assert.Equal(t, "Starknet Provisions", c.Name)
	assert.Equal(t, "STRK", c.TokenSymbol)
	assert.Equal(t, "starknet", c.Chain)
	assert.Equal(t, "api", c.CheckMethod)
	assert.Equal(t, []string{"Bridged before snapshot", "Used 3+ dapps"}, c.Criteria)
}

func TestValidateCampaign_Defaults(t *testing.T) {
	c := models.Campaign{ID: "scroll-scr", Name: "Scroll", TokenSymbol: "SCR"}
	require.NoError(t, ValidateCampaign(&c))
	assert.Equal(t, models.CampaignUpcoming, c.Status)
	assert.Equal(t, "manual", c.CheckMethod)
	assert.NotNil(t, c.Criteria)
}

func TestValidateCampaign_Errors(t *testing.T) {
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(24 * time.Hour)
	negative := int64(-1)
	negUSD := decimal.NewFromInt(-5)

	tests := []struct {
		name   string
		mutate func(*models.Campaign)
		field  string
	}{
		{"missing name", func(c *models.Campaign) { c.Name = "" }, "name"},
		{"bad id", func(c *models.Campaign) { c.ID = "Bad ID!" }, "id"},
		{"reserved id", func(c *models.Campaign) { c.ID = "Cached" }, "id"},
		{"reserved id from name", func(c *models.Campaign) {
			c.ID = ""
			c.Name = "Cached"
		}, "id"},
		{"missing symbol", func(c *models.Campaign) { c.TokenSymbol = "" }, "token_symbol"},
		{"symbol too long", func(c *models.Campaign) { c.TokenSymbol = strings.Repeat("A", 17) }, "token_symbol"},
		{"bad status", func(c *models.Campaign) { c.Status = "live" }, "status"},
		{"bad method", func(c *models.Campaign) { c.CheckMethod = "oracle" }, "check_method"},
		{"relative url", func(c *models.Campaign) { c.EligibilityAPIURL = "/api/check" }, "eligibility_api_url"},
		{"ftp claim url", func(c *models.Campaign) { c.ClaimURL = "ftp://claim.example" }, "claim_url"},
		{"deadline before snapshot", func(c *models.Campaign) {
			c.SnapshotDate = &later
			c.ClaimDeadline = &earlier
		}, "claim_deadline"},
		{"too many criteria", func(c *models.Campaign) { c.Criteria = make([]string, 51) }, "criteria"},
		{"negative addresses", func(c *models.Campaign) { c.TotalEligibleAddresses = &negative }, "total_eligible_addresses"},
		{"negative usd", func(c *models.Campaign) { c.AverageAllocationUSD = &negUSD }, "average_allocation_usd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCampaign()
			tt.mutate(&c)
			err := ValidateCampaign(&c)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestValidateProgram(t *testing.T) {
	p := models.PointsProgram{
		ProtocolName:   "Ethena",
		PointsName:     "Sats",
		TrackingMethod: "API",
		DashboardURL:   "https://app.ethena.fi/join",
	}
	require.NoError(t, ValidateProgram(&p))
	assert.Equal(t, "ethena", p.ID)
	assert.Equal(t, models.ProgramActive, p.Status)
	assert.Equal(t, "api", p.TrackingMethod)

	bad := models.PointsProgram{ProtocolName: "X", PointsName: "Y", TrackingMethod: "rpc"}
	err := ValidateProgram(&bad)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "tracking_method", ve.Field)

	missing := models.PointsProgram{ProtocolName: "X"}
	require.ErrorAs(t, ValidateProgram(&missing), &ve)
	assert.Equal(t, "points_name", ve.Field)

	for _, id := range []string{"history", "refresh"} {
		reserved := models.PointsProgram{ID: id, ProtocolName: "X", PointsName: "Y"}
		require.ErrorAs(t, ValidateProgram(&reserved), &ve, id)
		assert.Equal(t, "id", ve.Field)
	}
}

func TestValidateWallet(t *testing.T) {
	assert.NoError(t, ValidateWallet("0xAbCdEf0000000000000000000000000000000001"))
	assert.NoError(t, ValidateWallet("11111111111111111111111111111111"))

	err := ValidateWallet("not-a-wallet")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestParseLimit(t *testing.T) {
	n, err := ParseLimit("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = ParseLimit(" 25 ")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = ParseLimit("ten")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello\tworld", SanitizeString("  hel\x00lo\tworld\x07 "))
}
