package eligibility

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEligibilityBody_Aliases(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		eligible bool
		amount   string
		usd      string
		claimed  bool
	}{
		{
			name:     "canonical fields",
			body:     `{"eligible": true, "amount": 1500, "amountUsd": 300.5, "claimed": true}`,
			eligible: true, amount: "1500", usd: "300.5", claimed: true,
		},
		{
			name:     "camel case aliases",
			body:     `{"isEligible": true, "allocationAmount": "42.1", "allocationUsd": "10", "hasClaimed": false}`,
			eligible: true, amount: "42.1", usd: "10",
		},
		{
			name:     "snake case aliases",
			body:     `{"is_eligible": "true", "token_amount": "7", "usd_value": 3, "isClaimed": "true"}`,
			eligible: true, amount: "7", usd: "3", claimed: true,
		},
		{
			name:   "eligibility inferred from positive amount",
			body:   `{"allocation": 12}`,
			amount: "12", eligible: true,
		},
		{
			name:   "zero amount means not eligible",
			body:   `{"allocation": 0}`,
			amount: "0",
		},
		{
			name:     "explicit flag beats amount",
			body:     `{"eligible": false, "amount": 99}`,
			amount:   "99",
			eligible: false,
		},
		{
			name: "no known fields",
			body: `{"status": "ok"}`,
		},
		{
			name:     "first parseable alias wins",
			body:     `{"eligible": "maybe", "isEligible": true, "amount": "n/a", "allocation": 5}`,
			eligible: true, amount: "5",
		},
		{
			name:     "null flag falls back to amount",
			body:     `{"eligible": null, "amount": "5"}`,
			eligible: true, amount: "5",
		},
		{
			name:     "null flag falls through to later alias",
			body:     `{"eligible": null, "isEligible": true}`,
			eligible: true,
		},
		{
			name:     "null amount falls through to later alias",
			body:     `{"amount": null, "allocation": 3, "claimed": null, "hasClaimed": true}`,
			eligible: true, amount: "3", claimed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := parseEligibilityBody([]byte(tt.body))
			require.True(t, ok)
			assert.Equal(t, tt.eligible, out.IsEligible)
			assert.Equal(t, tt.claimed, out.HasClaimed)
			assertDecimal(t, tt.amount, out.AllocationAmount)
			assertDecimal(t, tt.usd, out.AllocationUSD)
		})
	}
}

func TestParseEligibilityBody_Invalid(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `null`, `"eligible"`} {
		_, ok := parseEligibilityBody([]byte(body))
		assert.False(t, ok, body)
	}
}

func TestParseEligibilityBody_Proof(t *testing.T) {
	out, ok := parseEligibilityBody([]byte(`{"eligible": true, "proof": ["0x01", "0x02"]}`))
	require.True(t, ok)
	assert.Equal(t, []string{"0x01", "0x02"}, out.MerkleProof)
}

func assertDecimal(t *testing.T, want string, got *decimal.Decimal) {
	t.Helper()
	if want == "" {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.True(t, decimal.RequireFromString(want).Equal(*got), "want %s got %s", want, got)
}
