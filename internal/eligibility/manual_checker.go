package eligibility

import (
	"context"

	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/pkg/logger"
)

const (
	MsgManualVerification = "Manual verification required"
	MsgCheckClaimPage     = "Check the claim page directly to verify eligibility"
)

// ManualChecker handles campaigns whose eligibility cannot be automated.
// It never reports a wallet as eligible.
type ManualChecker struct{}

func NewManualChecker() *ManualChecker {
	return &ManualChecker{}
}

func (c *ManualChecker) Methods() []Method {
	return []Method{MethodManual, MethodMerkle}
}

func (c *ManualChecker) CanHandle(m Method) bool {
	return m == MethodManual || m == MethodMerkle
}

func (c *ManualChecker) Check(ctx context.Context, wallet string, campaign models.Campaign) Outcome {
	logger.WithWallet(wallet).WithField("campaign", campaign.ID).Debug("Eligibility cannot be automated")

	if ParseMethod(campaign.CheckMethod) == MethodMerkle {
		return negative(MsgCheckClaimPage)
	}
	return negative(MsgManualVerification)
}
