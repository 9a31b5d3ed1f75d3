package eligibility

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"airdrop-eligibility-api/internal/httpclient"
	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/pkg/logger"
)

// Messages returned by APIChecker.
const (
	MsgAPINotConfigured = "Eligibility API not configured for this airdrop"
	MsgUnparsable       = "Could not parse API response"
	MsgAPICallFailed    = "Error calling eligibility API"
)

// APIChecker queries a campaign's partner eligibility endpoint.
type APIChecker struct {
	client *httpclient.Client
}

// NewAPIChecker creates an APIChecker using client for outbound calls.
func NewAPIChecker(client *httpclient.Client) *APIChecker {
	return &APIChecker{client: client}
}

func (c *APIChecker) Methods() []Method {
	return []Method{MethodAPI}
}

func (c *APIChecker) CanHandle(m Method) bool {
	return m == MethodAPI
}

func (c *APIChecker) Check(ctx context.Context, wallet string, campaign models.Campaign) Outcome {
	log := logger.WithWallet(wallet).WithField("campaign", campaign.ID)

	if strings.TrimSpace(campaign.EligibilityAPIURL) == "" {
		log.Warn("Campaign has check method api but no eligibility API URL")
		return negative(MsgAPINotConfigured)
	}

	target := buildCheckURL(campaign.EligibilityAPIURL, wallet)
	log.WithField("url", target).Debug("Checking eligibility")

	resp, err := c.client.Get(ctx, target)
	if err != nil {
		log.Errorf("Error checking eligibility: %v", err)
		return negative(MsgAPICallFailed)
	}

	if !resp.OK() {
		log.WithField("status", resp.StatusCode).Warn("Eligibility API returned non-success status")
		return negative("API returned " + strconv.Itoa(resp.StatusCode))
	}

	out, ok := parseEligibilityBody(resp.Body)
	if !ok {
		log.Warn("Could not parse eligibility response")
		return negative(MsgUnparsable)
	}

	log.WithFields(map[string]interface{}{
		"eligible": out.IsEligible,
		"amount":   out.AllocationAmount,
	}).Debug("Parsed eligibility")
	return out
}

// buildCheckURL appends the wallet as the address query parameter.
func buildCheckURL(apiURL, wallet string) string {
	sep := "?"
	if strings.Contains(apiURL, "?") {
		sep = "&"
	}
	return apiURL + sep + "address=" + url.QueryEscape(wallet)
}
