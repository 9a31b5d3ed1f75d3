package points

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/httpclient"
)

const HyperliquidBaseURL = "https://api.hyperliquid.xyz/info"

// HyperliquidProvider reads points from the Hyperliquid info endpoint.
type HyperliquidProvider struct {
	httpProvider
}

func NewHyperliquidProvider(client *httpclient.Client, baseURL string) *HyperliquidProvider {
	if baseURL == "" {
		baseURL = HyperliquidBaseURL
	}
	return &HyperliquidProvider{httpProvider{name: "Hyperliquid", baseURL: baseURL, client: client}}
}

type hyperliquidRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type hyperliquidResponse struct {
	TotalPoints    decimal.Decimal  `json:"totalPoints"`
	Rank           *int             `json:"rank"`
	ReferralPoints *decimal.Decimal `json:"referralPoints"`
	TradingPoints  *decimal.Decimal `json:"tradingPoints"`
	StakingPoints  *decimal.Decimal `json:"stakingPoints"`
}

func (p *HyperliquidProvider) FetchPoints(ctx context.Context, wallet string) (*Reading, error) {
	wallet = strings.ToLower(wallet)
	resp, err := p.client.PostJSON(ctx, p.baseURL, hyperliquidRequest{Type: "userPoints", User: wallet})
	if err != nil {
		return nil, p.unreachable(ctx, wallet, err)
	}

	var body hyperliquidResponse
	if !p.decode(wallet, resp, &body) {
		return nil, nil
	}
	return &Reading{Points: body.TotalPoints, Rank: body.Rank}, nil
}
