package points

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/httpclient"
)

const EthenaBaseURL = "https://app.ethena.fi/api/users/points"

// EthenaProvider reads sats from the Ethena points API.
type EthenaProvider struct {
	httpProvider
}

func NewEthenaProvider(client *httpclient.Client, baseURL string) *EthenaProvider {
	if baseURL == "" {
		baseURL = EthenaBaseURL
	}
	return &EthenaProvider{httpProvider{name: "Ethena", baseURL: strings.TrimRight(baseURL, "/"), client: client}}
}

type ethenaResponse struct {
	TotalSats    decimal.Decimal  `json:"totalSats"`
	Rank         *int             `json:"rank"`
	HoldingSats  *decimal.Decimal `json:"holdingSats"`
	ReferralSats *decimal.Decimal `json:"referralSats"`
}

func (p *EthenaProvider) FetchPoints(ctx context.Context, wallet string) (*Reading, error) {
	wallet = strings.ToLower(wallet)
	resp, err := p.client.Get(ctx, p.baseURL+"/"+url.PathEscape(wallet))
	if err != nil {
		return nil, p.unreachable(ctx, wallet, err)
	}

	var body ethenaResponse
	if !p.decode(wallet, resp, &body) {
		return nil, nil
	}
	return &Reading{Points: body.TotalSats, Rank: body.Rank}, nil
}
