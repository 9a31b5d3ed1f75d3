package points

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/httpclient"
	"airdrop-eligibility-api/pkg/logger"
)

const EigenLayerBaseURL = "https://claims.eigenfoundation.org/clique-eigenlayer-api/campaign/eigenlayer/credentials"

// EigenLayerProvider reads restaking points from the EigenLayer claims API.
type EigenLayerProvider struct {
	httpProvider
}

func NewEigenLayerProvider(client *httpclient.Client, baseURL string) *EigenLayerProvider {
	if baseURL == "" {
		baseURL = EigenLayerBaseURL
	}
	return &EigenLayerProvider{httpProvider{name: "EigenLayer", baseURL: baseURL, client: client}}
}

type eigenLayerResponse struct {
	Data *struct {
		EigenLayerPoints       decimal.Decimal  `json:"eigenLayerPoints"`
		BeaconChainETHRestaked *decimal.Decimal `json:"beaconChainETHRestaked"`
		LRTPoints              *decimal.Decimal `json:"lrtPoints"`
	} `json:"data"`
}

func (p *EigenLayerProvider) FetchPoints(ctx context.Context, wallet string) (*Reading, error) {
	wallet = strings.ToLower(wallet)
	resp, err := p.client.Get(ctx, p.baseURL+"?walletAddress="+url.QueryEscape(wallet))
	if err != nil {
		return nil, p.unreachable(ctx, wallet, err)
	}

	var body eigenLayerResponse
	if !p.decode(wallet, resp, &body) {
		return nil, nil
	}
	if body.Data == nil {
		logger.WithWallet(wallet).Warn("EigenLayer response has no data")
		return nil, nil
	}
	return &Reading{Points: body.Data.EigenLayerPoints}, nil
}
