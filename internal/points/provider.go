// Package points tracks protocol points balances. Providers fetch a live
// reading from a protocol; the Aggregator turns readings into an
// append-only snapshot history with per-snapshot deltas.
package points

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"airdrop-eligibility-api/internal/httpclient"
	"airdrop-eligibility-api/pkg/logger"
)

// Reading is one live points value reported by a protocol.
type Reading struct {
	Points            decimal.Decimal
	Rank              *int
	Percentile        *decimal.Decimal
	EstimatedValueUSD *decimal.Decimal
}

// Provider fetches points for a wallet from one protocol. FetchPoints
// returns (nil, nil) when the protocol has nothing usable for the wallet,
// including when it stayed unreachable through the client's retries. An
// error means the caller's context ended.
type Provider interface {
	ProtocolName() string
	CanHandle(protocol string) bool
	FetchPoints(ctx context.Context, wallet string) (*Reading, error)
}

// httpProvider holds what every HTTP-backed provider shares.
type httpProvider struct {
	name    string
	baseURL string
	client  *httpclient.Client
}

func (p httpProvider) ProtocolName() string {
	return p.name
}

func (p httpProvider) CanHandle(protocol string) bool {
	return strings.EqualFold(strings.TrimSpace(protocol), p.name)
}

// unreachable logs a transport failure. It returns the context error when
// the caller gave up and nil otherwise.
func (p httpProvider) unreachable(ctx context.Context, wallet string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.WithWallet(wallet).WithField("protocol", p.name).Warnf("Points API unreachable: %v", err)
	return nil
}

// decode reads a successful JSON response into dest. It returns false, with
// a warning logged, for non-2xx statuses and bodies that do not decode.
func (p httpProvider) decode(wallet string, resp *httpclient.Response, dest interface{}) bool {
	log := logger.WithWallet(wallet).WithField("protocol", p.name)
	if !resp.OK() {
		log.WithField("status", resp.StatusCode).Warn("Points API returned non-success status")
		return false
	}
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		log.Warnf("Could not parse points response: %v", err)
		return false
	}
	return true
}
