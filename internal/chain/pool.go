package chain

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"airdrop-eligibility-api/internal/models"
	apperrors "airdrop-eligibility-api/pkg/errors"
	"airdrop-eligibility-api/pkg/logger"
)

// weiDecimals is the exponent between wei and the native unit.
const weiDecimals = 18

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// RPC is the subset of ethclient.Client the pool uses.
type RPC interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer opens an RPC connection to url.
type Dialer func(ctx context.Context, url string) (RPC, error)

// DialEthereum is the production Dialer.
func DialEthereum(ctx context.Context, url string) (RPC, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Pool lazily dials one client per configured chain and reuses it.
type Pool struct {
	endpoints  map[string]string
	dial       Dialer
	maxRetries uint64
	retryDelay time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	clients map[string]RPC
	group   singleflight.Group
}

type PoolOption func(*Pool)

func WithDialer(d Dialer) PoolOption {
	return func(p *Pool) { p.dial = d }
}

func WithRetry(maxRetries int, delay time.Duration) PoolOption {
	return func(p *Pool) {
		if maxRetries >= 0 {
			p.maxRetries = uint64(maxRetries)
		}
		if delay > 0 {
			p.retryDelay = delay
		}
	}
}

func WithPoolClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// NewPool builds a pool over chain name → RPC URL. Names are matched
// case-insensitively; entries with an empty URL are ignored.
func NewPool(endpoints map[string]string, opts ...PoolOption) *Pool {
	p := &Pool{
		endpoints:  make(map[string]string, len(endpoints)),
		dial:       DialEthereum,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		clients:    make(map[string]RPC),
	}
	for name, url := range endpoints {
		if url = strings.TrimSpace(url); url != "" {
			p.endpoints[strings.ToLower(strings.TrimSpace(name))] = url
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chains lists the configured chain names in order.
func (p *Pool) Chains() []string {
	names := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client returns the shared client for chain, dialing it on first use.
// Concurrent first callers share a single dial.
func (p *Pool) Client(ctx context.Context, chain string) (RPC, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	url, ok := p.endpoints[chain]
	if !ok {
		return nil, apperrors.New(apperrors.ErrInvalidChain, "unsupported chain: "+chain, nil)
	}

	p.mu.RLock()
	c, ok := p.clients[chain]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := p.group.Do(chain, func() (interface{}, error) {
		p.mu.RLock()
		existing, ok := p.clients[chain]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}
		client, err := p.dial(ctx, url)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrRPCConnect, "failed to connect to "+chain+" RPC", err)
		}
		p.mu.Lock()
		p.clients[chain] = client
		p.mu.Unlock()
		logger.WithFields(map[string]interface{}{"chain": chain}).Info("Connected to RPC endpoint")
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(RPC), nil
}

// Activity reports the transaction count and native balance of an EVM
// address on chain.
func (p *Pool) Activity(ctx context.Context, chain, address string) (*models.WalletActivity, error) {
	kind, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	if kind != KindEVM {
		return nil, apperrors.New(apperrors.ErrValidation, "chain activity requires an EVM address", nil)
	}
	client, err := p.Client(ctx, chain)
	if err != nil {
		return nil, err
	}
	account := common.HexToAddress(address)

	var nonce uint64
	if err := p.retry(ctx, func() error {
		var err error
		nonce, err = client.NonceAt(ctx, account, nil)
		return err
	}); err != nil {
		return nil, apperrors.New(apperrors.ErrUpstream, "failed to fetch transaction count", err)
	}

	var wei *big.Int
	if err := p.retry(ctx, func() error {
		var err error
		wei, err = client.BalanceAt(ctx, account, nil)
		return err
	}); err != nil {
		return nil, apperrors.New(apperrors.ErrUpstream, "failed to fetch balance", err)
	}
	if wei == nil {
		wei = new(big.Int)
	}

	return &models.WalletActivity{
		Address:          NormalizeAddress(address),
		Chain:            strings.ToLower(strings.TrimSpace(chain)),
		TransactionCount: nonce,
		HasActivity:      nonce > 0,
		NativeBalance:    decimal.NewFromBigInt(wei, -weiDecimals),
		FetchedAt:        p.now().UTC(),
	}, nil
}

func (p *Pool) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)

	return backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, policy, func(err error, d time.Duration) {
		logger.WithFields(map[string]interface{}{"retry_in": d.String()}).Warnf("RPC call failed: %v", err)
	})
}

// Close closes every dialed client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, c := range p.clients {
		c.Close()
		delete(p.clients, name)
	}
}
