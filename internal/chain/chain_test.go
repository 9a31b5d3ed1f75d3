package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "airdrop-eligibility-api/pkg/errors"
)

const evmWallet = "0xAbCdEf0000000000000000000000000000000001"

type fakeRPC struct {
	nonce      uint64
	balance    *big.Int
	nonceFails int32
	nonceCalls atomic.Int32
	closed     atomic.Bool
}

func (f *fakeRPC) NonceAt(ctx context.Context, account common.Address, _ *big.Int) (uint64, error) {
	if f.nonceCalls.Add(1) <= f.nonceFails {
		return 0, errors.New("connection reset")
	}
	return f.nonce, nil
}

func (f *fakeRPC) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeRPC) Close() { f.closed.Store(true) }

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		kind    Kind
		wantErr bool
	}{
		{"evm mixed case", evmWallet, KindEVM, false},
		{"evm short", "0x1234", "", true},
		{"evm bad hex", "0xZZcdef0000000000000000000000000000000001", "", true},
		{"solana", "11111111111111111111111111111111", KindSolana, false},
		{"solana wrong length", "3yZe7d", "", true},
		{"not base58", "0OIl-not-an-address", "", true},
		{"empty", "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := ValidateAddress(tt.address)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestPool_Activity(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	rpc := &fakeRPC{nonce: 42, balance: wei}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pool := NewPool(map[string]string{"Ethereum": "http://eth"},
		WithDialer(func(ctx context.Context, url string) (RPC, error) { return rpc, nil }),
		WithPoolClock(func() time.Time { return fixed }),
	)

	act, err := pool.Activity(context.Background(), "ethereum", evmWallet)
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", act.Address)
	assert.Equal(t, "ethereum", act.Chain)
	assert.Equal(t, uint64(42), act.TransactionCount)
	assert.True(t, act.HasActivity)
	assert.Equal(t, "1.5", act.NativeBalance.String())
	assert.Equal(t, fixed, act.FetchedAt)
}

func TestPool_ActivityNoTransactions(t *testing.T) {
	pool := NewPool(map[string]string{"base": "http://base"},
		WithDialer(func(ctx context.Context, url string) (RPC, error) { return &fakeRPC{}, nil }),
	)
	act, err := pool.Activity(context.Background(), "base", evmWallet)
	require.NoError(t, err)
	assert.False(t, act.HasActivity)
	assert.True(t, act.NativeBalance.IsZero())
}

func TestPool_UnknownChain(t *testing.T) {
	pool := NewPool(map[string]string{"ethereum": "http://eth", "polygon": ""})
	_, err := pool.Activity(context.Background(), "polygon", evmWallet)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidChain, apperrors.Code(err))
	assert.Equal(t, []string{"ethereum"}, pool.Chains())
}

func TestPool_RejectsSolanaAddress(t *testing.T) {
	pool := NewPool(map[string]string{"ethereum": "http://eth"})
	_, err := pool.Activity(context.Background(), "ethereum", "11111111111111111111111111111111")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestPool_DialError(t *testing.T) {
	pool := NewPool(map[string]string{"ethereum": "http://eth"},
		WithDialer(func(ctx context.Context, url string) (RPC, error) { return nil, errors.New("refused") }),
	)
	_, err := pool.Client(context.Background(), "ethereum")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrRPCConnect, apperrors.Code(err))
}

func TestPool_RetriesTransientErrors(t *testing.T) {
	rpc := &fakeRPC{nonce: 1, balance: big.NewInt(0), nonceFails: 2}
	pool := NewPool(map[string]string{"ethereum": "http://eth"},
		WithDialer(func(ctx context.Context, url string) (RPC, error) { return rpc, nil }),
		WithRetry(3, time.Millisecond),
	)
	act, err := pool.Activity(context.Background(), "ethereum", evmWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), act.TransactionCount)
	assert.Equal(t, int32(3), rpc.nonceCalls.Load())
}

func TestPool_GivesUpAfterMaxRetries(t *testing.T) {
	rpc := &fakeRPC{nonceFails: 100}
	pool := NewPool(map[string]string{"ethereum": "http://eth"},
		WithDialer(func(ctx context.Context, url string) (RPC, error) { return rpc, nil }),
		WithRetry(2, time.Millisecond),
	)
	_, err := pool.Activity(context.Background(), "ethereum", evmWallet)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUpstream, apperrors.Code(err))
	assert.Equal(t, int32(3), rpc.nonceCalls.Load())
}

func TestPool_DialsOncePerChain(t *testing.T) {
	var dials atomic.Int32
	rpc := &fakeRPC{}
	pool := NewPool(map[string]string{"arbitrum": "http://arb"},
		WithDialer(func(ctx context.Context, url string) (RPC, error) {
			dials.Add(1)
			time.Sleep(10 * time.Millisecond)
			return rpc, nil
		}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Client(context.Background(), "arbitrum")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), dials.Load())

	pool.Close()
	assert.True(t, rpc.closed.Load())
}
