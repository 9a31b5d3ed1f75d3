package eligibility

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"airdrop-eligibility-api/internal/cache"
	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
)

// ErrCacheMiss is returned by Cache.Get when no usable entry exists.
var ErrCacheMiss = errors.New("eligibility: cache miss")

// Cache stores the latest outcome per (campaign, wallet). Entries are
// overwritten, never deleted; freshness is decided by the caller.
type Cache interface {
	Get(ctx context.Context, campaignID, wallet string) (*models.EligibilityResult, error)
	Put(ctx context.Context, result models.EligibilityResult) error
}

// Lister is implemented by caches that can enumerate a wallet's entries.
type Lister interface {
	ListByWallet(ctx context.Context, wallet string) ([]models.EligibilityResult, error)
}

// StoreCache keeps entries in the eligibility table of the primary store.
type StoreCache struct {
	store storage.EligibilityStore
}

func NewStoreCache(store storage.EligibilityStore) *StoreCache {
	return &StoreCache{store: store}
}

func (c *StoreCache) Get(ctx context.Context, campaignID, wallet string) (*models.EligibilityResult, error) {
	r, err := c.store.GetEligibility(ctx, campaignID, strings.ToLower(wallet))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	return r, err
}

func (c *StoreCache) Put(ctx context.Context, result models.EligibilityResult) error {
	result.WalletAddress = strings.ToLower(result.WalletAddress)
	return c.store.UpsertEligibility(ctx, result)
}

func (c *StoreCache) ListByWallet(ctx context.Context, wallet string) ([]models.EligibilityResult, error) {
	return c.store.ListEligibilityByWallet(ctx, strings.ToLower(wallet))
}

// KVCache keeps entries as JSON in a key/value cache (Redis or in-memory).
// Entries carry no expiry; CheckedAt decides freshness.
type KVCache struct {
	kv cache.Cache
}

func NewKVCache(kv cache.Cache) *KVCache {
	return &KVCache{kv: kv}
}

func kvKey(campaignID, wallet string) string {
	return fmt.Sprintf("eligibility:%s:%s", campaignID, strings.ToLower(wallet))
}

func (c *KVCache) Get(ctx context.Context, campaignID, wallet string) (*models.EligibilityResult, error) {
	var r models.EligibilityResult
	err := cache.GetJSON(ctx, c.kv, kvKey(campaignID, wallet), &r)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *KVCache) Put(ctx context.Context, result models.EligibilityResult) error {
	result.WalletAddress = strings.ToLower(result.WalletAddress)
	return cache.SetJSON(ctx, c.kv, kvKey(result.CampaignID, result.WalletAddress), result, 0)
}
