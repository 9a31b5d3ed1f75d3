package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-eligibility-api/internal/chain"
	"airdrop-eligibility-api/internal/database"
	"airdrop-eligibility-api/internal/eligibility"
	"airdrop-eligibility-api/internal/features"
	"airdrop-eligibility-api/internal/httpclient"
	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/points"
	"airdrop-eligibility-api/internal/seed"
)

const (
	wallet      = "0xAbCdEf0000000000000000000000000000000001"
	walletLower = "0xabcdef0000000000000000000000000000000001"
)

type fakeRPC struct{}

func (fakeRPC) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) { return 12, nil }
func (fakeRPC) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(250_000_000_000_000_000), nil
}
func (fakeRPC) Close() {}

type fixture struct {
	router   *chi.Mux
	db       *database.DB
	features *features.Manager
}

func setupTestHandler(t *testing.T) *fixture {
	t.Helper()

	partner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/elig"):
			w.Write([]byte(`{"eligible": true, "amount": "1500"}`))
		case strings.HasPrefix(r.URL.Path, "/ethena/"):
			w.Write([]byte(`{"totalSats": 1234.5, "rank": 7}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(partner.Close)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, db.UpsertCampaign(ctx, models.Campaign{
		ID: "alpha-alp", Name: "Alpha", TokenSymbol: "ALP", Status: models.CampaignClaimable,
		CheckMethod: "api", EligibilityAPIURL: partner.URL + "/elig", Criteria: []string{"Bridged"},
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, db.UpsertCampaign(ctx, models.Campaign{
		ID: "beta-bet", Name: "Beta", TokenSymbol: "BET", Status: models.CampaignUpcoming,
		CheckMethod: "manual", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, db.UpsertProgram(ctx, models.PointsProgram{
		ID: "ethena-sats", ProtocolName: "Ethena", PointsName: "Sats", Status: models.ProgramActive,
		TrackingMethod: "api", CreatedAt: now, LastUpdated: now,
	}))
	require.NoError(t, db.UpsertProgram(ctx, models.PointsProgram{
		ID: "scroll-marks", ProtocolName: "Scroll", PointsName: "Marks", Status: models.ProgramActive,
		TrackingMethod: "manual", CreatedAt: now, LastUpdated: now,
	}))

	client := httpclient.New(httpclient.WithMaxRetries(0), httpclient.WithTimeout(5*time.Second))
	flags := features.NewManager()
	flags.RegisterDefaults(features.Defaults{CacheEnabled: true, ChainActivity: true})

	elig := eligibility.NewAggregator(db,
		eligibility.NewRegistry(eligibility.NewAPIChecker(client), eligibility.NewManualChecker()),
		eligibility.NewStoreCache(db),
		eligibility.WithFeatures(flags),
	)
	pts := points.NewAggregator(db,
		[]points.Provider{points.NewEthenaProvider(client, partner.URL+"/ethena")},
		points.WithFeatures(flags),
	)
	pool := chain.NewPool(map[string]string{"ethereum": "http://rpc.invalid"},
		chain.WithDialer(func(ctx context.Context, url string) (chain.RPC, error) { return fakeRPC{}, nil }),
	)

	h := NewHandlerWithOptions(elig, pts, db, NewHandlerOptions{
		MaxBodySize: 1 << 16,
		Activity:    pool,
		Features:    flags,
	})
	r := chi.NewRouter()
	h.Routes(r)

	return &fixture{router: r, db: db, features: flags}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	f := setupTestHandler(t)
	rr := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestInvalidWallet(t *testing.T) {
	f := setupTestHandler(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/wallets/not-a-wallet/eligibility"},
		{http.MethodGet, "/wallets/0x1234/points"},
		{http.MethodPost, "/wallets/0x1234/track"},
	} {
		rr := f.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, tc.path)
	}
}

func TestCheckAll(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodGet, "/wallets/"+wallet+"/eligibility", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[models.EligibilityResponse](t, rr)
	assert.Equal(t, walletLower, resp.WalletAddress)
	require.Len(t, resp.Checks, 2)

	byID := map[string]models.EligibilityCheck{}
	for _, c := range resp.Checks {
		byID[c.CampaignID] = c
	}
	alpha := byID["alpha-alp"]
	assert.True(t, alpha.IsEligible)
	require.NotNil(t, alpha.AllocationAmount)
	assert.Equal(t, "1500", alpha.AllocationAmount.String())
	assert.Equal(t, []string{"Bridged"}, alpha.Criteria)

	beta := byID["beta-bet"]
	assert.False(t, beta.IsEligible)
	assert.Equal(t, eligibility.MsgManualVerification, beta.ErrorMessage)
}

func TestCheckOne(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodGet, "/wallets/"+wallet+"/eligibility/alpha-alp", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	check := decode[models.EligibilityCheck](t, rr)
	assert.True(t, check.IsEligible)

	rr = f.do(t, http.MethodGet, "/wallets/"+wallet+"/eligibility/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCachedEligibility(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodGet, "/wallets/"+wallet+"/eligibility/cached", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	f.do(t, http.MethodGet, "/wallets/"+wallet+"/eligibility", nil)

	rr = f.do(t, http.MethodGet, "/wallets/"+wallet+"/eligibility/cached", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	results := decode[[]models.EligibilityResult](t, rr)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, walletLower, r.WalletAddress)
	}
}

func TestPointsFlow(t *testing.T) {
	f := setupTestHandler(t)
	base := "/wallets/" + wallet + "/points"

	rr := f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"wallet_address":"`+walletLower+`","balances":[]}`, rr.Body.String())

	rr = f.do(t, http.MethodGet, base+"/ethena-sats", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "no snapshot yet")

	rr = f.do(t, http.MethodPost, base+"/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	refreshed := decode[models.PointsResponse](t, rr)
	require.Len(t, refreshed.Balances, 1, "manual program is skipped")
	assert.Equal(t, "1234.5", refreshed.Balances[0].Points.String())

	rr = f.do(t, http.MethodGet, base+"/ethena-sats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	balance := decode[models.PointsBalance](t, rr)
	require.NotNil(t, balance.Rank)
	assert.Equal(t, 7, *balance.Rank)

	rr = f.do(t, http.MethodGet, base+"/unknown-program", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, base+"/history?program=ethena-sats&limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[models.HistoryResponse](t, rr)
	require.Len(t, history.Snapshots, 1)
	assert.Equal(t, int64(1), history.Snapshots[0].Sequence)

	rr = f.do(t, http.MethodGet, base+"/history?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestActivity(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodGet, "/wallets/"+wallet+"/activity", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	act := decode[models.WalletActivity](t, rr)
	assert.Equal(t, "ethereum", act.Chain)
	assert.Equal(t, uint64(12), act.TransactionCount)
	assert.True(t, act.HasActivity)
	assert.Equal(t, "0.25", act.NativeBalance.String())

	rr = f.do(t, http.MethodGet, "/wallets/"+wallet+"/activity?chain=solana", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.features.Set(features.FeatureChainActivity, false)
	rr = f.do(t, http.MethodGet, "/wallets/"+wallet+"/activity", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTrackAndUntrack(t *testing.T) {
	f := setupTestHandler(t)
	path := "/wallets/" + wallet + "/track"

	rr := f.do(t, http.MethodPost, path, []byte(`{"label":"main"}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodPost, "/wallets/11111111111111111111111111111111/track", nil)
	require.Equal(t, http.StatusCreated, rr.Code, "body is optional")

	rr = f.do(t, http.MethodGet, "/admin/tracked-wallets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	tracked := decode[[]models.TrackedWallet](t, rr)
	require.Len(t, tracked, 2)
	assert.Contains(t, []string{tracked[0].WalletAddress, tracked[1].WalletAddress}, walletLower)

	rr = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListCampaignsAndPrograms(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodGet, "/campaigns", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Campaign](t, rr), 2)

	rr = f.do(t, http.MethodGet, "/programs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.PointsProgram](t, rr), 2)
}

func TestUpsertCampaign(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodPut, "/admin/campaigns", []byte(`{"name":"Gamma Drop","token_symbol":"gam","status":"claimable","check_method":"merkle"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := decode[models.Campaign](t, rr)
	assert.Equal(t, "gamma-drop", saved.ID)
	assert.Equal(t, "GAM", saved.TokenSymbol)
	assert.False(t, saved.CreatedAt.IsZero())

	stored, err := f.db.GetCampaign(context.Background(), "gamma-drop")
	require.NoError(t, err)
	assert.Equal(t, "merkle", stored.CheckMethod)

	rr = f.do(t, http.MethodPut, "/admin/campaigns", []byte(`{"name":"Bad","token_symbol":"BAD","check_method":"oracle"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPut, "/admin/campaigns", []byte(`{"id":"cached","name":"Cached","token_symbol":"CCH"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	_, err = f.db.GetCampaign(context.Background(), "cached")
	assert.Error(t, err)

	rr = f.do(t, http.MethodPut, "/admin/campaigns", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPut, "/admin/campaigns", http.NoBody)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertProgram(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodPut, "/admin/programs", []byte(`{"protocol_name":"EigenLayer","points_name":"Restaked Points","tracking_method":"api"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "eigenlayer", decode[models.PointsProgram](t, rr).ID)

	rr = f.do(t, http.MethodPut, "/admin/programs", []byte(`{"protocol_name":"EigenLayer"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSeed(t *testing.T) {
	f := setupTestHandler(t)

	for i := 0; i < 2; i++ {
		rr := f.do(t, http.MethodPost, "/admin/seed", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[models.SeedResponse](t, rr)
		assert.Equal(t, len(seed.Campaigns()), resp.CampaignsSeeded)
		assert.Equal(t, len(seed.Programs()), resp.ProgramsSeeded)
	}

	rr := f.do(t, http.MethodGet, "/programs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.PointsProgram](t, rr), len(seed.Programs()), "existing ids are overwritten")
}

func TestFeatures(t *testing.T) {
	f := setupTestHandler(t)

	rr := f.do(t, http.MethodGet, "/admin/features", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	flags := decode[map[string]features.Flag](t, rr)
	assert.True(t, flags[features.FeatureCacheEnabled].Enabled)

	rr = f.do(t, http.MethodPut, "/admin/features/"+features.FeatureCacheEnabled, []byte(`{"enabled":false}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.features.IsEnabled(features.FeatureCacheEnabled))

	rr = f.do(t, http.MethodPut, "/admin/features/nope", []byte(`{"enabled":true}`))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPut, "/admin/features/"+features.FeatureCacheEnabled, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
