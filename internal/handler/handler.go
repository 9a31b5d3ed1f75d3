package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"airdrop-eligibility-api/internal/chain"
	"airdrop-eligibility-api/internal/eligibility"
	"airdrop-eligibility-api/internal/features"
	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/points"
	"airdrop-eligibility-api/internal/seed"
	"airdrop-eligibility-api/internal/storage"
	"airdrop-eligibility-api/internal/validation"
	apperrors "airdrop-eligibility-api/pkg/errors"
	"airdrop-eligibility-api/pkg/logger"
)

// DefaultChain is used by the activity endpoint when no chain is given.
const DefaultChain = "ethereum"

// ActivityFetcher looks up on-chain activity of a wallet.
type ActivityFetcher interface {
	Activity(ctx context.Context, chain, address string) (*models.WalletActivity, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	eligibility *eligibility.Aggregator
	points      *points.Aggregator
	wallets     storage.WalletStore
	activity    ActivityFetcher
	features    *features.Manager
	maxBodySize int64
	now         func() time.Time
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	// Activity serves /wallets/{address}/activity; nil disables the route.
	Activity ActivityFetcher
	Features *features.Manager
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20,
	}
}

// NewHandler creates a new handler instance.
func NewHandler(elig *eligibility.Aggregator, pts *points.Aggregator, wallets storage.WalletStore) *Handler {
	return NewHandlerWithOptions(elig, pts, wallets, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(elig *eligibility.Aggregator, pts *points.Aggregator, wallets storage.WalletStore, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		eligibility: elig,
		points:      pts,
		wallets:     wallets,
		activity:    opts.Activity,
		features:    opts.Features,
		maxBodySize: opts.MaxBodySize,
		now:         time.Now,
	}
}

// Routes registers every API route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Get("/campaigns", h.ListCampaigns)
	r.Get("/programs", h.ListPrograms)

	r.Route("/wallets/{address}", func(r chi.Router) {
		r.Use(h.requireWallet)

		r.Get("/eligibility", h.CheckAll)
		r.Get("/eligibility/cached", h.CachedEligibility)
		r.Get("/eligibility/{campaignID}", h.CheckOne)

		r.Get("/points", h.PointsForWallet)
		r.Post("/points/refresh", h.RefreshPoints)
		r.Get("/points/history", h.PointsHistory)
		r.Get("/points/{programID}", h.BalanceFor)

		r.Get("/activity", h.Activity)

		r.Post("/track", h.TrackWallet)
		r.Delete("/track", h.UntrackWallet)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Put("/campaigns", h.UpsertCampaign)
		r.Put("/programs", h.UpsertProgram)
		r.Post("/seed", h.Seed)
		r.Get("/tracked-wallets", h.ListTrackedWallets)
		r.Get("/features", h.ListFeatures)
		r.Put("/features/{name}", h.SetFeature)
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// requireWallet rejects requests whose {address} is not a wallet address.
func (h *Handler) requireWallet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateWallet(chi.URLParam(r, "address")); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func walletParam(r *http.Request) string {
	return validation.SanitizeString(chi.URLParam(r, "address"))
}

// CheckAll handles GET /wallets/{address}/eligibility
func (h *Handler) CheckAll(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)

	checks, err := h.eligibility.CheckAll(r.Context(), wallet)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if checks == nil {
		checks = []models.EligibilityCheck{}
	}

	h.respondJSON(w, http.StatusOK, models.EligibilityResponse{
		WalletAddress: chain.NormalizeAddress(wallet),
		Checks:        checks,
	})
}

// CheckOne handles GET /wallets/{address}/eligibility/{campaignID}
func (h *Handler) CheckOne(w http.ResponseWriter, r *http.Request) {
	campaignID := validation.SanitizeString(chi.URLParam(r, "campaignID"))

	check, err := h.eligibility.CheckOne(r.Context(), walletParam(r), campaignID)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, check)
}

// CachedEligibility handles GET /wallets/{address}/eligibility/cached
func (h *Handler) CachedEligibility(w http.ResponseWriter, r *http.Request) {
	results, err := h.eligibility.CachedResults(r.Context(), walletParam(r))
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if results == nil {
		results = []models.EligibilityResult{}
	}

	h.respondJSON(w, http.StatusOK, results)
}

// PointsForWallet handles GET /wallets/{address}/points
func (h *Handler) PointsForWallet(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)

	balances, err := h.points.PointsForWallet(r.Context(), wallet)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondBalances(w, wallet, balances)
}

// RefreshPoints handles POST /wallets/{address}/points/refresh
func (h *Handler) RefreshPoints(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)

	balances, err := h.points.RefreshAll(r.Context(), wallet)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondBalances(w, wallet, balances)
}

func (h *Handler) respondBalances(w http.ResponseWriter, wallet string, balances []models.PointsBalance) {
	if balances == nil {
		balances = []models.PointsBalance{}
	}
	h.respondJSON(w, http.StatusOK, models.PointsResponse{
		WalletAddress: chain.NormalizeAddress(wallet),
		Balances:      balances,
	})
}

// BalanceFor handles GET /wallets/{address}/points/{programID}
func (h *Handler) BalanceFor(w http.ResponseWriter, r *http.Request) {
	programID := validation.SanitizeString(chi.URLParam(r, "programID"))

	balance, err := h.points.BalanceFor(r.Context(), walletParam(r), programID)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if balance == nil {
		h.respondError(w, http.StatusNotFound, "no points recorded for this wallet in program "+programID)
		return
	}

	h.respondJSON(w, http.StatusOK, balance)
}

// PointsHistory handles GET /wallets/{address}/points/history
func (h *Handler) PointsHistory(w http.ResponseWriter, r *http.Request) {
	wallet := walletParam(r)
	q := r.URL.Query()

	limit, err := validation.ParseLimit(q.Get("limit"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshots, err := h.points.History(r.Context(), wallet, validation.SanitizeString(q.Get("program")), limit)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if snapshots == nil {
		snapshots = []models.PointsSnapshot{}
	}

	h.respondJSON(w, http.StatusOK, models.HistoryResponse{
		WalletAddress: chain.NormalizeAddress(wallet),
		Snapshots:     snapshots,
	})
}

// Activity handles GET /wallets/{address}/activity
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil || !h.features.Enabled(features.FeatureChainActivity, true) {
		h.respondError(w, http.StatusNotFound, "chain activity lookups are disabled")
		return
	}

	chainName := strings.ToLower(validation.SanitizeString(r.URL.Query().Get("chain")))
	if chainName == "" {
		chainName = DefaultChain
	}

	act, err := h.activity.Activity(r.Context(), chainName, walletParam(r))
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, act)
}

// TrackWallet handles POST /wallets/{address}/track
func (h *Handler) TrackWallet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.TrackWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	tracked := models.TrackedWallet{
		WalletAddress: chain.NormalizeAddress(walletParam(r)),
		Label:         validation.SanitizeString(req.Label),
		CreatedAt:     h.now().UTC(),
	}
	if err := h.wallets.TrackWallet(r.Context(), tracked); err != nil {
		h.respondAppError(w, r, apperrors.New(apperrors.ErrStorage, "failed to track wallet", err))
		return
	}

	h.respondJSON(w, http.StatusCreated, tracked)
}

// UntrackWallet handles DELETE /wallets/{address}/track
func (h *Handler) UntrackWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.wallets.UntrackWallet(r.Context(), chain.NormalizeAddress(walletParam(r))); err != nil {
		h.respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTrackedWallets handles GET /admin/tracked-wallets
func (h *Handler) ListTrackedWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.wallets.ListTrackedWallets(r.Context())
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if wallets == nil {
		wallets = []models.TrackedWallet{}
	}
	h.respondJSON(w, http.StatusOK, wallets)
}

// ListCampaigns handles GET /campaigns
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.eligibility.ActiveCampaigns(r.Context())
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	h.respondJSON(w, http.StatusOK, campaigns)
}

// ListPrograms handles GET /programs
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.points.ListActivePrograms(r.Context())
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	if programs == nil {
		programs = []models.PointsProgram{}
	}
	h.respondJSON(w, http.StatusOK, programs)
}

// UpsertCampaign handles PUT /admin/campaigns
func (h *Handler) UpsertCampaign(w http.ResponseWriter, r *http.Request) {
	var req models.Campaign
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := validation.ValidateCampaign(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.eligibility.UpsertCampaign(r.Context(), req)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, saved)
}

// UpsertProgram handles PUT /admin/programs
func (h *Handler) UpsertProgram(w http.ResponseWriter, r *http.Request) {
	var req models.PointsProgram
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := validation.ValidateProgram(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.points.UpsertProgram(r.Context(), req)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, saved)
}

// Seed handles POST /admin/seed
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	resp, err := seed.Seed(r.Context(), h.eligibility, h.points)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ListFeatures handles GET /admin/features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	flags := map[string]features.Flag{}
	if h.features != nil {
		flags = h.features.Snapshot()
	}
	h.respondJSON(w, http.StatusOK, flags)
}

// SetFeature handles PUT /admin/features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := validation.SanitizeString(chi.URLParam(r, "name"))
	if h.features == nil {
		h.respondError(w, http.StatusNotFound, "feature flags are not configured")
		return
	}
	if _, ok := h.features.Lookup(name); !ok {
		h.respondError(w, http.StatusNotFound, "unknown feature flag: "+name)
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	flag, ok := h.features.Set(name, *req.Enabled)
	if !ok {
		h.respondError(w, http.StatusNotFound, "unknown feature flag: "+name)
		return
	}
	logger.WithFields(map[string]interface{}{"flag": name, "enabled": flag.Enabled}).Info("Feature flag updated")

	h.respondJSON(w, http.StatusOK, flag)
}

// decodeBody reads a required JSON body into dst, answering 400 itself on
// failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondAppError maps err to a status: not found 404, invalid input 400,
// anything else 500 with the details kept in the log.
func (h *Handler) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, err.Error())
	case apperrors.IsValidation(err), apperrors.Code(err) == apperrors.ErrInvalidChain:
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Errorf("Request failed: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
