package eligibility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"airdrop-eligibility-api/internal/events"
	"airdrop-eligibility-api/internal/features"
	"airdrop-eligibility-api/internal/metrics"
	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
	"airdrop-eligibility-api/internal/tracing"
	apperrors "airdrop-eligibility-api/pkg/errors"
	"airdrop-eligibility-api/pkg/logger"
)

const (
	// DefaultCacheTTL is how long a cached outcome is served without
	// re-running a checker.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultCheckTimeout bounds a single checker call inside a fan-out.
	DefaultCheckTimeout = 3 * time.Minute

	MsgCheckFailed   = "Eligibility check failed"
	MsgCheckTimedOut = "Eligibility check timed out"
)

// Aggregator answers eligibility queries for a wallet across campaigns.
type Aggregator struct {
	campaigns    storage.CampaignStore
	registry     *Registry
	cache        Cache
	ttl          time.Duration
	checkTimeout time.Duration
	concurrency  int
	now          func() time.Time

	metrics  *metrics.Metrics
	events   *events.Manager
	features *features.Manager
	tracer   *tracing.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.ttl = d
		}
	}
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.checkTimeout = d
		}
	}
}

// WithConcurrency caps in-flight checks of one fan-out; zero means unbounded.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.concurrency = n
	}
}

// WithClock injects the time source used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func WithEvents(m *events.Manager) Option {
	return func(a *Aggregator) { a.events = m }
}

func WithFeatures(m *features.Manager) Option {
	return func(a *Aggregator) { a.features = m }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

// NewAggregator creates an Aggregator.
func NewAggregator(campaigns storage.CampaignStore, registry *Registry, cache Cache, opts ...Option) *Aggregator {
	a := &Aggregator{
		campaigns:    campaigns,
		registry:     registry,
		cache:        cache,
		ttl:          DefaultCacheTTL,
		checkTimeout: DefaultCheckTimeout,
		now:          time.Now,
		tracer:       tracing.Noop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ActiveCampaigns returns campaigns that are claimable or upcoming.
func (a *Aggregator) ActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	campaigns, err := a.campaigns.ListCampaignsByStatus(ctx, models.CampaignClaimable, models.CampaignUpcoming)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrStorage, "failed to list active campaigns", err)
	}
	return campaigns, nil
}

// CheckAll evaluates every active campaign for wallet concurrently.
// Checkers see the wallet as given; cache keys use its lower-case form. The
// result holds exactly one entry per active campaign; a failing campaign
// yields a negative entry with an error message. If ctx is cancelled before
// all campaigns finish, partial results are discarded and ctx.Err() returned.
func (a *Aggregator) CheckAll(ctx context.Context, wallet string) ([]models.EligibilityCheck, error) {
	wallet = strings.TrimSpace(wallet)

	ctx, span := a.tracer.StartSpan(ctx, "eligibility.CheckAll")
	defer span.End()
	span.SetAttributes(attribute.String("wallet", logger.ShortWallet(wallet)))

	campaigns, err := a.ActiveCampaigns(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	checks := make([]models.EligibilityCheck, len(campaigns))
	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i := range campaigns {
		g.Go(func() error {
			checks[i] = a.evaluateSafe(ctx, wallet, campaigns[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("campaigns", len(checks)))
	a.events.PublishEligibilityChecked(ctx, normalizeWallet(wallet), checks)
	return checks, nil
}

// CheckOne evaluates a single campaign by id. An unknown id yields a
// NOT_FOUND error rather than a negative result.
func (a *Aggregator) CheckOne(ctx context.Context, wallet, campaignID string) (*models.EligibilityCheck, error) {
	wallet = strings.TrimSpace(wallet)

	ctx, span := a.tracer.StartSpan(ctx, "eligibility.CheckOne")
	defer span.End()
	span.SetAttributes(attribute.String("campaign", campaignID))

	campaign, err := a.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("campaign", campaignID)
		}
		return nil, apperrors.New(apperrors.ErrStorage, "failed to load campaign", err)
	}

	check := a.evaluateSafe(ctx, wallet, *campaign)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &check, nil
}

// CachedResults lists every cached outcome for wallet, regardless of age.
func (a *Aggregator) CachedResults(ctx context.Context, wallet string) ([]models.EligibilityResult, error) {
	lister, ok := a.cache.(Lister)
	if !ok {
		return []models.EligibilityResult{}, nil
	}
	results, err := lister.ListByWallet(ctx, normalizeWallet(wallet))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrStorage, "failed to list cached eligibility", err)
	}
	return results, nil
}

// UpsertCampaign stores a campaign. An api campaign without an endpoint is
// accepted but logged, since every check of it will come back negative.
func (a *Aggregator) UpsertCampaign(ctx context.Context, c models.Campaign) (*models.Campaign, error) {
	c.UpdatedAt = a.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	if ParseMethod(c.CheckMethod) == MethodAPI && strings.TrimSpace(c.EligibilityAPIURL) == "" {
		logger.WithFields(map[string]interface{}{
			"campaign": c.ID,
		}).Warn("Campaign uses api check method without an eligibility API URL")
	}

	if err := a.campaigns.UpsertCampaign(ctx, c); err != nil {
		return nil, apperrors.New(apperrors.ErrStorage, "failed to upsert campaign", err)
	}
	logger.WithFields(map[string]interface{}{
		"campaign": c.ID,
		"name":     c.Name,
	}).Info("Upserted campaign")

	a.events.PublishCampaignUpserted(ctx, c)
	return &c, nil
}

// evaluateSafe converts a panic inside evaluate into a degraded entry.
func (a *Aggregator) evaluateSafe(ctx context.Context, wallet string, campaign models.Campaign) (check models.EligibilityCheck) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithWallet(wallet).WithField("campaign", campaign.ID).
				Errorf("Eligibility check panicked: %v", r)
			a.metrics.RecordEligibility(metrics.OutcomeDegraded)
			check = project(campaign, negative(MsgCheckFailed))
		}
	}()
	return a.evaluate(ctx, wallet, campaign)
}

func (a *Aggregator) evaluate(ctx context.Context, wallet string, campaign models.Campaign) models.EligibilityCheck {
	log := logger.WithWallet(wallet).WithField("campaign", campaign.ID)

	if a.features.Enabled(features.FeatureCacheEnabled, true) {
		cached, err := a.cache.Get(ctx, campaign.ID, wallet)
		switch {
		case err == nil && a.fresh(cached.CheckedAt):
			a.metrics.RecordEligibility(metrics.OutcomeCacheHit)
			return project(campaign, Outcome{
				IsEligible:       cached.IsEligible,
				AllocationAmount: cached.AllocationAmount,
				AllocationUSD:    cached.AllocationUSD,
				HasClaimed:       cached.HasClaimed,
				MerkleProof:      cached.MerkleProof,
				ErrorMessage:     cached.ErrorMessage,
			})
		case err != nil && !errors.Is(err, ErrCacheMiss):
			log.Warnf("Unreadable eligibility cache entry, recomputing: %v", err)
		}
	}

	outcome, method, err := a.runChecker(ctx, wallet, campaign)
	if err != nil {
		a.metrics.RecordEligibility(metrics.OutcomeDegraded)
		log.Warnf("Eligibility check did not complete: %v", err)
		return project(campaign, negative(MsgCheckTimedOut))
	}
	a.metrics.RecordCheckerInvocation(string(method))
	a.metrics.RecordEligibility(metrics.OutcomeComputed)
	outcome = canonicalAmounts(outcome)

	result := models.EligibilityResult{
		CampaignID:       campaign.ID,
		WalletAddress:    normalizeWallet(wallet),
		IsEligible:       outcome.IsEligible,
		AllocationAmount: outcome.AllocationAmount,
		AllocationUSD:    outcome.AllocationUSD,
		HasClaimed:       outcome.HasClaimed,
		MerkleProof:      outcome.MerkleProof,
		ErrorMessage:     outcome.ErrorMessage,
		CheckedAt:        a.now().UTC(),
	}
	if err := a.cache.Put(ctx, result); err != nil {
		a.metrics.RecordCacheWriteError()
		log.Warnf("Failed to cache eligibility result: %v", err)
	}

	log.WithField("eligible", outcome.IsEligible).Debug("Checked eligibility")
	return project(campaign, outcome)
}

// runChecker dispatches with a per-check deadline. A checker that ignores
// its context is abandoned once the deadline passes.
func (a *Aggregator) runChecker(ctx context.Context, wallet string, campaign models.Campaign) (Outcome, Method, error) {
	cctx, cancel := context.WithTimeout(ctx, a.checkTimeout)
	defer cancel()

	type answer struct {
		outcome Outcome
		method  Method
		panic   interface{}
	}
	done := make(chan answer, 1)
	go func() {
		var ans answer
		defer func() {
			ans.panic = recover()
			done <- ans
		}()
		ans.outcome, ans.method = a.registry.Check(cctx, wallet, campaign)
	}()

	select {
	case ans := <-done:
		if ans.panic != nil {
			panic(ans.panic)
		}
		return ans.outcome, ans.method, nil
	case <-cctx.Done():
		return Outcome{}, ParseMethod(campaign.CheckMethod), fmt.Errorf("checker for %s: %w", campaign.ID, cctx.Err())
	}
}

func (a *Aggregator) fresh(checkedAt time.Time) bool {
	return a.now().Sub(checkedAt) < a.ttl
}

// project merges campaign metadata with an outcome.
func project(c models.Campaign, o Outcome) models.EligibilityCheck {
	criteria := c.Criteria
	if criteria == nil {
		criteria = []string{}
	}
	return models.EligibilityCheck{
		CampaignID:       c.ID,
		CampaignName:     c.Name,
		TokenSymbol:      c.TokenSymbol,
		Status:           c.Status,
		IsEligible:       o.IsEligible,
		AllocationAmount: o.AllocationAmount,
		AllocationUSD:    o.AllocationUSD,
		HasClaimed:       o.HasClaimed,
		ClaimDeadline:    c.ClaimDeadline,
		ClaimURL:         c.ClaimURL,
		Criteria:         criteria,
		ErrorMessage:     o.ErrorMessage,
	}
}

// canonicalAmounts rewrites amounts in the trimmed form the cache stores,
// so a fresh result and its cached re-read compare equal.
func canonicalAmounts(o Outcome) Outcome {
	o.AllocationAmount = canonicalDecimal(o.AllocationAmount)
	o.AllocationUSD = canonicalDecimal(o.AllocationUSD)
	return o
}

func canonicalDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := decimal.RequireFromString(d.String())
	return &c
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
