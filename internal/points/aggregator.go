package points

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 500
	DefaultWorkers      = 4

	// maxConflictRetries bounds re-reads after a lost sequence race.
	maxConflictRetries = 3
)

// RefreshStatus is the per-program outcome of a refresh.
type RefreshStatus string

const (
	RefreshOK      RefreshStatus = "ok"
	RefreshSkipped RefreshStatus = "skipped"
	RefreshFailed  RefreshStatus = "failed"
)

// RefreshResult reports what happened to one program during a refresh.
type RefreshResult struct {
	ProgramID string
	Status    RefreshStatus
	Balance   *models.PointsBalance
	Err       error
}

// Store is the persistence the Aggregator needs.
type Store interface {
	storage.ProgramStore
	storage.SnapshotStore
}

// Aggregator reads and refreshes points balances across programs.
type Aggregator struct {
	store     Store
	providers []Provider
	locks     *keyLock
	workers   int
	now       func() time.Time

	metrics  *metrics.Metrics
	events   *events.Manager
	features *features.Manager
	tracer   *tracing.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithWorkers sets the pool size used when parallel refresh is enabled.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithClock injects the time source used for snapshot dates.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
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

// NewAggregator creates an Aggregator. For each program the first provider
// accepting its protocol name is used.
func NewAggregator(store Store, providers []Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     store,
		providers: providers,
		locks:     newKeyLock(),
		workers:   DefaultWorkers,
		now:       time.Now,
		tracer:    tracing.Noop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ListActivePrograms returns programs with status active.
func (a *Aggregator) ListActivePrograms(ctx context.Context) ([]models.PointsProgram, error) {
	programs, err := a.store.ListProgramsByStatus(ctx, models.ProgramActive)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrStorage, "failed to list active programs", err)
	}
	return programs, nil
}

// UpsertProgram stores a program, stamping LastUpdated.
func (a *Aggregator) UpsertProgram(ctx context.Context, p models.PointsProgram) (*models.PointsProgram, error) {
	p.LastUpdated = a.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.LastUpdated
	}
	if err := a.store.UpsertProgram(ctx, p); err != nil {
		return nil, apperrors.New(apperrors.ErrStorage, "failed to upsert program", err)
	}
	logger.WithFields(map[string]interface{}{
		"program":  p.ID,
		"protocol": p.ProtocolName,
	}).Info("Upserted points program")
	return &p, nil
}

// BalanceFor returns the latest snapshot of wallet in programID as a
// balance, or nil when the wallet has never been refreshed there. An unknown
// program is a NOT_FOUND error.
func (a *Aggregator) BalanceFor(ctx context.Context, wallet, programID string) (*models.PointsBalance, error) {
	wallet = normalizeWallet(wallet)

	program, err := a.store.GetProgram(ctx, programID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("program", programID)
		}
		return nil, apperrors.New(apperrors.ErrStorage, "failed to load program", err)
	}

	snap, err := a.store.LatestSnapshot(ctx, wallet, programID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.ErrStorage, "failed to load latest snapshot", err)
	}
	return balanceOf(*program, *snap), nil
}

// PointsForWallet returns the latest known balance in every active program,
// without contacting any protocol.
func (a *Aggregator) PointsForWallet(ctx context.Context, wallet string) ([]models.PointsBalance, error) {
	wallet = normalizeWallet(wallet)

	programs, err := a.ListActivePrograms(ctx)
	if err != nil {
		return nil, err
	}

	balances := []models.PointsBalance{}
	for _, p := range programs {
		snap, err := a.store.LatestSnapshot(ctx, wallet, p.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperrors.New(apperrors.ErrStorage, "failed to load latest snapshot", err)
		}
		balances = append(balances, *balanceOf(p, *snap))
	}
	return balances, nil
}

// History returns up to limit snapshots for wallet, newest first. An empty
// programID spans all programs. limit <= 0 selects DefaultHistoryLimit and
// values above MaxHistoryLimit are capped.
func (a *Aggregator) History(ctx context.Context, wallet, programID string, limit int) ([]models.PointsSnapshot, error) {
	snaps, err := a.store.ListSnapshots(ctx, normalizeWallet(wallet), programID, ClampLimit(limit))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrStorage, "failed to list snapshots", err)
	}
	return snaps, nil
}

// ClampLimit applies the history limit defaults.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// RefreshAll fetches fresh readings for every active program, appends a
// snapshot per reading and returns the resulting balances. Programs without
// a provider, without a reading, or whose refresh fails are omitted; one
// failure never aborts the batch.
func (a *Aggregator) RefreshAll(ctx context.Context, wallet string) ([]models.PointsBalance, error) {
	results, err := a.Refresh(ctx, wallet)
	if err != nil {
		return nil, err
	}

	balances := []models.PointsBalance{}
	for _, r := range results {
		if r.Status == RefreshOK {
			balances = append(balances, *r.Balance)
		}
	}
	a.events.PublishPointsRefreshed(ctx, normalizeWallet(wallet), balances)
	return balances, nil
}

// Refresh is RefreshAll with the per-program outcome of every active
// program, in listing order.
func (a *Aggregator) Refresh(ctx context.Context, wallet string) ([]RefreshResult, error) {
	wallet = normalizeWallet(wallet)

	ctx, span := a.tracer.StartSpan(ctx, "points.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("wallet", logger.ShortWallet(wallet)))

	programs, err := a.ListActivePrograms(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]RefreshResult, len(programs))
	if a.features.Enabled(features.FeatureParallelRefresh, false) {
		var g errgroup.Group
		g.SetLimit(a.workers)
		for i := range programs {
			g.Go(func() error {
				results[i] = a.refreshSafe(ctx, wallet, programs[i])
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range programs {
			if ctx.Err() != nil {
				break
			}
			results[i] = a.refreshSafe(ctx, wallet, programs[i])
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range results {
		a.metrics.RecordRefresh(r.ProgramID, string(r.Status))
		if r.Status == RefreshFailed {
			logger.WithWallet(wallet).WithField("program", r.ProgramID).
				Warnf("Failed to refresh points: %v", r.Err)
		}
	}
	span.SetAttributes(attribute.Int("programs", len(results)))
	return results, nil
}

func (a *Aggregator) refreshSafe(ctx context.Context, wallet string, program models.PointsProgram) (res RefreshResult) {
	defer func() {
		if r := recover(); r != nil {
			res = RefreshResult{ProgramID: program.ID, Status: RefreshFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.refreshProgram(ctx, wallet, program)
}

func (a *Aggregator) refreshProgram(ctx context.Context, wallet string, program models.PointsProgram) RefreshResult {
	res := RefreshResult{ProgramID: program.ID, Status: RefreshSkipped}

	provider := a.providerFor(program.ProtocolName)
	if provider == nil {
		return res
	}

	reading, err := provider.FetchPoints(ctx, wallet)
	if err != nil {
		res.Status, res.Err = RefreshFailed, err
		return res
	}
	if reading == nil {
		return res
	}

	release := a.locks.Lock(wallet + "|" + program.ID)
	defer release()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		snap, err := a.appendSnapshot(ctx, wallet, program, *reading)
		if errors.Is(err, storage.ErrConflict) {
			a.metrics.RecordSnapshotConflict()
			continue
		}
		if err != nil {
			res.Status, res.Err = RefreshFailed, err
			return res
		}

		logger.WithWallet(wallet).WithFields(map[string]interface{}{
			"protocol": program.ProtocolName,
			"points":   snap.Points.String(),
		}).Info("Refreshed points")
		res.Status, res.Balance = RefreshOK, balanceOf(program, *snap)
		return res
	}

	res.Status, res.Err = RefreshFailed, fmt.Errorf("append snapshot for %s: %w", program.ID, storage.ErrConflict)
	return res
}

// appendSnapshot stores a snapshot whose delta is taken against the latest
// stored one. storage.ErrConflict means another writer got there first.
func (a *Aggregator) appendSnapshot(ctx context.Context, wallet string, program models.PointsProgram, reading Reading) (*models.PointsSnapshot, error) {
	snap := models.PointsSnapshot{
		ID:                uuid.New().String(),
		WalletAddress:     wallet,
		ProgramID:         program.ID,
		ProtocolName:      program.ProtocolName,
		Points:            reading.Points,
		Rank:              reading.Rank,
		Percentile:        reading.Percentile,
		EstimatedValueUSD: reading.EstimatedValueUSD,
		Sequence:          1,
		SnapshotDate:      a.now().UTC(),
	}

	prev, err := a.store.LatestSnapshot(ctx, wallet, program.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	default:
		previous := prev.Points
		change := reading.Points.Sub(prev.Points)
		snap.PreviousPoints = &previous
		snap.PointsChange = &change
		snap.Sequence = prev.Sequence + 1
	}

	if err := a.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (a *Aggregator) providerFor(protocol string) Provider {
	for _, p := range a.providers {
		if p.CanHandle(protocol) {
			return p
		}
	}
	return nil
}

func balanceOf(p models.PointsProgram, s models.PointsSnapshot) *models.PointsBalance {
	return &models.PointsBalance{
		ProgramID:         p.ID,
		ProtocolName:      p.ProtocolName,
		PointsName:        p.PointsName,
		Points:            s.Points,
		Rank:              s.Rank,
		Percentile:        s.Percentile,
		EstimatedValueUSD: s.EstimatedValueUSD,
		PointsChange24h:   s.PointsChange,
		DashboardURL:      p.DashboardURL,
		LastUpdated:       s.SnapshotDate,
	}
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
