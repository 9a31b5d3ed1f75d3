package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"airdrop-eligibility-api/internal/metrics"
	"airdrop-eligibility-api/internal/models"
	"airdrop-eligibility-api/internal/storage"
	"airdrop-eligibility-api/pkg/logger"
)

// Refresher refreshes the points of one wallet.
type Refresher interface {
	RefreshAll(ctx context.Context, wallet string) ([]models.PointsBalance, error)
}

// RefreshScheduler periodically refreshes points for every tracked wallet.
type RefreshScheduler struct {
	cron      *cron.Cron
	spec      string
	wallets   storage.WalletStore
	refresher Refresher
	metrics   *metrics.Metrics
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*RefreshScheduler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *RefreshScheduler) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *RefreshScheduler) { s.now = now }
}

// NewRefreshScheduler builds a scheduler for a standard five-field cron spec.
// A run still in progress when the next one fires causes that one to be
// skipped.
func NewRefreshScheduler(wallets storage.WalletStore, refresher Refresher, spec string, opts ...Option) *RefreshScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &RefreshScheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		)),
		spec:      spec,
		wallets:   wallets,
		refresher: refresher,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RefreshScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(s.ctx) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	logger.WithFields(map[string]interface{}{"spec": s.spec}).Info("Points refresh scheduler started")
	return nil
}

// Stop cancels a run in progress and waits for it to return.
func (s *RefreshScheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Info("Points refresh scheduler stopped")
}

// RunOnce refreshes every tracked wallet and reports how many succeeded and
// failed. One wallet failing does not stop the run.
func (s *RefreshScheduler) RunOnce(ctx context.Context) (refreshed, failed int) {
	wallets, err := s.wallets.ListTrackedWallets(ctx)
	if err != nil {
		logger.Error("Failed to list tracked wallets: ", err)
		return 0, 0
	}

	logger.WithFields(map[string]interface{}{"wallets": len(wallets)}).Info("Starting scheduled points refresh")

	for _, w := range wallets {
		if ctx.Err() != nil {
			break
		}
		log := logger.WithWallet(w.WalletAddress)

		if _, err := s.refresher.RefreshAll(ctx, w.WalletAddress); err != nil {
			failed++
			s.metrics.RecordScheduledRefresh("failed")
			log.Warnf("Scheduled refresh failed: %v", err)
			continue
		}
		if err := s.wallets.MarkRefreshed(ctx, w.WalletAddress, s.now().UTC()); err != nil {
			log.Warnf("Failed to record refresh time: %v", err)
		}
		refreshed++
		s.metrics.RecordScheduledRefresh("ok")
	}

	logger.WithFields(map[string]interface{}{
		"refreshed": refreshed,
		"failed":    failed,
	}).Info("Scheduled points refresh completed")
	return refreshed, failed
}
