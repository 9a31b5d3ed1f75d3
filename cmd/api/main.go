package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"airdrop-eligibility-api/internal/cache"
	"airdrop-eligibility-api/internal/chain"
	"airdrop-eligibility-api/internal/config"
	"airdrop-eligibility-api/internal/database"
	"airdrop-eligibility-api/internal/eligibility"
	"airdrop-eligibility-api/internal/events"
	"airdrop-eligibility-api/internal/features"
	"airdrop-eligibility-api/internal/handler"
	"airdrop-eligibility-api/internal/httpclient"
	"airdrop-eligibility-api/internal/metrics"
	"airdrop-eligibility-api/internal/middleware"
	"airdrop-eligibility-api/internal/points"
	"airdrop-eligibility-api/internal/scheduler"
	"airdrop-eligibility-api/internal/storage"
	"airdrop-eligibility-api/internal/storage/postgres"
	"airdrop-eligibility-api/internal/tracing"
	"airdrop-eligibility-api/pkg/logger"
)

const metricsNamespace = "airdrop"

// closableStore is a storage backend that owns a connection.
type closableStore interface {
	storage.Store
	Close() error
}

func main() {
	configFile := flag.String("config", "", "Path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: ", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		logger.Fatal("Failed to initialize logger: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing: ", err)
	}

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: ", err)
	}
	defer store.Close()

	eligCache, closeCache, err := openEligibilityCache(ctx, cfg.Cache, store)
	if err != nil {
		logger.Fatal("Failed to initialize eligibility cache: ", err)
	}
	defer closeCache()

	m := metrics.New(metricsNamespace)

	flags := features.NewManager()
	flags.RegisterDefaults(features.Defaults{
		CacheEnabled:    cfg.Features.CacheEnabled,
		EventHooks:      cfg.Features.EventHooks,
		ParallelRefresh: cfg.Features.ParallelRefresh,
		ChainActivity:   cfg.Features.ChainActivity,
	})

	bus := events.NewManager(true)
	bus.SetGate(func() bool { return flags.IsEnabled(features.FeatureEventHooksEnabled) })
	bus.Subscribe(events.EventCampaignUpserted, events.LogHandler)
	bus.Subscribe(events.EventEligibilityChecked, events.LogHandler)
	bus.Subscribe(events.EventPointsRefreshed, events.LogHandler)
	defer bus.Shutdown()

	client := httpclient.New(
		httpclient.WithTimeout(time.Duration(cfg.HTTPClient.Timeout)*time.Second),
		httpclient.WithMaxRetries(cfg.HTTPClient.MaxRetries),
		httpclient.WithRetryDelay(time.Duration(cfg.HTTPClient.RetryDelayMs)*time.Millisecond),
		httpclient.WithObserver(func(target string, status int, d time.Duration) {
			host := target
			if u, err := url.Parse(target); err == nil && u.Host != "" {
				host = u.Host
			}
			m.ObserveUpstream(host, status, d)
		}),
	)

	elig := eligibility.NewAggregator(store,
		eligibility.NewRegistry(eligibility.NewAPIChecker(client), eligibility.NewManualChecker()),
		eligCache,
		eligibility.WithCacheTTL(cfg.CacheTTL()),
		eligibility.WithCheckTimeout(time.Duration(cfg.Eligibility.CheckTimeout)*time.Second),
		eligibility.WithConcurrency(cfg.Eligibility.Concurrency),
		eligibility.WithMetrics(m),
		eligibility.WithEvents(bus),
		eligibility.WithFeatures(flags),
		eligibility.WithTracer(tracer),
	)

	pts := points.NewAggregator(store,
		[]points.Provider{
			points.NewEigenLayerProvider(client, ""),
			points.NewEthenaProvider(client, ""),
			points.NewHyperliquidProvider(client, ""),
		},
		points.WithWorkers(cfg.Points.Workers),
		points.WithMetrics(m),
		points.WithEvents(bus),
		points.WithFeatures(flags),
		points.WithTracer(tracer),
	)

	pool := chain.NewPool(cfg.Chains, chain.WithRetry(cfg.HTTPClient.MaxRetries, time.Duration(cfg.HTTPClient.RetryDelayMs)*time.Millisecond))
	defer pool.Close()

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewRefreshScheduler(store, pts, cfg.Scheduler.Cron, scheduler.WithMetrics(m))
		if err := sched.Start(); err != nil {
			logger.Fatal("Failed to start scheduler: ", err)
		}
		defer sched.Stop()
	}

	h := handler.NewHandlerWithOptions(elig, pts, store, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Activity:    pool,
		Features:    flags,
	})

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{Logger: logger.Log, NoColor: true}))
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName, m))

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.Security.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", m.Handler())
	h.Routes(r)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		protocol := "HTTP"
		if cfg.Server.EnableTLS {
			protocol = "HTTPS"
		}
		logger.WithFields(map[string]interface{}{
			"addr":     server.Addr,
			"protocol": protocol,
			"database": cfg.Database.Driver,
			"cache":    cfg.Cache.Backend,
			"chains":   pool.Chains(),
		}).Info("Starting server")

		var err error
		if cfg.Server.EnableTLS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed: ", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down server: ", err)
	}
	bus.Wait()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down tracer: ", err)
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (closableStore, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewStore(pool), nil
	default:
		db, err := database.NewDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// openEligibilityCache picks the backend for cached eligibility results.
// The returned func releases it.
func openEligibilityCache(ctx context.Context, cfg config.CacheConfig, store storage.Store) (eligibility.Cache, func(), error) {
	switch cfg.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return eligibility.NewKVCache(rc), func() { rc.Close() }, nil
	case "memory":
		mc := cache.NewInMemoryCache()
		return eligibility.NewKVCache(mc), func() { mc.Close() }, nil
	default:
		return eligibility.NewStoreCache(store), func() {}, nil
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
