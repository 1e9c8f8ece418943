package app

import (
	"context"
	"fmt"

	"github.com/polysentry/polysentry/internal/alert"
	"github.com/polysentry/polysentry/internal/allowlist"
	"github.com/polysentry/polysentry/internal/arbitrage"
	"github.com/polysentry/polysentry/internal/execution"
	"github.com/polysentry/polysentry/internal/intent"
	"github.com/polysentry/polysentry/internal/ledger"
	"github.com/polysentry/polysentry/internal/markets"
	"github.com/polysentry/polysentry/internal/risk"
	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/cache"
	"github.com/polysentry/polysentry/pkg/config"
	"github.com/polysentry/polysentry/pkg/healthprobe"
	"github.com/polysentry/polysentry/pkg/httpserver"
	"go.uber.org/zap"
)

const intentQueueSize = 256

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	metaCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	marketsClient := markets.NewClient(cfg.GammaAPIURL, cfg.CLOBAPIURL, logger)
	metadata := markets.NewCachedMetadataClient(markets.NewMetadataClient(cfg.CLOBAPIURL), metaCache)

	allowlistSvc, err := allowlist.New(allowlist.Config{
		Source:          marketsClient,
		RefreshInterval: cfg.AllowlistRefreshPeriod,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup allowlist: %w", err)
	}

	positionLedger, err := ledger.New(ledger.Config{
		StartingCapital: cfg.StartingCapital,
		Logger:          logger,
	}, store)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup ledger: %w", err)
	}

	kernel, err := risk.NewKernel(ctx, risk.Config{
		PerTradeCap:         cfg.MaxPositionSize,
		MinViableSize:       cfg.MinViableSize,
		MaxPositions:        cfg.MaxPositions,
		MaxTotalExposure:    cfg.MaxTotalExposure,
		DailyBudget:         cfg.DailyBudget,
		HourlyBudget:        cfg.HourlyBudget,
		DailyStopPct:        cfg.MaxDailyLossPct,
		HardKillPct:         cfg.MaxTotalLossPct,
		MaxConsecutiveStops: cfg.MaxConsecutiveStops,
		SingleTradeLossPct:  cfg.SingleTradeLossPct,
		CooldownAfterLoss:   cfg.CooldownAfterLoss,
		AllowedSources:      cfg.AllowedSources,
		Logger:              logger,
	}, store)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup risk kernel: %w", err)
	}

	executor, err := setupExecutor(cfg, logger, store)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	detector := arbitrage.New(arbitrage.Config{
		FeeRate:            cfg.ArbFeeRate,
		GasPerLeg:          cfg.ArbGasPerLeg,
		MinProfitPct:       cfg.ArbMinProfitPct,
		MinSize:            cfg.ArbMinTradeSize,
		MaxSize:            cfg.ArbMaxTradeSize,
		AsymmetricMaxPrice: cfg.ArbAsymmetricMaxPrice,
	})

	healthChecker := healthprobe.New()

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		store:         store,
		ledger:        positionLedger,
		kernel:        kernel,
		validator: intent.NewValidator(intent.Config{
			StaleThreshold: cfg.IntentStaleThreshold,
			MaxPositions:   cfg.MaxPositions,
		}),
		allowlist:    allowlistSvc,
		executor:     executor,
		detector:     detector,
		markets:      marketsClient,
		metadata:     metadata,
		alerts:       setupAlerts(cfg, logger),
		tasks:        make(chan *task, intentQueueSize),
		pipelineDone: make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	a.skipScanner = opts.SkipScanner

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		HealthChecker:  healthChecker,
		StatusProvider: a,
	})

	return a, nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StorageMode {
	case "postgres":
		return storage.NewPostgres(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	case "sqlite":
		return storage.NewSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return storage.NewMemory(), nil
	}
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupExecutor(cfg *config.Config, logger *zap.Logger, store storage.Store) (*execution.Executor, error) {
	var submitter execution.OrderSubmitter
	if !cfg.DryRun {
		client, err := execution.NewOrderClient(&execution.OrderClientConfig{
			BaseURL:      cfg.CLOBAPIURL,
			APIKey:       cfg.PolymarketAPIKey,
			Secret:       cfg.PolymarketSecret,
			Passphrase:   cfg.PolymarketPassphrase,
			PrivateKey:   cfg.PolymarketPrivateKey,
			ProxyAddress: cfg.PolymarketProxyAddr,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create order client: %w", err)
		}
		submitter = client
	}

	return execution.New(execution.Config{
		DryRun:            cfg.DryRun,
		MinPrice:          cfg.MinOrderPrice,
		MaxPrice:          cfg.MaxOrderPrice,
		MinSize:           cfg.MinOrderSize,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		IdempotencyWindow: cfg.IdempotencyWindow,
		Logger:            logger,
	}, submitter, store)
}

func setupAlerts(cfg *config.Config, logger *zap.Logger) alert.Sink {
	logSink := alert.NewLogSink(logger)
	if cfg.AlertWebhookURL == "" {
		return logSink
	}
	return alert.NewMultiSink(logSink, alert.NewWebhookSink(cfg.AlertWebhookURL, logger))
}
