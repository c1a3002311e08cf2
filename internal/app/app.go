// Package app wires configured backends into a ready-to-use application
// container. Commands build an App once and pull collaborators from it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	memarchive "github.com/pricewatch/meli-harvester/internal/archive/memory"
	s3archive "github.com/pricewatch/meli-harvester/internal/archive/s3"
	"github.com/pricewatch/meli-harvester/internal/clock/system"
	"github.com/pricewatch/meli-harvester/internal/config"
	"github.com/pricewatch/meli-harvester/internal/fetch/headless"
	"github.com/pricewatch/meli-harvester/internal/fetch/scrapefly"
	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/ledger"
	"github.com/pricewatch/meli-harvester/internal/ledger/postgres"
	"github.com/pricewatch/meli-harvester/internal/logging"
	"github.com/pricewatch/meli-harvester/internal/metrics"
	memqueue "github.com/pricewatch/meli-harvester/internal/queue/memory"
	"github.com/pricewatch/meli-harvester/internal/queue/sqs"
	"github.com/pricewatch/meli-harvester/internal/review"
	"github.com/pricewatch/meli-harvester/internal/review/gemini"
	"github.com/pricewatch/meli-harvester/internal/store/dynamo"
	memstore "github.com/pricewatch/meli-harvester/internal/store/memory"
)

// App holds the configured services for one process lifetime.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     harvest.Clock
	queue     harvest.WorkQueue
	store     harvest.RecordStore
	archive   harvest.Archive
	fetcher   harvest.Fetcher
	reviewer  review.Reviewer
	runLedger ledger.Ledger

	closers []func()
}

// NewApp builds every backend named by the config. Construction is
// fail-fast: a backend that cannot be built aborts startup.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}

	if err := a.initQueue(ctx); err != nil {
		return nil, err
	}
	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initArchive(ctx); err != nil {
		return nil, err
	}
	if err := a.initFetcher(); err != nil {
		return nil, err
	}
	if err := a.initLedger(ctx); err != nil {
		return nil, err
	}
	if err := a.initReviewer(ctx); err != nil {
		return nil, err
	}

	logger.Info("Application services initialized",
		zap.String("queue", cfg.Queue.Backend),
		zap.String("store", cfg.Store.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("fetcher", cfg.Fetcher.Provider),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Bool("review", cfg.Review.Enabled),
	)
	return a, nil
}

func (a *App) initQueue(ctx context.Context) error {
	switch a.cfg.Queue.Backend {
	case "memory":
		a.queue = memqueue.NewQueue(a.clock)
	case "sqs":
		q, err := sqs.NewFromDefaultConfig(ctx, a.cfg.Queue.Region, a.cfg.Queue.URL)
		if err != nil {
			return fmt.Errorf("initialize sqs queue: %w", err)
		}
		a.queue = q
	default:
		return fmt.Errorf("unknown queue backend: %s", a.cfg.Queue.Backend)
	}
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "memory":
		a.store = memstore.NewStore()
	case "dynamodb":
		s, err := dynamo.NewFromDefaultConfig(ctx, a.cfg.Store.Region, a.cfg.Store.Table, a.cfg.Store.Endpoint)
		if err != nil {
			return fmt.Errorf("initialize dynamodb store: %w", err)
		}
		a.store = s
	default:
		return fmt.Errorf("unknown store backend: %s", a.cfg.Store.Backend)
	}
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case "none":
		a.archive = nil
	case "memory":
		a.archive = memarchive.New()
	case "s3":
		s, err := s3archive.NewFromDefaultConfig(ctx, a.cfg.Archive.Region, a.cfg.Archive.Bucket)
		if err != nil {
			return fmt.Errorf("initialize s3 archive: %w", err)
		}
		a.archive = s
	default:
		return fmt.Errorf("unknown archive backend: %s", a.cfg.Archive.Backend)
	}
	return nil
}

func (a *App) initFetcher() error {
	switch a.cfg.Fetcher.Provider {
	case "scrapefly":
		c, err := scrapefly.New(scrapefly.Config{
			BaseURL: a.cfg.Fetcher.BaseURL,
			APIKey:  a.cfg.Fetcher.APIKey,
			Timeout: a.cfg.FetchTimeout(),
		})
		if err != nil {
			return fmt.Errorf("initialize scrapefly fetcher: %w", err)
		}
		a.fetcher = c
	case "headless":
		f, err := headless.New(headless.Config{
			MaxParallel:       a.cfg.Fetcher.MaxParallel,
			UserAgent:         a.cfg.Fetcher.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Fetcher.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("initialize headless fetcher: %w", err)
		}
		a.fetcher = f
		a.closers = append(a.closers, f.Close)
	default:
		return fmt.Errorf("unknown fetcher provider: %s", a.cfg.Fetcher.Provider)
	}
	return nil
}

func (a *App) initLedger(ctx context.Context) error {
	switch a.cfg.Ledger.Backend {
	case "none":
		a.runLedger = ledger.NewNoOp()
	case "postgres":
		l, err := postgres.New(ctx, postgres.Config{
			DSN:   a.cfg.Ledger.DSN,
			Table: a.cfg.Ledger.Table,
		}, a.clock)
		if err != nil {
			return fmt.Errorf("initialize postgres ledger: %w", err)
		}
		a.runLedger = l
		a.closers = append(a.closers, l.Close)
	default:
		return fmt.Errorf("unknown ledger backend: %s", a.cfg.Ledger.Backend)
	}
	return nil
}

func (a *App) initReviewer(ctx context.Context) error {
	if !a.cfg.Review.Enabled {
		return nil
	}
	r, err := gemini.New(ctx, gemini.Config{
		APIKey: a.cfg.Review.APIKey,
		Model:  a.cfg.Review.Model,
	})
	if err != nil {
		return fmt.Errorf("initialize reviewer: %w", err)
	}
	a.reviewer = r
	return nil
}

// Close releases the services in reverse construction order and flushes
// the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.logger != nil {
		a.logger.Info("Application services closed.")
		_ = a.logger.Sync()
	}
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetLogger returns the application logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetClock returns the application clock.
func (a *App) GetClock() harvest.Clock { return a.clock }

// GetQueue returns the configured work queue.
func (a *App) GetQueue() harvest.WorkQueue { return a.queue }

// GetStore returns the configured record store.
func (a *App) GetStore() harvest.RecordStore { return a.store }

// GetArchive returns the configured snapshot archive, or nil when archiving
// is disabled.
func (a *App) GetArchive() harvest.Archive { return a.archive }

// GetFetcher returns the configured detail-page fetcher.
func (a *App) GetFetcher() harvest.Fetcher { return a.fetcher }

// GetReviewer returns the advisory reviewer, or nil when review is disabled.
func (a *App) GetReviewer() review.Reviewer { return a.reviewer }

// GetLedger returns the run ledger.
func (a *App) GetLedger() ledger.Ledger { return a.runLedger }
