package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dealwatch/internal/analyzer"
	"dealwatch/internal/broadcast"
	"dealwatch/internal/config"
	"dealwatch/internal/engine"
	"dealwatch/internal/extractor"
	"dealwatch/internal/fetcher"
	"dealwatch/internal/identity"
	"dealwatch/internal/scheduler"
	"dealwatch/internal/storage"
	"dealwatch/internal/transport"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() *fetcher.Client {
	pool := identity.NewPool(a.Config.Scraping.UserAgents, a.Config.Scraping.Proxies, time.Now().UnixNano())
	return fetcher.New(fetcher.Options{
		Timeout:      a.Config.Scraping.Timeout,
		MaxRetries:   a.Config.Scraping.MaxRetries,
		BackoffFloor: a.Config.Scraping.BackoffFloor,
		MinDelay:     a.Config.Scraping.MinDelay,
		MaxDelay:     a.Config.Scraping.MaxDelay,
	}, pool, a.Logger)
}

func (a *App) newAnalyzer() *analyzer.Analyzer {
	cfg := a.Config.Deals
	return analyzer.New(analyzer.Options{
		MinDiscount: decimal.NewFromFloat(cfg.MinDiscountPct),
		MinPrice:    decimal.NewFromFloat(cfg.MinPrice),
		MaxPrice:    decimal.NewFromFloat(cfg.MaxPrice),
		Weights: analyzer.Weights{
			Discount:    cfg.DiscountWeight,
			Rating:      cfg.RatingWeight,
			ReviewCount: cfg.ReviewCountWeight,
			PriceRange:  cfg.PriceRangeWeight,
		},
		ClearanceKeywords: cfg.ClearanceKeywords,
		KnownBrands:       cfg.KnownBrands,
	}, a.Logger)
}

// newTelegram returns nil when the transport is disabled.
func (a *App) newTelegram() (*transport.Telegram, error) {
	if !a.Config.Telegram.Enabled {
		return nil, nil
	}
	return transport.NewTelegram(a.Config.Telegram.BotToken, a.Logger)
}

func (a *App) newBroadcaster(tg *transport.Telegram, store *storage.Store) *broadcast.Broadcaster {
	if tg == nil {
		return nil
	}
	cfg := a.Config.Telegram
	var recorder broadcast.DeliveryRecorder
	if store != nil {
		recorder = store
	}
	return broadcast.New(tg, recorder, broadcast.Options{
		MaxPerDestination: cfg.MaxPerDestination,
		PacingDelay:       cfg.PacingDelay,
		MaxThrottleWait:   cfg.MaxThrottleWait,
		MinQualityScore:   cfg.BroadcastMinScore,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openSeenCache returns a pass-through cache when Redis is not configured or
// unreachable; the pipeline still runs, only cross-cycle dedup is lost.
func (a *App) openSeenCache(ctx context.Context) *storage.SeenCache {
	if a.Config.Redis.URL == "" {
		return storage.NewSeenCache(nil, 0)
	}
	client, err := storage.NewRedisClient(ctx, a.Config.Redis.URL)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unavailable; cross-cycle dedup disabled")
		return storage.NewSeenCache(nil, 0)
	}
	return storage.NewSeenCache(client, a.Config.Redis.SeenTTL)
}

func (a *App) newEngine(store *storage.Store, seen *storage.SeenCache, bc *broadcast.Broadcaster) *engine.Engine {
	ext := extractor.New(a.Config.Scraping.BaseURL, a.Logger)

	var broadcaster engine.Broadcaster
	if bc != nil {
		broadcaster = bc
	}

	return engine.New(
		a.newFetcher(),
		ext,
		a.newAnalyzer(),
		store,
		seen,
		broadcaster,
		engine.Options{
			BaseURL:     a.Config.Scraping.BaseURL,
			Categories:  a.Config.Deals.Categories,
			MaxWorkers:  a.Config.Scheduling.MaxWorkers,
			WorklistMax: a.Config.Scheduling.WorklistMax,
		},
		a.Logger,
	)
}

// Run executes the long-running discovery service: the cycle loop plus the
// daily cleanup, daily report, and hourly deal expiry jobs.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the service")
	}
	defer closeStore()

	seen := a.openSeenCache(ctx)

	tg, err := a.newTelegram()
	if err != nil {
		return err
	}
	if tg == nil {
		a.Logger.Warn().Msg("telegram disabled; deals will be stored but not broadcast")
	}

	eng := a.newEngine(store, seen, a.newBroadcaster(tg, store))

	jobs := cron.New()
	a.registerJobs(ctx, jobs, store, tg)
	jobs.Start()
	defer jobs.Stop()

	sched := scheduler.New(scheduler.Options{
		PeakStartHour:   a.Config.Scheduling.PeakStartHour,
		PeakEndHour:     a.Config.Scheduling.PeakEndHour,
		PeakInterval:    a.Config.Scheduling.PeakInterval,
		OffPeakInterval: a.Config.Scheduling.OffPeakInterval,
		StartupDelay:    a.Config.Scheduling.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting discovery service")
	err = sched.Run(ctx, func(ctx context.Context) error {
		_, err := eng.RunCycle(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("discovery service stopped")
	return nil
}

func (a *App) registerJobs(ctx context.Context, jobs *cron.Cron, store *storage.Store, tg *transport.Telegram) {
	jobs.AddFunc("0 2 * * *", func() {
		if err := a.cleanupOnce(ctx, store); err != nil {
			a.Logger.Error().Err(err).Msg("scheduled cleanup failed")
		}
	})

	jobs.AddFunc("0 8 * * *", func() {
		if err := a.sendReport(ctx, store, tg); err != nil {
			a.Logger.Error().Err(err).Msg("scheduled report failed")
		}
	})

	jobs.AddFunc("@hourly", func() {
		expired, err := store.ExpireDeals(ctx, time.Now().UTC())
		if err != nil {
			a.Logger.Error().Err(err).Msg("deal expiry sweep failed")
			return
		}
		if expired > 0 {
			a.Logger.Info().Int64("expired", expired).Msg("expired stale deals")
		}
	})
}

// ExportOptions hold parameters for exporting a product's price history.
type ExportOptions struct {
	ASIN      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ScanOptions configure the one-shot scan command.
type ScanOptions struct {
	Broadcast bool
}
