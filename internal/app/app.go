// Package app wires configuration, storage, clients, and services into the
// shared application core used by cmd/stockboard-server.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/stockboard/internal/clients/yahoo"
	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/services/events"
	"github.com/bobmcallan/stockboard/internal/services/pricedata"
	"github.com/bobmcallan/stockboard/internal/services/quote"
	"github.com/bobmcallan/stockboard/internal/storage/surrealdb"
)

// App holds all initialized services and clients.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager // nil when SurrealDB is unreachable
	YahooClient      interfaces.QuoteSource
	PriceDataService interfaces.PriceDataService
	QuoteService     interfaces.QuoteService
	EventService     interfaces.EventService
	StartupTime      time.Time

	scheduler *Scheduler
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Load configuration - check provided path, STOCKBOARD_CONFIG, then
	// binary dir, then fallback for development
	if configPath == "" {
		configPath = os.Getenv("STOCKBOARD_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "stockboard.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/stockboard.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	// Storage is best-effort: a dead SurrealDB degrades to direct upstream
	// fetches instead of failing startup.
	var storageManager interfaces.StorageManager
	var barStore interfaces.BarStore
	if sm, err := surrealdb.NewManager(logger, config); err != nil {
		logger.Warn().Err(err).
			Str("address", config.Storage.Address).
			Msg("Bar store unavailable, serving without cache")
	} else {
		storageManager = sm
		barStore = sm.BarStore()
	}

	yahooClient := yahoo.NewClient(
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithLogger(logger),
		yahoo.WithRateLimit(config.Clients.Yahoo.RateLimit),
		yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
	)

	priceDataService := pricedata.NewService(barStore, yahooClient, logger)
	quoteService := quote.NewCacheStore(yahooClient, logger,
		quote.WithQuoteTTL(config.Cache.GetQuoteTTL()),
		quote.WithFundamentalsTTL(config.Cache.GetFundamentalsTTL()),
	)
	eventService := events.NewService(yahooClient, logger)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		YahooClient:      yahooClient,
		PriceDataService: priceDataService,
		QuoteService:     quoteService,
		EventService:     eventService,
		StartupTime:      startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartScheduler launches the background refresh scheduler if enabled.
func (a *App) StartScheduler() {
	if !a.Config.Scheduler.Enabled {
		return
	}
	if len(a.Config.Scheduler.WatchSymbols) == 0 {
		a.Logger.Warn().Msg("Scheduler enabled but no watch symbols configured, skipping")
		return
	}

	sched, err := NewScheduler(a)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Failed to start scheduler")
		return
	}
	a.scheduler = sched
	sched.Start()
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, close storage.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
