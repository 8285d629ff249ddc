package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/api"
	"dexpaper-trading-bot/internal/database"
	"dexpaper-trading-bot/internal/engine"
	"dexpaper-trading-bot/internal/events"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/metrics"
	"dexpaper-trading-bot/internal/notification"
	"dexpaper-trading-bot/internal/storage"
	"dexpaper-trading-bot/internal/storage/memory"

	"github.com/rs/zerolog"
)

// CLI exit codes
const (
	exitOK      = 0
	exitPartial = 1 // at least one cycle finished with errors
	exitConfig  = 2
	exitStorage = 3
	exitFeeds   = 4 // every external feed failed
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		once         = flag.Bool("once", false, "run one cycle pass and exit")
		onceUser     = flag.String("user", "", "restrict -once to a single configured user")
		dev          = flag.Bool("dev", false, "use the in-memory store regardless of config")
		sampleConfig = flag.String("sample-config", "", "write a sample config file to the given path and exit")
	)
	flag.Parse()

	if *sampleConfig != "" {
		if err := config.GenerateSampleConfig(*sampleConfig); err != nil {
			fmt.Fprintf(os.Stderr, "sample config: %v\n", err)
			return exitConfig
		}
		fmt.Printf("Sample configuration written to %s\n", *sampleConfig)
		return exitOK
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		return exitConfig
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	// Initialize event bus
	eventBus := events.NewEventBus()
	eventBus.SubscribeAll(func(event events.Event) {
		logger.Debug("event", "type", string(event.Type), "user", event.UserID)
	})

	// Initialize notification manager
	notifyManager := notification.NewManager(cfg.NotificationConfig)
	if cfg.NotificationConfig.Enabled {
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(cfg.NotificationConfig.Telegram))
			logger.Info("Telegram notifications enabled")
		}
		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(cfg.NotificationConfig.Discord))
			logger.Info("Discord notifications enabled")
		}
	}

	// Initialize storage
	store, code := openStore(cfg, *dev, logger)
	if store == nil {
		return code
	}
	defer store.Close()

	// Initialize market-data clients, with an optional Redis response cache
	var cache *marketdata.Cache
	if cfg.RedisConfig.Enabled {
		cache = marketdata.NewCache(cfg.RedisConfig)
		defer cache.Close()
		logger.Info("Redis response cache enabled", "address", cfg.RedisConfig.Address)
	}

	feedLogger := newFeedLogger(cfg.LoggingConfig)
	poolFeed := marketdata.NewPoolFeedClient(cfg.MarketDataConfig, cache, feedLogger)
	pairLookup := marketdata.NewPairLookupClient(cfg.MarketDataConfig, cache, feedLogger)
	sentiment := marketdata.NewSentimentClient(cfg.MarketDataConfig, cache, feedLogger)

	// Build the per-user cycle manager
	registry := metrics.NewRegistry()
	manager := engine.NewManager(engine.Deps{
		Store:     store,
		PoolFeed:  poolFeed,
		Pairs:     pairLookup,
		Sentiment: sentiment,
		Config:    *cfg,
		Bus:       eventBus,
		Notify:    notifyManager,
		Metrics:   registry,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		return runOnce(ctx, manager, cfg, *onceUser, logger)
	}

	return serve(ctx, cfg, manager, store, registry, logger)
}

// openStore picks the persistence backend. A nil store means startup must
// abort with the returned exit code.
func openStore(cfg *config.Config, dev bool, logger *logging.Logger) (storage.Store, int) {
	driver := cfg.StorageConfig.Driver
	if dev {
		driver = "memory"
	}

	switch driver {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.New(), exitOK

	case "postgres":
		db, err := database.NewDB(database.Config{
			URL:      cfg.StorageConfig.DatabaseURL,
			MaxConns: cfg.StorageConfig.MaxConns,
		})
		if err != nil {
			logger.Error("database connection failed", "error", err)
			return nil, exitStorage
		}

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.RunMigrations(migrateCtx); err != nil {
			logger.Error("database migrations failed", "error", err)
			db.Close()
			return nil, exitStorage
		}
		return database.NewRepository(db), exitOK

	default:
		fmt.Fprintf(os.Stderr, "configuration: unknown storage driver %q\n", driver)
		return nil, exitConfig
	}
}

// runOnce executes one cycle pass and maps the results to the CLI exit codes
func runOnce(ctx context.Context, manager *engine.Manager, cfg *config.Config, user string, logger *logging.Logger) int {
	var results []*engine.CycleResult

	if user != "" {
		if !containsUser(cfg.EngineConfig.Users, user) {
			fmt.Fprintf(os.Stderr, "configuration: unknown user %q\n", user)
			return exitConfig
		}
		result, err := manager.RunUser(ctx, user)
		if err != nil {
			logger.Error("cycle failed", "user", user, "error", err)
			return exitPartial
		}
		results = append(results, result)
	} else {
		results = manager.RunAll(ctx)
	}

	return exitCodeFor(results)
}

// exitCodeFor classifies a finished pass. Feed exhaustion outranks partial
// failure: when every user's discovery scans all failed there was nothing
// to trade on.
func exitCodeFor(results []*engine.CycleResult) int {
	if len(results) == 0 {
		return exitOK
	}

	partial := false
	feedsDown := true
	for _, result := range results {
		if result.Skipped {
			continue
		}
		if len(result.Errors) > 0 {
			partial = true
		}
		if !discoveryFeedsFailed(result) {
			feedsDown = false
		}
	}

	if feedsDown && partial {
		return exitFeeds
	}
	if partial {
		return exitPartial
	}
	return exitOK
}

// discoveryFeedsFailed reports whether both discovery scans errored. The
// sentiment feed degrades to a neutral regime on its own, so the pool feed
// is the signal that matters.
func discoveryFeedsFailed(result *engine.CycleResult) bool {
	var momentum, early bool
	for _, msg := range result.Errors {
		if strings.HasPrefix(msg, "momentum scan:") {
			momentum = true
		}
		if strings.HasPrefix(msg, "early scan:") {
			early = true
		}
	}
	return momentum && early
}

// serve runs the HTTP control surface and the optional internal ticker
// until a shutdown signal arrives
func serve(ctx context.Context, cfg *config.Config, manager *engine.Manager, store storage.Store, registry *metrics.Registry, logger *logging.Logger) int {
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, cfg.CronConfig, cfg.EngineConfig.Users, manager, store, registry)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
		logger.Info("HTTP control surface started",
			"host", cfg.ServerConfig.Host, "port", cfg.ServerConfig.Port)
	}

	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		manager.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "error", err)
		}
	}

	select {
	case <-tickerDone:
	case <-shutdownCtx.Done():
		logger.Warn("ticker did not stop before the shutdown deadline")
	}

	logger.Info("shutdown complete")
	return exitOK
}

// newFeedLogger builds the zerolog logger the market-data clients share
func newFeedLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.JSONFormat {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
}

func containsUser(users []string, id string) bool {
	for _, u := range users {
		if u == id {
			return true
		}
	}
	return false
}
