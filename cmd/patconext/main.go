package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/patconext-data/internal/api"
	"github.com/patconext-data/internal/board"
	"github.com/patconext-data/internal/common/config"
	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/common/maintenance"
	"github.com/patconext-data/internal/dataset"
	"github.com/patconext-data/internal/schedule"
)

func main() {
	// .env is optional; the environment wins when both are set
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	loggerConfig := logger.DefaultLoggerConfig()
	loggerConfig.Level = logger.ParseLogLevel(cfg.Logging.Level)
	loggerConfig.FilePath = cfg.Logging.FilePath
	loggerConfig.File = cfg.Logging.FilePath != ""
	loggerConfig.DiscordURL = cfg.Logging.DiscordURL
	log := logger.NewFromConfig(loggerConfig)

	log.Info("PATCO next-departures service starting",
		"log_level", cfg.Logging.Level,
		"data_url", cfg.Timetable.DataURL,
		"db_driver", cfg.Database.Driver,
		"http_addr", cfg.HTTP.Addr)

	database, err := db.New(cfg.Database.Driver, cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to apply database schema", "error", err)
	}

	cleanupConfig := maintenance.DefaultSchedulerConfig()
	cleanupConfig.CleanupInterval = cfg.Maintenance.CleanupInterval
	cleanupConfig.KeepInactiveVersions = cfg.Maintenance.KeepInactiveVersions
	cleanup := maintenance.NewCleanupScheduler(database, log, cleanupConfig)
	versions := db.NewVersionChecker(database, nil)

	store := dataset.NewStore(nil)
	refresher := dataset.NewRefresher(dataset.Config{
		DataURL:          cfg.Timetable.DataURL,
		SchedulesPageURL: cfg.Timetable.SchedulesPageURL,
		Schedule:         cfg.Timetable.RefreshSchedule,
		StaleAfter:       cfg.Timetable.StaleAfter,
	},
		dataset.NewHTTPFetcher(cfg.Timetable.FetchTimeout, log),
		store,
		log,
		dataset.WithVersionStore(versions),
		dataset.WithLinkSource(dataset.NewLinkScraper(nil, log)),
		dataset.WithRefreshLocker(cleanup),
	)

	selector := schedule.NewSelector()
	selector.Match = schedule.MatchMode(cfg.Timetable.SpecialMatch)
	selector.StandardFallbackURL = cfg.Timetable.StandardPDFURL
	selector.SpecialFallbackURL = cfg.Timetable.SpecialPageURL
	resolver := schedule.NewResolver(schedule.NewNormalizer(nil), selector, log)

	prefs := db.NewPreferences(database)
	boardManager := board.NewManager(board.Config{
		Interval:       cfg.Display.Interval,
		Count:          cfg.Display.DefaultCount,
		DefaultStation: cfg.Display.DefaultStation,
	}, resolver, store, prefs, refresher, nil, log)

	server := api.NewServer(api.Config{
		DefaultCount:   cfg.Display.DefaultCount,
		DefaultStation: cfg.Display.DefaultStation,
		StaleAfter:     cfg.Timetable.StaleAfter,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
	}, api.Deps{
		Snapshots:   store,
		Resolver:    resolver,
		Refresher:   refresher,
		Prefs:       prefs,
		Board:       boardManager,
		DB:          database.DB(),
		Versions:    versions,
		Maintenance: cleanup,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	if err := refresher.Start(ctx); err != nil {
		log.Fatal("Failed to start timetable refresher", "error", err)
	}
	if err := cleanup.Start(ctx); err != nil {
		log.Error("Failed to start cleanup scheduler", "error", err)
	}
	if err := boardManager.Start(ctx); err != nil {
		log.Error("Failed to start board manager", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", "error", err)
	}

	boardManager.Stop()
	refresher.Stop()
	cleanup.Stop()
	cancel()

	log.Info("PATCO next-departures service stopped")
}
