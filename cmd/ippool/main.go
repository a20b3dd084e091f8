package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ippool/configs"
	"ippool/internal/api"
	"ippool/internal/checker"
	"ippool/internal/engine"
	"ippool/internal/geoip"
	"ippool/internal/pool"
	"ippool/internal/scraper"
	"ippool/internal/scraper/sources"
	"ippool/internal/storage"
)

func main() {
	// 1. Load Config
	cfg, err := configs.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// 3. Sources
	var sourceList []scraper.Source
	if cfg.SourcesFile != "" {
		sourceList, err = sources.Load(cfg.SourcesFile)
		if err != nil {
			slog.Error("Failed to load sources", "file", cfg.SourcesFile, "error", err)
			os.Exit(1)
		}
	} else {
		sourceList = sources.Defaults()
	}

	// 4. Checker
	chk := checker.NewChecker(cfg.ProbeTarget, cfg.ProbeTimeout)
	if cfg.ProbeUserAgent != "" {
		chk.UserAgent = cfg.ProbeUserAgent
	}
	validator := checker.NewValidator(chk, checker.ValidatorConfig{
		GroupSize:    cfg.GroupSize,
		Concurrency:  cfg.Concurrency,
		ProbeTimeout: cfg.ProbeTimeout,
		ProbeRate:    cfg.ProbeRate,
	})

	// Init GeoIP
	var counter api.CountryCounter
	var locator storage.CountryLocator
	geo, err := geoip.New(cfg.GeoIPPath)
	if err != nil {
		slog.Warn("GeoIP disabled (DB not found or invalid)", "error", err)
	} else {
		defer geo.Close()
		counter, locator = geo, geo
		slog.Info("GeoIP enabled")
	}

	// 5. Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional Postgres mirror
	var publisher storage.Publisher
	if cfg.DatabaseURL != "" {
		repo, err := storage.NewPostgresPublisher(ctx, cfg.DatabaseURL, locator)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		publisher = repo
	}

	// 6. Initialize Engine
	store := pool.NewStore()
	eng := engine.New(store, sourceList, validator, publisher, engine.Config{
		RefreshInterval: cfg.RefreshInterval,
		SourceTimeout:   cfg.SourceTimeout,
		MaxPoolSize:     cfg.MaxPoolSize,
	})

	slog.Info("Starting IP pool",
		"sources", len(sourceList),
		"concurrency", cfg.Concurrency,
		"group_size", cfg.GroupSize,
		"refresh_interval", cfg.RefreshInterval.String(),
	)

	// 7. Bootstrap before accepting requests
	if err := eng.Bootstrap(ctx); err != nil {
		slog.Error("Bootstrap aborted", "error", err)
		os.Exit(1)
	}

	// 8. Serve
	srv := api.NewServer(cfg.ListenAddr, store, eng, counter)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(engineDone)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down...")
	case err := <-serveErr:
		if err != nil {
			slog.Error("Pool API failed", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Pool API shutdown", "error", err)
	}
	<-engineDone

	slog.Info("Shutdown complete")
}
