// Command calendarsvc is the daily calendar image service's entrypoint: it
// loads configuration, wires the clock, sources, renderer, state store,
// lock manager, audit log, scheduler, and HTTP surface, and generates an
// initial image on startup if none has been published yet.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/moyuren/calendarsvc/internal/audit"
	"github.com/moyuren/calendarsvc/internal/cachecleaner"
	"github.com/moyuren/calendarsvc/internal/clock"
	"github.com/moyuren/calendarsvc/internal/config"
	"github.com/moyuren/calendarsvc/internal/fanout"
	"github.com/moyuren/calendarsvc/internal/httpapi"
	"github.com/moyuren/calendarsvc/internal/locking"
	"github.com/moyuren/calendarsvc/internal/orchestrator"
	"github.com/moyuren/calendarsvc/internal/render"
	"github.com/moyuren/calendarsvc/internal/scheduler"
	"github.com/moyuren/calendarsvc/internal/sources"
	"github.com/moyuren/calendarsvc/internal/statestore"
	"github.com/moyuren/calendarsvc/internal/tradingday"
)

const holidayCanonicalBase = "https://raw.githubusercontent.com"

func holidayRawPath(year int) string {
	return fmt.Sprintf("/NateScarlet/holiday-cn/master/%d.json", year)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	envPath := flag.String("env", ".env", "path to a .env file to load before reading secrets")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "calendarsvc").Logger()

	if err := run(*configPath, *envPath, log); err != nil {
		log.Fatal().Err(err).Msg("calendarsvc exited with error")
	}
}

func run(configPath, envPath string, log zerolog.Logger) error {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Logging.Level != "" {
		if level, parseErr := zerolog.ParseLevel(cfg.Logging.Level); parseErr == nil {
			log = log.Level(level)
		}
	}

	clk, err := clock.New(cfg.Timezone.Business, cfg.Timezone.Display)
	if err != nil {
		return fmt.Errorf("init clock: %w", err)
	}

	for _, dir := range []string{cfg.Paths.StaticDir, filepath.Dir(cfg.Paths.StatePath), cfg.Paths.CacheDir, cfg.Paths.LockDir} {
		if dir == "" {
			continue
		}
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return fmt.Errorf("create directory %s: %w", dir, mkErr)
		}
	}

	stateDB, err := sql.Open("sqlite", filepath.Join(cfg.Paths.CacheDir, "calendarsvc.db"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer stateDB.Close()

	var marketHoursURL string
	for _, src := range cfg.Sources {
		if src.Type == "stock_index" {
			marketHoursURL = src.MarketHoursAPIURL
		}
	}
	oracle, err := tradingday.New(stateDB, marketHoursURL, log)
	if err != nil {
		return fmt.Errorf("init trading-day oracle: %w", err)
	}

	auditLog, err := audit.New(stateDB, log)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}

	registry, holidayFetcher := buildSources(cfg, clk, oracle)
	fetcher := fanout.New(registry, log)

	lockMgr, err := locking.NewManager(cfg.Paths.LockDir, log)
	if err != nil {
		return fmt.Errorf("init lock manager: %w", err)
	}
	if cleared, clearErr := lockMgr.ClearStuckLocks(time.Hour); clearErr != nil {
		log.Warn().Err(clearErr).Msg("failed to sweep stale lock files")
	} else if len(cleared) > 0 {
		log.Info().Strs("locks", cleared).Msg("cleared stale lock files left by a previous run")
	}

	browser, err := render.NewPlaywrightBrowser()
	if err != nil {
		return fmt.Errorf("init headless browser: %w", err)
	}
	defer browser.Close()

	renderer := render.New(cfg.Paths.TemplatesDir, cfg.Paths.StaticDir, browser, nil)
	store := statestore.New(cfg.Paths.StatePath)

	cleaner, err := cachecleaner.New(cfg.Paths.CacheDir, log)
	if err != nil {
		return fmt.Errorf("init cache cleaner: %w", err)
	}

	orch := orchestrator.New(clk, fetcher, holidayFetcher, cfg, renderer, store, cleaner, auditLog, lockMgr, cfg.Cache.RetainDays, log)

	sched := scheduler.New(orch, log)
	schedMode := scheduler.ModeDaily
	if cfg.Scheduler.Mode == "hourly" {
		schedMode = scheduler.ModeHourly
	}
	for _, item := range cfg.Templates.Items {
		if installErr := sched.Install(scheduler.Config{
			Template:     item.Name,
			Mode:         schedMode,
			DailyTimes:   cfg.Scheduler.DailyTimes,
			MinuteOfHour: cfg.Scheduler.MinuteOfHour,
		}); installErr != nil {
			return fmt.Errorf("install schedule for %s: %w", item.Name, installErr)
		}
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	templateNames := make([]string, 0, len(cfg.Templates.Items))
	for _, item := range cfg.Templates.Items {
		templateNames = append(templateNames, item.Name)
	}

	baseURL := cfg.Server.BaseDomain
	server := httpapi.New(
		store, templateNames, baseURL, cfg.Ops.APIKey, cfg.Paths.StaticDir,
		func(templateName string, trigger audit.Trigger) (string, error) {
			return orch.Generate(context.Background(), templateName, trigger)
		},
		func(retainDays int) (cachecleaner.Result, error) {
			return cleaner.Cleanup(clk.BusinessToday(), retainDays)
		},
		auditLog.Recent,
		log,
	)

	if _, exists, loadErr := store.Load(); loadErr == nil && !exists {
		log.Info().Msg("no existing state file, generating initial image")
		if _, genErr := orch.Generate(context.Background(), cfg.DefaultName(), audit.TriggerStartup); genErr != nil {
			log.Warn().Err(genErr).Msg("initial image generation failed")
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("calendarsvc listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down calendarsvc")
	case serveErr := <-errCh:
		return fmt.Errorf("http server: %w", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildSources constructs the adapter registry from cfg's discriminated
// data_sources list, wrapping each namespace-cacheable adapter (news,
// fun_content, crazy_thursday) with a daily cache. The holiday
// year-fetcher is returned separately since the aggregator consumes it
// directly rather than through the fan-out.
func buildSources(cfg *config.Config, clk *clock.Clock, oracle *tradingday.Oracle) (*sources.Registry, *sources.HolidayYearFetcher) {
	businessDate := func() time.Time { return clk.BusinessToday() }
	today := func() string { return clk.BusinessToday().Format("2006-01-02") }

	var adapters []sources.Adapter
	var holidayFetcher *sources.HolidayYearFetcher

	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		timeout := time.Duration(src.TimeoutSec) * time.Second

		switch src.Type {
		case "news":
			inner := sources.NewNewsAdapter(src.URL, timeout)
			adapters = append(adapters, sources.NewCachedAdapter(inner, cfg.Paths.CacheDir, today, zerolog.Nop()))

		case "fun_content":
			endpoints := make([]sources.FunContentEndpoint, 0, len(src.Endpoints))
			for _, ep := range src.Endpoints {
				endpoints = append(endpoints, sources.FunContentEndpoint{
					Name: ep.Name, URL: ep.URL, DataPath: ep.DataPath, DisplayTitle: ep.DisplayTitle,
				})
			}
			inner := sources.NewFunContentAdapter(endpoints, timeout, businessDate)
			adapters = append(adapters, sources.NewCachedAdapter(inner, cfg.Paths.CacheDir, today, zerolog.Nop()))

		case "crazy_thursday":
			inner := sources.NewKfcAdapter(src.URL, timeout, businessDate)
			adapters = append(adapters, sources.NewCachedAdapter(inner, cfg.Paths.CacheDir, today, zerolog.Nop()))

		case "stock_index":
			cacheTTL := time.Duration(src.CacheTTLSec) * time.Second
			adapters = append(adapters, sources.NewStockAdapter(src.QuoteURL, timeout, cacheTTL, oracle, businessDate))

		case "holiday":
			holidayFetcher = sources.NewHolidayYearFetcher(
				src.Mirrors, holidayCanonicalBase, holidayRawPath,
				filepath.Join(cfg.Paths.CacheDir, "holidays"), timeout,
			)
		}
	}

	if holidayFetcher == nil {
		holidayFetcher = sources.NewHolidayYearFetcher(nil, holidayCanonicalBase, holidayRawPath,
			filepath.Join(cfg.Paths.CacheDir, "holidays"), 10*time.Second)
	}

	return sources.NewRegistry(adapters...), holidayFetcher
}
