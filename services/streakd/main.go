package streakd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"handstreak/native/streak"
	"handstreak/observability/logging"
	telemetry "handstreak/observability/otel"
	"handstreak/services/streakd/export"
	"handstreak/services/streakd/store"
	"handstreak/storage"
)

func logStoreOpened(logger *slog.Logger, cfg StoreConfig) {
	logger.Info("store opened", "driver", cfg.Driver, logging.MaskField("dsn", cfg.DSN))
}

// Main initialises and runs the streak daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to streakd configuration (yaml or toml)")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions("streakd", cfg.Env, cfg.Log)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("streakd", cfg.Env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	logStoreOpened(logger, cfg.Store)

	journalDB, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = journalDB.Close() }()

	processor := NewProcessor(st, NewJournal(journalDB),
		WithEngine(streak.NewEngine(streak.WithParams(cfg.Engine))),
		WithExporter(export.NewWriter(cfg.Export.Dir)),
		WithLogger(logger),
		WithProposalTTL(cfg.ProposalTTL.Duration),
	)
	limiter := NewRateLimiter(cfg.RateLimits, logger)
	admin := NewAdminServer(processor, limiter, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(admin, "streakd"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.Inbox.Dir) != "" {
		inbox, err := newInbox(cfg.Inbox, processor, logger)
		if err != nil {
			return err
		}
		go inbox.Start(stopCtx)
		logger.Info("inbox enabled", "dir", cfg.Inbox.Dir, "run_at", cfg.Inbox.RunAt)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("streakd listening", "addr", cfg.ListenAddress, "driver", cfg.Store.Driver)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func openJournal(cfg JournalConfig) (storage.Database, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(cfg.Path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newInbox(cfg InboxSettings, processor BatchProcessor, logger *slog.Logger) (*Inbox, error) {
	hour, minute, err := ParseClock(cfg.RunAt)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("inbox timezone: %w", err)
	}
	return NewInbox(InboxConfig{
		Processor: processor,
		Dir:       cfg.Dir,
		RunHour:   hour,
		RunMinute: minute,
		Location:  loc,
		Logger:    logger,
	}), nil
}
