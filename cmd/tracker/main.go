package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_market_table/internal/infrastructure/coingecko"
	"github.com/vitos/crypto_market_table/internal/infrastructure/logger"
	"github.com/vitos/crypto_market_table/internal/infrastructure/metrics"
	"github.com/vitos/crypto_market_table/internal/infrastructure/storage"
	"github.com/vitos/crypto_market_table/internal/usecase"
	"github.com/vitos/crypto_market_table/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		os.Exit(reportFailure(log, err))
	}
}

// reportFailure logs err and flushes the logger, since os.Exit skips
// deferred calls. It returns the process exit code.
func reportFailure(log *zap.Logger, err error) int {
	log.Error("Tracker failed", zap.Error(err))
	_ = log.Sync()
	return 1
}

func run(cfg *Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer store.Close()
	store.WithRetention(cfg.Storage.Keep)

	// 4. Init Provider
	client := coingecko.NewClient(coingecko.Config{
		BaseURL: cfg.CoinGecko.BaseURL,
		APIKey:  cfg.CoinGecko.APIKey,
		Timeout: cfg.FetchTimeout(),
		Retry: coingecko.RetryConfig{
			MaxAttempts: cfg.CoinGecko.RetryAttempts,
			BaseDelay:   coingecko.DefaultRetry.BaseDelay,
			MaxDelay:    coingecko.DefaultRetry.MaxDelay,
		},
	}, log.Named("coingecko"))

	// 5. Init View, Metrics and Scheduler
	m, reg := metrics.New(nil)
	view := usecase.NewDatasetView(log.Named("view"))
	scheduler := usecase.NewRefreshScheduler(client, view, usecase.RefreshSchedulerConfig{
		Interval:     cfg.RefreshInterval(),
		FetchTimeout: cfg.FetchTimeout(),
		Journal:      store,
		Observer:     m,
	}, log.Named("scheduler"))

	// 6. Init Web Server
	hub := web.NewHub(view, m, log.Named("ws"))
	go hub.Run(ctx)

	server := web.NewServer(cfg.Server.Port, view, scheduler, store, hub, m, metrics.Handler(reg), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 7. Start Refreshing
	scheduler.Start(ctx)

	// 8. Wait for Shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			scheduler.Stop()
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info("Shutting down...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown error", zap.Error(err))
	}
	return nil
}
