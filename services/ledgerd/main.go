package ledgerd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"partnerledger/config"
	"partnerledger/native/rates"
	"partnerledger/observability/logging"
	telemetry "partnerledger/observability/otel"
	"partnerledger/services/ledgerd/payout"
	"partnerledger/services/ledgerd/scheduler"
	"partnerledger/storage/sqlstore"
)

// Main initialises and runs the ledger daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ledgerd/config.yaml", "path to ledgerd configuration")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("LEDGERD_ENV"))
	logger := logging.Setup("ledgerd", env, logging.Options{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	telemetryCfg := telemetry.ConfigFromEnv("ledgerd", env)
	telemetryCfg.Traces = telemetryCfg.Traces && cfg.Telemetry.Traces
	telemetryCfg.Metrics = telemetryCfg.Metrics && cfg.Telemetry.Metrics
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	rateCfg, err := config.Load(cfg.RatesPath)
	if err != nil {
		return fmt.Errorf("load rate tables: %w", err)
	}
	tables, err := rates.New(*rateCfg)
	if err != nil {
		return fmt.Errorf("build rate tables: %w", err)
	}

	db, err := sqlstore.Open(cfg.DatabaseDSN, false)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := sqlstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	store := sqlstore.New(db)

	opts := Options{Logger: logger}
	if cfg.Payout.Endpoint != "" {
		client, err := payout.NewClient(cfg.Payout.Endpoint, cfg.Payout.APIKey, tables.Currency(), cfg.Payout.Timeout.Duration)
		if err != nil {
			return fmt.Errorf("payout client: %w", err)
		}
		opts.Payouter = client
	} else {
		logger.Warn("payout endpoint not configured; approved withdrawals will wait")
	}
	app, err := NewApp(cfg, store, tables, opts)
	if err != nil {
		return err
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Scheduler.Disabled {
		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("scheduler timezone: %w", err)
		}
		sched := scheduler.New(scheduler.Config{
			Job:       app.Maintenance,
			RunHour:   cfg.Scheduler.RunHour,
			RunMinute: cfg.Scheduler.RunMinute,
			Location:  loc,
			Logger:    logger,
		})
		go sched.Start(stopCtx)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           app.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
