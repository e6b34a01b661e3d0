package ledgerd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"partnerledger/core/events"
	"partnerledger/native/bonus"
	"partnerledger/native/commission"
	"partnerledger/native/common"
	"partnerledger/native/partner"
	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
	"partnerledger/observability"
	"partnerledger/services/ledgerd/auth"
	"partnerledger/services/ledgerd/middleware"
	"partnerledger/services/ledgerd/report"
	"partnerledger/services/ledgerd/scheduler"
	"partnerledger/services/ledgerd/server"
	"partnerledger/storage/sqlstore"
)

// App bundles the wired engines, jobs and HTTP server.
type App struct {
	Store       *sqlstore.Store
	Tables      *rates.Tables
	Ledger      *bonus.Ledger
	Partners    *partner.Service
	Commissions *commission.Engine
	Withdrawals *withdrawal.Engine
	Exporter    *report.Exporter
	Maintenance *scheduler.Maintenance
	Server      *server.Server
}

// Options carries the collaborators that are not part of the YAML config.
type Options struct {
	Logger   *slog.Logger
	Emitter  events.Emitter
	Payouter scheduler.Payouter
	Now      func() time.Time
}

// NewApp wires every engine on top of store.
func NewApp(cfg Config, store *sqlstore.Store, tables *rates.Tables, opts Options) (*App, error) {
	if store == nil || tables == nil {
		return nil, errors.New("ledgerd: store and rate tables are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = observability.NewEventSink(logger, observability.Ledger())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ledger := bonus.NewLedger(store.Bonus(), tables)
	ledger.SetEmitter(emitter)
	ledger.SetNowFunc(now)

	graph := partner.NewGraph(store)
	graph.SetNowFunc(now)
	partners := partner.NewService(graph, store, tables)
	partners.SetNowFunc(now)

	commissions := commission.NewEngine(tables)
	commissions.SetState(store)
	commissions.SetUpline(graph)
	commissions.SetBonusGranter(ledger)
	commissions.SetEmitter(emitter)
	commissions.SetNowFunc(now)

	withdrawals := withdrawal.NewEngine(tables)
	withdrawals.SetState(store.Withdrawals())
	withdrawals.SetLedger(ledger)
	withdrawals.SetEmitter(emitter)
	withdrawals.SetNowFunc(now)
	withdrawals.SetPauses(common.NewPauses(cfg.Paused))

	exporter, err := report.NewExporter(report.Config{
		Source:    store,
		OutputDir: cfg.ReportsDir,
		Currency:  tables.Currency(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ledgerd: exporter: %w", err)
	}

	maintenanceCfg := scheduler.MaintenanceConfig{
		Ledger:           ledger,
		Commissions:      commissions,
		Withdrawals:      withdrawals,
		Payouter:         opts.Payouter,
		AutoApproveAfter: cfg.Scheduler.AutoApproveAfter.Duration,
		SettleBatch:      cfg.Scheduler.SettleBatch,
		PayoutBatch:      cfg.Scheduler.PayoutBatch,
		Metrics:          observability.Ledger(),
		Logger:           logger,
	}
	if cfg.Scheduler.ExportStatements {
		maintenanceCfg.Exporter = exporter
	}
	maintenance, err := scheduler.NewMaintenance(maintenanceCfg)
	if err != nil {
		return nil, fmt.Errorf("ledgerd: maintenance: %w", err)
	}

	authn := auth.NewAuthenticator(auth.Config{
		Disabled:   cfg.Auth.Disabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)

	srv := server.New(server.Config{
		DB:          store.DB(),
		Health:      store,
		Tables:      tables,
		Ledger:      ledger,
		Partners:    partners,
		Commissions: commissions,
		Withdrawals: withdrawals,
		Maintenance: maintenance,
		Auth:        authn,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
		Now:    now,
	})

	return &App{
		Store:       store,
		Tables:      tables,
		Ledger:      ledger,
		Partners:    partners,
		Commissions: commissions,
		Withdrawals: withdrawals,
		Exporter:    exporter,
		Maintenance: maintenance,
		Server:      srv,
	}, nil
}
