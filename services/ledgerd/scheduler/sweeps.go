package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"partnerledger/native/bonus"
	"partnerledger/native/commission"
	"partnerledger/native/common"
	"partnerledger/native/withdrawal"
	"partnerledger/observability"
	telemetry "partnerledger/observability/otel"
	"partnerledger/services/ledgerd/report"
)

// Payouter sends a PROCESSING withdrawal's net amount to the user's payment
// details. Implementations must be idempotent on the request's PayoutRef since
// a failed completion is retried on the next run.
type Payouter interface {
	Payout(ctx context.Context, req *withdrawal.Request) error
}

// PayouterFunc adapts a function to Payouter.
type PayouterFunc func(ctx context.Context, req *withdrawal.Request) error

// Payout implements Payouter.
func (f PayouterFunc) Payout(ctx context.Context, req *withdrawal.Request) error { return f(ctx, req) }

// StatementExporter writes statements for a period.
type StatementExporter interface {
	Export(ctx context.Context, from, to time.Time) (*report.Result, error)
}

// MaintenanceConfig wires the daily sweeps.
type MaintenanceConfig struct {
	Ledger           *bonus.Ledger
	Commissions      *commission.Engine
	Withdrawals      *withdrawal.Engine
	Payouter         Payouter
	Exporter         StatementExporter
	AutoApproveAfter time.Duration
	SettleBatch      int
	PayoutBatch      int
	Metrics          *observability.LedgerMetrics
	Logger           *slog.Logger
}

// Maintenance runs expiry, commission and payout sweeps.
type Maintenance struct {
	cfg    MaintenanceConfig
	logger *slog.Logger
}

// Report summarises one maintenance run.
type Report struct {
	At         time.Time
	Expired    bonus.ExpirySummary
	Approved   int
	Settled    int
	Payouts    PayoutSummary
	Warnings   int
	Statements *report.Result
}

// PayoutSummary counts payout sweep outcomes.
type PayoutSummary struct {
	Started   int
	Completed int
	Failed    int
}

// LogAttrs renders the report for structured logs.
func (r *Report) LogAttrs() []any {
	if r == nil {
		return nil
	}
	attrs := []any{
		slog.Time("at", r.At),
		slog.Int("expiredUsers", r.Expired.Users),
		slog.Int("expiredEntries", r.Expired.Entries),
		slog.Int64("expiredTotal", r.Expired.Total),
		slog.Int("commissionsApproved", r.Approved),
		slog.Int("commissionsSettled", r.Settled),
		slog.Int("payoutsStarted", r.Payouts.Started),
		slog.Int("payoutsCompleted", r.Payouts.Completed),
		slog.Int("payoutsFailed", r.Payouts.Failed),
		slog.Int("expiryWarnings", r.Warnings),
	}
	if r.Statements != nil {
		attrs = append(attrs, slog.String("statementsDir", r.Statements.Dir))
	}
	return attrs
}

// NewMaintenance validates cfg.
func NewMaintenance(cfg MaintenanceConfig) (*Maintenance, error) {
	if cfg.Ledger == nil || cfg.Commissions == nil || cfg.Withdrawals == nil {
		return nil, errors.New("scheduler: ledger, commissions and withdrawals are required")
	}
	if cfg.AutoApproveAfter <= 0 {
		cfg.AutoApproveAfter = 14 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{cfg: cfg, logger: logger.With("component", "maintenance")}, nil
}

// Run executes every sweep for at. A failing sweep does not stop the others;
// their errors are joined.
func (m *Maintenance) Run(ctx context.Context, at time.Time) (*Report, error) {
	rep := &Report{At: at.UTC()}
	var errs []error

	expired, err := m.Expire(ctx, at)
	rep.Expired = expired
	errs = append(errs, err)

	approved, settled, err := m.Commissions(ctx, at)
	rep.Approved, rep.Settled = approved, settled
	errs = append(errs, err)

	payouts, err := m.Payouts(ctx)
	rep.Payouts = payouts
	errs = append(errs, err)

	warnings, err := m.Warnings(ctx, at)
	rep.Warnings = len(warnings)
	errs = append(errs, err)

	if m.cfg.Exporter != nil {
		var statements *report.Result
		err := m.observe(ctx, "statements", func(ctx context.Context) error {
			var err error
			statements, err = m.cfg.Exporter.Export(ctx, at.Add(-24*time.Hour), at)
			return err
		})
		rep.Statements = statements
		errs = append(errs, err)
	}
	return rep, errors.Join(errs...)
}

// Expire appends EXPIRED entries for lots past their expiry at at.
func (m *Maintenance) Expire(ctx context.Context, at time.Time) (bonus.ExpirySummary, error) {
	var summary bonus.ExpirySummary
	err := m.observe(ctx, "expire", func(ctx context.Context) error {
		var err error
		summary, err = m.cfg.Ledger.Expire(ctx, at)
		return err
	})
	return summary, err
}

// Commissions approves PENDING commissions older than the auto-approve age and
// settles APPROVED ones into bonus credits.
func (m *Maintenance) Commissions(ctx context.Context, at time.Time) (int, int, error) {
	var approved, settled int
	err := m.observe(ctx, "commission_approve", func(ctx context.Context) error {
		var err error
		approved, err = m.cfg.Commissions.ApproveAllPending(ctx, at.Add(-m.cfg.AutoApproveAfter), "scheduler")
		return err
	})
	if err != nil {
		return approved, 0, err
	}
	err = m.observe(ctx, "commission_settle", func(ctx context.Context) error {
		var err error
		settled, err = m.cfg.Commissions.SettleApproved(ctx, m.cfg.SettleBatch)
		return err
	})
	return approved, settled, err
}

// Payouts retries PROCESSING withdrawals left by earlier runs, then moves
// APPROVED ones to PROCESSING and pays them out. A request whose payout or
// completion fails stays PROCESSING.
func (m *Maintenance) Payouts(ctx context.Context) (PayoutSummary, error) {
	var summary PayoutSummary
	if m.cfg.Payouter == nil {
		m.logger.Warn("payout sweep skipped: no payouter configured")
		return summary, nil
	}
	err := m.observe(ctx, "payouts", func(ctx context.Context) error {
		retries, err := m.cfg.Withdrawals.List(ctx, withdrawal.Filter{
			Statuses: []withdrawal.Status{withdrawal.StatusProcessing},
			Limit:    m.cfg.PayoutBatch,
		})
		if err != nil {
			return err
		}
		for _, req := range retries {
			m.payout(ctx, req, &summary)
		}
		approved, err := m.cfg.Withdrawals.List(ctx, withdrawal.Filter{
			Statuses: []withdrawal.Status{withdrawal.StatusApproved},
			Limit:    m.cfg.PayoutBatch,
		})
		if err != nil {
			return err
		}
		for _, req := range approved {
			started, err := m.cfg.Withdrawals.StartProcessing(ctx, req.ID, "payout:"+req.ID)
			if errors.Is(err, common.ErrModulePaused) {
				m.logger.Warn("payouts paused; approved withdrawals left queued")
				break
			}
			if err != nil {
				summary.Failed++
				m.logger.Error("start payout failed",
					slog.String("withdrawalId", req.ID),
					slog.String("error", err.Error()))
				continue
			}
			summary.Started++
			m.payout(ctx, started, &summary)
		}
		return nil
	})
	return summary, err
}

func (m *Maintenance) payout(ctx context.Context, req *withdrawal.Request, summary *PayoutSummary) {
	if err := m.cfg.Payouter.Payout(ctx, req); err != nil {
		summary.Failed++
		m.logger.Error("payout failed",
			slog.String("withdrawalId", req.ID),
			slog.String("userId", req.UserID),
			slog.String("error", err.Error()))
		return
	}
	if _, err := m.cfg.Withdrawals.Complete(ctx, req.ID); err != nil {
		summary.Failed++
		m.logger.Error("complete withdrawal failed",
			slog.String("withdrawalId", req.ID),
			slog.String("userId", req.UserID),
			slog.String("error", err.Error()))
		return
	}
	summary.Completed++
}

// Warnings collects expiry warnings for every configured window.
func (m *Maintenance) Warnings(ctx context.Context, at time.Time) ([]bonus.Warning, error) {
	var warnings []bonus.Warning
	err := m.observe(ctx, "expiry_warnings", func(ctx context.Context) error {
		var err error
		warnings, err = m.cfg.Ledger.Warnings(ctx, at)
		return err
	})
	return warnings, err
}

func (m *Maintenance) observe(ctx context.Context, sweep string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer("scheduler").Start(ctx, "sweep."+sweep)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	m.cfg.Metrics.ObserveSweep(sweep, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("sweep failed", slog.String("sweep", sweep), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", sweep, err)
	}
	span.SetAttributes(attribute.String("sweep", sweep))
	return nil
}
