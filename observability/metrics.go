package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "partnerledger"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per route group.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks commission, bonus and withdrawal activity.
type LedgerMetrics struct {
	commissionsCreated     *prometheus.CounterVec
	commissionAmount       *prometheus.CounterVec
	commissionTransitions  *prometheus.CounterVec
	bonusEntries           *prometheus.CounterVec
	bonusPoints            *prometheus.CounterVec
	withdrawals            *prometheus.CounterVec
	expiryWarnings         *prometheus.CounterVec
	sweepDuration          *prometheus.HistogramVec
	sweepErrors            *prometheus.CounterVec
	sweepLastSuccessMillis *prometheus.GaugeVec
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			commissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commission",
				Name:      "created_total",
				Help:      "Commissions written by the calculator segmented by upline level.",
			}, []string{"level"}),
			commissionAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commission",
				Name:      "created_amount_total",
				Help:      "Sum of commission amounts written segmented by upline level.",
			}, []string{"level"}),
			commissionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commission",
				Name:      "transitions_total",
				Help:      "Commission status transitions segmented by target status.",
			}, []string{"status"}),
			bonusEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bonus",
				Name:      "entries_total",
				Help:      "Bonus ledger entries appended segmented by entry type and source.",
			}, []string{"type", "source"}),
			bonusPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bonus",
				Name:      "points_total",
				Help:      "Absolute bonus points moved segmented by entry type.",
			}, []string{"type"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "transitions_total",
				Help:      "Withdrawal requests entering each status.",
			}, []string{"status"}),
			expiryWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bonus",
				Name:      "expiry_warnings_total",
				Help:      "Expiry warnings raised segmented by warning window.",
			}, []string{"window_days"}),
			sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of scheduled sweeps.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			}, []string{"sweep"}),
			sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "sweep_errors_total",
				Help:      "Scheduled sweeps that returned an error.",
			}, []string{"sweep"}),
			sweepLastSuccessMillis: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "sweep_last_success_timestamp_ms",
				Help:      "Unix timestamp in milliseconds of the last successful sweep.",
			}, []string{"sweep"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.commissionsCreated,
			ledgerRegistry.commissionAmount,
			ledgerRegistry.commissionTransitions,
			ledgerRegistry.bonusEntries,
			ledgerRegistry.bonusPoints,
			ledgerRegistry.withdrawals,
			ledgerRegistry.expiryWarnings,
			ledgerRegistry.sweepDuration,
			ledgerRegistry.sweepErrors,
			ledgerRegistry.sweepLastSuccessMillis,
		)
	})
	return ledgerRegistry
}

// RecordCommissionCreated counts a commission written at the supplied level.
func (m *LedgerMetrics) RecordCommissionCreated(level string, amount int64) {
	if m == nil {
		return
	}
	m.commissionsCreated.WithLabelValues(level).Inc()
	if amount > 0 {
		m.commissionAmount.WithLabelValues(level).Add(float64(amount))
	}
}

// RecordCommissionTransition counts a commission entering status.
func (m *LedgerMetrics) RecordCommissionTransition(status string) {
	if m == nil {
		return
	}
	m.commissionTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// RecordBonusEntry counts an appended ledger entry.
func (m *LedgerMetrics) RecordBonusEntry(entryType, source string, amount int64) {
	if m == nil {
		return
	}
	entryType = normalizeLabel(entryType)
	m.bonusEntries.WithLabelValues(entryType, normalizeLabel(source)).Inc()
	if amount < 0 {
		amount = -amount
	}
	if amount > 0 {
		m.bonusPoints.WithLabelValues(entryType).Add(float64(amount))
	}
}

// RecordWithdrawal counts a withdrawal entering status.
func (m *LedgerMetrics) RecordWithdrawal(status string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(normalizeLabel(status)).Inc()
}

// RecordExpiryWarning counts a warning raised for the supplied window.
func (m *LedgerMetrics) RecordExpiryWarning(windowDays string) {
	if m == nil {
		return
	}
	m.expiryWarnings.WithLabelValues(windowDays).Inc()
}

// ObserveSweep records the duration and outcome of a scheduled sweep.
func (m *LedgerMetrics) ObserveSweep(sweep string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	sweep = strings.TrimSpace(sweep)
	if sweep == "" {
		sweep = "unknown"
	}
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
	if err != nil {
		m.sweepErrors.WithLabelValues(sweep).Inc()
		return
	}
	m.sweepLastSuccessMillis.WithLabelValues(sweep).Set(float64(time.Now().UnixMilli()))
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToUpper(value))
	if trimmed == "" {
		return "NONE"
	}
	return trimmed
}
