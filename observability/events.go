package observability

import (
	"log/slog"
	"sort"
	"strconv"

	"partnerledger/core/events"
)

// EventSink logs every ledger event and feeds the ledger metrics registry.
type EventSink struct {
	logger  *slog.Logger
	metrics *LedgerMetrics
}

// NewEventSink returns an emitter writing to logger. A nil logger falls back to
// slog.Default.
func NewEventSink(logger *slog.Logger, metrics *LedgerMetrics) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger.With("component", "events"), metrics: metrics}
}

// Emit implements events.Emitter.
func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	rendered := evt.Event()
	if rendered == nil {
		return
	}
	attrs := rendered.Attributes
	switch rendered.Type {
	case events.TypeCommissionCreated:
		amount, _ := strconv.ParseInt(attrs["amount"], 10, 64)
		s.metrics.RecordCommissionCreated(attrs["level"], amount)
	case events.TypeCommissionTransitioned:
		s.metrics.RecordCommissionTransition(attrs["to"])
	case events.TypeBonusEntryAppended:
		amount, _ := strconv.ParseInt(attrs["amount"], 10, 64)
		s.metrics.RecordBonusEntry(attrs["type"], attrs["source"], amount)
	case events.TypeBonusExpiryWarning:
		s.metrics.RecordExpiryWarning(attrs["windowDays"])
	case events.TypeWithdrawalTransitioned:
		s.metrics.RecordWithdrawal(attrs["to"])
	}

	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.Time("occurredAt", rendered.OccurredAt))
	for _, key := range keys {
		args = append(args, slog.String(key, attrs[key]))
	}
	s.logger.Info(rendered.Type, args...)
}
