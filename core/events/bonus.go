package events

import (
	"strconv"
	"time"

	"partnerledger/core/types"
)

const (
	// TypeBonusEntryAppended is emitted for every ledger entry appended.
	TypeBonusEntryAppended = "bonus.entry.appended"
	// TypeBonusExpiryWarning is emitted when a user has points expiring within
	// one of the configured warning windows.
	TypeBonusExpiryWarning = "bonus.expiry.warning"
)

type BonusEntryAppended struct {
	EntryID     string
	UserID      string
	EntryType   string
	Source      string
	Amount      int64
	Direction   int
	ReferenceID string
	ExpiresAt   *time.Time
	Balance     int64
	CreatedAt   time.Time
}

func (BonusEntryAppended) EventType() string { return TypeBonusEntryAppended }

func (e BonusEntryAppended) Event() *types.Event {
	attrs := map[string]string{
		"id":        e.EntryID,
		"userId":    e.UserID,
		"type":      normalizeStatus(e.EntryType),
		"amount":    formatAmount(e.Amount),
		"direction": strconv.Itoa(e.Direction),
		"balance":   formatAmount(e.Balance),
	}
	setIfNotEmpty(attrs, "source", normalizeStatus(e.Source))
	setIfNotEmpty(attrs, "referenceId", e.ReferenceID)
	if e.ExpiresAt != nil {
		attrs["expiresAt"] = formatTime(*e.ExpiresAt)
	}
	return &types.Event{Type: TypeBonusEntryAppended, Attributes: attrs, OccurredAt: e.CreatedAt}
}

type BonusExpiryWarning struct {
	UserID         string
	WindowDays     int
	Amount         int64
	EarliestExpiry time.Time
	At             time.Time
}

func (BonusExpiryWarning) EventType() string { return TypeBonusExpiryWarning }

func (e BonusExpiryWarning) Event() *types.Event {
	return &types.Event{
		Type: TypeBonusExpiryWarning,
		Attributes: map[string]string{
			"userId":         e.UserID,
			"windowDays":     strconv.Itoa(e.WindowDays),
			"amount":         formatAmount(e.Amount),
			"earliestExpiry": formatTime(e.EarliestExpiry),
		},
		OccurredAt: e.At,
	}
}
