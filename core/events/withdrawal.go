package events

import (
	"time"

	"partnerledger/core/types"
)

// TypeWithdrawalTransitioned is emitted when a withdrawal request is created or
// changes status.
const TypeWithdrawalTransitioned = "withdrawal.transitioned"

type WithdrawalTransitioned struct {
	WithdrawalID string
	UserID       string
	From         string
	To           string
	Amount       int64
	TaxAmount    int64
	Actor        string
	Reason       string
	At           time.Time
}

func (WithdrawalTransitioned) EventType() string { return TypeWithdrawalTransitioned }

func (e WithdrawalTransitioned) Event() *types.Event {
	attrs := map[string]string{
		"id":        e.WithdrawalID,
		"userId":    e.UserID,
		"to":        normalizeStatus(e.To),
		"amount":    formatAmount(e.Amount),
		"taxAmount": formatAmount(e.TaxAmount),
	}
	setIfNotEmpty(attrs, "from", normalizeStatus(e.From))
	setIfNotEmpty(attrs, "actor", e.Actor)
	setIfNotEmpty(attrs, "reason", e.Reason)
	return &types.Event{Type: TypeWithdrawalTransitioned, Attributes: attrs, OccurredAt: e.At}
}
