package events

import (
	"strconv"
	"time"

	"partnerledger/core/types"
)

const (
	// TypeCommissionCreated is emitted for every PENDING commission written by
	// the calculator.
	TypeCommissionCreated = "commission.created"
	// TypeCommissionTransitioned is emitted when an admin or payout step moves a
	// commission to a new status.
	TypeCommissionTransitioned = "commission.transitioned"
)

type CommissionCreated struct {
	CommissionID        string
	PartnerID           string
	SourceUserID        string
	SourceTransactionID string
	Level               int
	Amount              int64
	CreatedAt           time.Time
}

func (CommissionCreated) EventType() string { return TypeCommissionCreated }

func (e CommissionCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeCommissionCreated,
		Attributes: map[string]string{
			"id":                  e.CommissionID,
			"partnerId":           e.PartnerID,
			"sourceUserId":        e.SourceUserID,
			"sourceTransactionId": e.SourceTransactionID,
			"level":               strconv.Itoa(e.Level),
			"amount":              formatAmount(e.Amount),
		},
		OccurredAt: e.CreatedAt,
	}
}

type CommissionTransitioned struct {
	CommissionID string
	PartnerID    string
	From         string
	To           string
	Actor        string
	Reason       string
	Amount       int64
	At           time.Time
}

func (CommissionTransitioned) EventType() string { return TypeCommissionTransitioned }

func (e CommissionTransitioned) Event() *types.Event {
	attrs := map[string]string{
		"id":        e.CommissionID,
		"partnerId": e.PartnerID,
		"from":      normalizeStatus(e.From),
		"to":        normalizeStatus(e.To),
		"amount":    formatAmount(e.Amount),
	}
	setIfNotEmpty(attrs, "actor", e.Actor)
	setIfNotEmpty(attrs, "reason", e.Reason)
	return &types.Event{Type: TypeCommissionTransitioned, Attributes: attrs, OccurredAt: e.At}
}
