package bonus

import (
	"time"

	"partnerledger/native/rates"
)

// EntryType classifies ledger entries.
type EntryType string

const (
	EntryEarned     EntryType = "EARNED"
	EntrySpent      EntryType = "SPENT"
	EntryWithdrawn  EntryType = "WITHDRAWN"
	EntryExpired    EntryType = "EXPIRED"
	EntryAdjustment EntryType = "ADJUSTMENT"
)

// Source identifies where earned bonus came from.
type Source string

const (
	SourcePartner       Source = "PARTNER"
	SourcePromo         Source = "PROMO"
	SourceRefund        Source = "REFUND"
	SourceReferralBonus Source = "REFERRAL_BONUS"
	SourceActivity      Source = "ACTIVITY"
)

// Valid reports whether s is a known grant source.
func (s Source) Valid() bool {
	switch s {
	case SourcePartner, SourcePromo, SourceRefund, SourceReferralBonus, SourceActivity:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry. Amount is always positive; the
// sign comes from Type, or from Direction for adjustments.
type Transaction struct {
	ID           string
	UserID       string
	Type         EntryType
	Amount       int64
	Direction    int
	Source       Source
	ReferenceID  string
	ActivityType rates.ActivityType
	ExpiresAt    *time.Time
	Memo         string
	Actor        string
	CreatedAt    time.Time
	Seq          int64
}

// Signed returns the entry's effect on the balance.
func (t Transaction) Signed() int64 {
	switch t.Type {
	case EntryEarned:
		return t.Amount
	case EntrySpent, EntryWithdrawn, EntryExpired:
		return -t.Amount
	case EntryAdjustment:
		if t.Direction < 0 {
			return -t.Amount
		}
		return t.Amount
	}
	return 0
}

// GrantRequest describes an EARNED entry to append.
type GrantRequest struct {
	UserID      string
	Amount      int64
	Source      Source
	ExpiresAt   *time.Time
	ReferenceID string
	Activity    rates.ActivityType
}

// ActivityGrant records a one-time activity bonus.
type ActivityGrant struct {
	UserID        string
	Activity      rates.ActivityType
	TransactionID string
	GrantedAt     time.Time
}

// Lot is an earning (or positive adjustment) with the amount not yet
// consumed by debits or expiry.
type Lot struct {
	EntryID   string
	Amount    int64
	Remaining int64
	ExpiresAt *time.Time
	Seq       int64
	CreatedAt time.Time
}

// Stats summarises a user's bonus position.
type Stats struct {
	UserID         string
	Balance        int64
	Available      int64
	Held           int64
	TotalEarned    int64
	TotalSpent     int64
	TotalWithdrawn int64
	TotalExpired   int64
	NetAdjusted    int64
	NextExpiry     *time.Time
	Expiring       map[int]int64
}

// ExpirySummary reports the outcome of an expiry sweep.
type ExpirySummary struct {
	Users   int
	Entries int
	Total   int64
}

// Warning announces bonus that will expire within a configured window.
type Warning struct {
	UserID         string
	WindowDays     int
	Amount         int64
	EarliestExpiry time.Time
}

// AuditReport compares the stored projection with a fresh fold.
type AuditReport struct {
	UserID    string
	Projected int64
	Folded    int64
	Drift     int64
	Repaired  bool
}
