package commission

import "time"

// Status enumerates the commission lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// SourceTransaction is a completed purchase that pays commissions up the
// referral chain.
type SourceTransaction struct {
	ID         string
	PayerID    string
	Amount     int64
	OccurredAt time.Time
}

// Commission is one partner's share of a source transaction.
type Commission struct {
	ID                  string
	PartnerID           string
	SourceUserID        string
	SourceTransactionID string
	Level               int
	Amount              int64
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ApprovedAt          *time.Time
	ApprovedBy          string
	PaidAt              *time.Time
	PayoutRef           string
	CancelledAt         *time.Time
	CancelReason        string
	// LedgerEntryID is the EARNED entry that credited a settled commission.
	LedgerEntryID string
}

// Clone returns a deep copy of the commission.
func (c *Commission) Clone() *Commission {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ApprovedAt = cloneTime(c.ApprovedAt)
	clone.PaidAt = cloneTime(c.PaidAt)
	clone.CancelledAt = cloneTime(c.CancelledAt)
	return &clone
}

// Filter narrows commission listings.
type Filter struct {
	PartnerID     string
	Statuses      []Status
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	// Uncredited keeps only commissions paid into the bonus ledger whose
	// credit has not been recorded yet.
	Uncredited bool
	Limit      int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
