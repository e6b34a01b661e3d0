package withdrawal

import (
	"time"

	"partnerledger/native/rates"
)

// Status enumerates the withdrawal lifecycle states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
)

// OpenStatuses are the states whose amount is held against the balance.
var OpenStatuses = []Status{StatusPending, StatusApproved, StatusProcessing}

// TaxQuote is the tax breakdown of a withdrawal amount.
type TaxQuote struct {
	Amount     int64
	TaxStatus  rates.TaxStatus
	TaxRateBps uint32
	TaxAmount  int64
	NetAmount  int64
}

// Request is a user's request to cash out bonus.
type Request struct {
	ID              string
	UserID          string
	Amount          int64
	TaxStatus       rates.TaxStatus
	TaxRateBps      uint32
	TaxAmount       int64
	NetAmount       int64
	Payment         PaymentDetails
	Status          Status
	ReviewedBy      string
	RejectionReason string
	PayoutRef       string
	LedgerEntryID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ApprovedAt      *time.Time
	ProcessingAt    *time.Time
	CompletedAt     *time.Time
	RejectedAt      *time.Time
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.ApprovedAt = cloneTime(r.ApprovedAt)
	clone.ProcessingAt = cloneTime(r.ProcessingAt)
	clone.CompletedAt = cloneTime(r.CompletedAt)
	clone.RejectedAt = cloneTime(r.RejectedAt)
	return &clone
}

// CreateRequest carries the caller supplied fields of a new withdrawal.
type CreateRequest struct {
	UserID         string
	Amount         int64
	TaxStatus      rates.TaxStatus
	PaymentDetails PaymentDetails
}

// Filter narrows withdrawal listings.
type Filter struct {
	UserID   string
	Statuses []Status
	Limit    int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
