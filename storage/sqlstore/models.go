package sqlstore

import (
	"time"

	"gorm.io/gorm"
)

// BonusAccount is the per-user lock row and balance projection.
type BonusAccount struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Balance   int64  `gorm:"not null;default:0"`
	LastSeq   int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BonusEntry is an append-only ledger row.
type BonusEntry struct {
	ID           string     `gorm:"primaryKey;size:64"`
	UserID       string     `gorm:"size:64;not null;uniqueIndex:idx_bonus_entries_user_seq,priority:1"`
	Seq          int64      `gorm:"not null;uniqueIndex:idx_bonus_entries_user_seq,priority:2"`
	Type         string     `gorm:"size:16;not null;index"`
	Amount       int64      `gorm:"not null"`
	Direction    int        `gorm:"not null"`
	Source       string     `gorm:"size:32"`
	ReferenceID  string     `gorm:"size:128;index"`
	ActivityType string     `gorm:"size:64"`
	ExpiresAt    *time.Time `gorm:"index"`
	Remaining    int64      `gorm:"not null;default:0"`
	Memo         string     `gorm:"size:512"`
	Actor        string     `gorm:"size:128"`
	CreatedAt    time.Time  `gorm:"index"`
}

// UserActivityBonus records one-time activity grants.
type UserActivityBonus struct {
	UserID        string `gorm:"primaryKey;size:64"`
	Activity      string `gorm:"primaryKey;size:64"`
	TransactionID string `gorm:"size:64"`
	GrantedAt     time.Time
}

// Referral links a referred user to their partner.
type Referral struct {
	ReferralID string `gorm:"primaryKey;size:64"`
	PartnerID  string `gorm:"size:64;not null;index"`
	CreatedAt  time.Time
}

// SourceTransaction is a purchase that was run through the commission
// calculator.
type SourceTransaction struct {
	ID         string    `gorm:"primaryKey;size:128"`
	PayerID    string    `gorm:"size:64;not null;index"`
	Amount     int64     `gorm:"not null"`
	OccurredAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// Commission is a partner's share of a source transaction.
type Commission struct {
	ID                  string `gorm:"primaryKey;size:64"`
	PartnerID           string `gorm:"size:64;not null;index"`
	SourceUserID        string `gorm:"size:64;not null"`
	SourceTransactionID string `gorm:"size:128;not null;index"`
	Level               int    `gorm:"not null"`
	Amount              int64  `gorm:"not null"`
	Status              string `gorm:"size:16;not null;index"`
	ApprovedBy          string `gorm:"size:128"`
	PayoutRef           string `gorm:"size:128"`
	CancelReason        string `gorm:"size:512"`
	LedgerEntryID       string `gorm:"size:64"`
	ApprovedAt          *time.Time
	PaidAt              *time.Time
	CancelledAt         *time.Time
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time
}

// Withdrawal is a persisted withdrawal request. Payment details are stored
// masked as a kind plus JSON payload.
type Withdrawal struct {
	ID              string `gorm:"primaryKey;size:64"`
	UserID          string `gorm:"size:64;not null;index"`
	Amount          int64  `gorm:"not null"`
	TaxStatus       string `gorm:"size:32;not null"`
	TaxRateBps      uint32
	TaxAmount       int64
	NetAmount       int64
	PaymentKind     string `gorm:"size:32"`
	PaymentPayload  string `gorm:"type:text"`
	Status          string `gorm:"size:16;not null;index"`
	ReviewedBy      string `gorm:"size:128"`
	RejectionReason string `gorm:"size:512"`
	PayoutRef       string `gorm:"size:128"`
	LedgerEntryID   string `gorm:"size:64"`
	ApprovedAt      *time.Time
	ProcessingAt    *time.Time
	CompletedAt     *time.Time
	RejectedAt      *time.Time
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}

// IdempotencyKey stores request idempotency metadata for the HTTP API.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	BodyHash  string `gorm:"size:64"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the ledger.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BonusAccount{},
		&BonusEntry{},
		&UserActivityBonus{},
		&Referral{},
		&SourceTransaction{},
		&Commission{},
		&Withdrawal{},
		&IdempotencyKey{},
	)
}
