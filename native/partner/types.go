package partner

import (
	"time"

	"partnerledger/native/rates"
)

// Referral links a referred user to the partner that brought them in. Each
// user has at most one upline partner.
type Referral struct {
	PartnerID  string
	ReferralID string
	CreatedAt  time.Time
}

// Stats is the aggregate view used for level evaluation and partner
// dashboards.
type Stats struct {
	PartnerID          string
	TotalReferrals     int64
	ActiveReferrals    int64
	TeamSize           int64
	TeamVolume         int64
	TotalEarned        int64
	PendingCommissions int64
}

// Progress describes what is missing to reach the next level.
type Progress struct {
	Next               rates.PartnerLevel
	RemainingReferrals int64
	RemainingVolume    int64
	Percent            int
}

// LevelStatus is the evaluated level together with the progress towards the
// next one. Progress is nil at the top of the ladder.
type LevelStatus struct {
	Current  rates.PartnerLevel
	Progress *Progress
}

// TeamMember is a downline user annotated with the depth at which they sit.
type TeamMember struct {
	UserID string
	Depth  int
}
