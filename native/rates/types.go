package rates

import "strings"

// TaxStatus identifies the tax regime of a withdrawing user.
type TaxStatus string

const (
	TaxIndividual   TaxStatus = "INDIVIDUAL"
	TaxSelfEmployed TaxStatus = "SELF_EMPLOYED"
	TaxEntrepreneur TaxStatus = "ENTREPRENEUR"
	TaxCompany      TaxStatus = "COMPANY"
)

// ParseTaxStatus normalises user supplied tax status strings.
func ParseTaxStatus(raw string) TaxStatus {
	return TaxStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// ActivityType identifies an activity eligible for a bonus grant.
type ActivityType string

const (
	ActivityRegistration        ActivityType = "REGISTRATION"
	ActivityFirstPurchase       ActivityType = "FIRST_PURCHASE"
	ActivityProfileCompleted    ActivityType = "PROFILE_COMPLETED"
	ActivitySubscriptionStarted ActivityType = "SUBSCRIPTION_STARTED"
	ActivityReviewWritten       ActivityType = "REVIEW_WRITTEN"
	ActivityDailyLogin          ActivityType = "DAILY_LOGIN"
	ActivityContentShared       ActivityType = "CONTENT_SHARED"
)

// ParseActivityType normalises user supplied activity identifiers.
func ParseActivityType(raw string) ActivityType {
	return ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
}

// PartnerLevel is a row of the level ladder. DisplayCommissionBps is shown to
// partners only; commission amounts always use the depth table.
type PartnerLevel struct {
	Number               int
	Name                 string
	DisplayCommissionBps uint32
	MinReferrals         int64
	MinTeamVolume        int64
}

// BonusConfig holds the bonus program constants.
type BonusConfig struct {
	DefaultExpiryDays       int
	MinWithdrawal           int64
	MaxBonusPercentCheckout int64
	ReferralBonusPercent    int64
	ExpirationWarningDays   []int
}

// ActivityBonus is the grant configured for an activity.
type ActivityBonus struct {
	Type      ActivityType
	Amount    int64
	OneTime   bool
	MaxPerDay uint32
}
