package config

// PartnerLevel describes a single row of the partner level ladder.
type PartnerLevel struct {
	Number               int    `toml:"Number"`
	Name                 string `toml:"Name"`
	DisplayCommissionBps uint32 `toml:"DisplayCommissionBps"`
	MinReferrals         int64  `toml:"MinReferrals"`
	MinTeamVolume        int64  `toml:"MinTeamVolume"`
}

// Bonus groups the bonus program constants.
type Bonus struct {
	DefaultExpiryDays       int   `toml:"DefaultExpiryDays"`
	MinWithdrawalAmount     int64 `toml:"MinWithdrawalAmount"`
	MaxBonusPercentCheckout int64 `toml:"MaxBonusPercentCheckout"`
	ReferralBonusPercent    int64 `toml:"ReferralBonusPercent"`
	ExpirationWarningDays   []int `toml:"ExpirationWarningDays"`
}

// Activity describes a bonus granted for a user activity.
type Activity struct {
	Type    string `toml:"Type"`
	Amount  int64  `toml:"Amount"`
	OneTime bool   `toml:"OneTime"`
	// MaxPerDay caps repeatable grants per user per UTC day. Zero is unbounded.
	MaxPerDay uint32 `toml:"MaxPerDay"`
}

// Config is the on-disk representation of the rate tables.
type Config struct {
	Currency           string            `toml:"Currency"`
	CommissionRatesBps []uint32          `toml:"CommissionRatesBps"`
	TaxRatesBps        map[string]uint32 `toml:"TaxRatesBps"`
	PartnerLevels      []PartnerLevel    `toml:"PartnerLevels"`
	Bonus              Bonus             `toml:"Bonus"`
	Activities         []Activity        `toml:"Activities"`
}
