package rates

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"

	"partnerledger/config"
	ledgererrors "partnerledger/core/errors"
)

// BasisPoints is the denominator used by every rate in the tables.
const BasisPoints = 10_000

// Tables is the immutable rate configuration shared by the engines.
type Tables struct {
	currency   string
	commission []uint32
	tax        map[TaxStatus]uint32
	levels     []PartnerLevel
	bonus      BonusConfig
	activities map[ActivityType]ActivityBonus
}

// New validates cfg and builds the rate tables.
func New(cfg config.Config) (*Tables, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("rates: %w", err)
	}
	t := &Tables{
		currency:   cfg.Currency,
		commission: append([]uint32(nil), cfg.CommissionRatesBps...),
		tax:        make(map[TaxStatus]uint32, len(cfg.TaxRatesBps)),
		levels:     make([]PartnerLevel, 0, len(cfg.PartnerLevels)),
		activities: make(map[ActivityType]ActivityBonus, len(cfg.Activities)),
	}
	for status, bps := range cfg.TaxRatesBps {
		t.tax[ParseTaxStatus(status)] = bps
	}
	for _, level := range cfg.PartnerLevels {
		t.levels = append(t.levels, PartnerLevel{
			Number:               level.Number,
			Name:                 level.Name,
			DisplayCommissionBps: level.DisplayCommissionBps,
			MinReferrals:         level.MinReferrals,
			MinTeamVolume:        level.MinTeamVolume,
		})
	}
	sort.Slice(t.levels, func(i, j int) bool { return t.levels[i].Number < t.levels[j].Number })
	t.bonus = BonusConfig{
		DefaultExpiryDays:       cfg.Bonus.DefaultExpiryDays,
		MinWithdrawal:           cfg.Bonus.MinWithdrawalAmount,
		MaxBonusPercentCheckout: cfg.Bonus.MaxBonusPercentCheckout,
		ReferralBonusPercent:    cfg.Bonus.ReferralBonusPercent,
		ExpirationWarningDays:   append([]int(nil), cfg.Bonus.ExpirationWarningDays...),
	}
	sort.Sort(sort.Reverse(sort.IntSlice(t.bonus.ExpirationWarningDays)))
	for _, activity := range cfg.Activities {
		kind := ParseActivityType(activity.Type)
		t.activities[kind] = ActivityBonus{
			Type:      kind,
			Amount:    activity.Amount,
			OneTime:   activity.OneTime,
			MaxPerDay: activity.MaxPerDay,
		}
	}
	return t, nil
}

// Default returns the built-in tables.
func Default() *Tables {
	t, err := New(config.Default())
	if err != nil {
		panic(err)
	}
	return t
}

// Currency reports the ISO code amounts are denominated in.
func (t *Tables) Currency() string { return t.currency }

// MaxDepth is the number of upline levels that earn commission.
func (t *Tables) MaxDepth() int { return len(t.commission) }

// CommissionRate returns the rate for the given upline depth (1-based).
func (t *Tables) CommissionRate(depth int) (uint32, error) {
	if depth < 1 || depth > len(t.commission) {
		return 0, &ledgererrors.ConfigurationError{Table: "COMMISSION_RATES_BY_DEPTH", Key: strconv.Itoa(depth)}
	}
	return t.commission[depth-1], nil
}

// TaxRate returns the withholding rate for the tax status.
func (t *Tables) TaxRate(status TaxStatus) (uint32, error) {
	bps, ok := t.tax[status]
	if !ok {
		return 0, &ledgererrors.ConfigurationError{Table: "TAX_RATES", Key: string(status)}
	}
	return bps, nil
}

// Level returns the level definition by number.
func (t *Tables) Level(number int) (PartnerLevel, error) {
	for _, level := range t.levels {
		if level.Number == number {
			return level, nil
		}
	}
	return PartnerLevel{}, &ledgererrors.ConfigurationError{Table: "PARTNER_LEVELS", Key: strconv.Itoa(number)}
}

// Levels returns a copy of the ladder ordered by ascending number.
func (t *Tables) Levels() []PartnerLevel {
	return append([]PartnerLevel(nil), t.levels...)
}

// Bonus returns the bonus program constants.
func (t *Tables) Bonus() BonusConfig {
	cfg := t.bonus
	cfg.ExpirationWarningDays = append([]int(nil), t.bonus.ExpirationWarningDays...)
	return cfg
}

// Activity returns the configured grant for the activity.
func (t *Tables) Activity(kind ActivityType) (ActivityBonus, error) {
	activity, ok := t.activities[kind]
	if !ok {
		return ActivityBonus{}, &ledgererrors.ConfigurationError{Table: "ACTIVITY_BONUSES", Key: string(kind)}
	}
	return activity, nil
}

// ApplyBps returns amount*bps/10000 rounded half up. Non-positive amounts
// yield zero. The product is computed in big.Int so large amounts do not
// wrap.
func ApplyBps(amount int64, bps uint32) int64 {
	if amount <= 0 || bps == 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(amount), big.NewInt(int64(bps)))
	product.Add(product, big.NewInt(BasisPoints/2))
	return saturate(product.Quo(product, big.NewInt(BasisPoints)))
}

// ApplyPercent returns amount*percent/100 rounded down. Non-positive inputs
// yield zero.
func ApplyPercent(amount, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(amount), big.NewInt(percent))
	return saturate(product.Quo(product, big.NewInt(100)))
}

func saturate(v *big.Int) int64 {
	if !v.IsInt64() {
		return math.MaxInt64
	}
	return v.Int64()
}
