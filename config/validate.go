package config

import (
	"fmt"
	"strings"
)

var (
	MaxRateBps         = uint32(10_000)
	MaxCommissionDepth = 5
	KnownTaxStatuses   = []string{"INDIVIDUAL", "SELF_EMPLOYED", "ENTREPRENEUR", "COMPANY"}
)

// ValidateConfig checks the structural invariants of the rate tables.
func ValidateConfig(c Config) error {
	if len(c.CommissionRatesBps) == 0 || len(c.CommissionRatesBps) > MaxCommissionDepth {
		return fmt.Errorf("commission: expected 1..%d depth rates, got %d", MaxCommissionDepth, len(c.CommissionRatesBps))
	}
	var total uint32
	for i, bps := range c.CommissionRatesBps {
		if bps > MaxRateBps {
			return fmt.Errorf("commission: depth %d rate %d bps exceeds %d", i+1, bps, MaxRateBps)
		}
		total += bps
	}
	if total > MaxRateBps {
		return fmt.Errorf("commission: combined rate %d bps exceeds %d", total, MaxRateBps)
	}
	for _, status := range KnownTaxStatuses {
		bps, ok := c.TaxRatesBps[status]
		if !ok {
			return fmt.Errorf("tax: missing rate for %s", status)
		}
		if bps > MaxRateBps {
			return fmt.Errorf("tax: %s rate %d bps exceeds %d", status, bps, MaxRateBps)
		}
	}
	if len(c.PartnerLevels) == 0 {
		return fmt.Errorf("levels: at least one partner level required")
	}
	for i, level := range c.PartnerLevels {
		if level.Number != i+1 {
			return fmt.Errorf("levels: expected level %d at position %d, got %d", i+1, i, level.Number)
		}
		if strings.TrimSpace(level.Name) == "" {
			return fmt.Errorf("levels: level %d name required", level.Number)
		}
		if level.MinReferrals < 0 || level.MinTeamVolume < 0 {
			return fmt.Errorf("levels: level %d thresholds must be non-negative", level.Number)
		}
		if i == 0 {
			continue
		}
		prev := c.PartnerLevels[i-1]
		if level.MinReferrals <= prev.MinReferrals || level.MinTeamVolume <= prev.MinTeamVolume {
			return fmt.Errorf("levels: level %d thresholds must exceed level %d", level.Number, prev.Number)
		}
	}
	b := c.Bonus
	if b.DefaultExpiryDays <= 0 {
		return fmt.Errorf("bonus: default_expiry_days must be positive")
	}
	if b.MinWithdrawalAmount <= 0 {
		return fmt.Errorf("bonus: min_withdrawal_amount must be positive")
	}
	if b.MaxBonusPercentCheckout < 0 || b.MaxBonusPercentCheckout > 100 {
		return fmt.Errorf("bonus: max_bonus_percent_checkout must be within 0..100")
	}
	if b.ReferralBonusPercent < 0 || b.ReferralBonusPercent > 100 {
		return fmt.Errorf("bonus: referral_bonus_percent must be within 0..100")
	}
	seenDays := make(map[int]struct{}, len(b.ExpirationWarningDays))
	for _, days := range b.ExpirationWarningDays {
		if days <= 0 {
			return fmt.Errorf("bonus: expiration warning days must be positive")
		}
		if _, dup := seenDays[days]; dup {
			return fmt.Errorf("bonus: duplicate expiration warning window %d", days)
		}
		seenDays[days] = struct{}{}
	}
	seenActivities := make(map[string]struct{}, len(c.Activities))
	for _, activity := range c.Activities {
		key := strings.ToUpper(strings.TrimSpace(activity.Type))
		if key == "" {
			return fmt.Errorf("activities: type required")
		}
		if _, dup := seenActivities[key]; dup {
			return fmt.Errorf("activities: duplicate activity %s", key)
		}
		if activity.Amount <= 0 {
			return fmt.Errorf("activities: %s amount must be positive", key)
		}
		if activity.OneTime && activity.MaxPerDay > 0 {
			return fmt.Errorf("activities: %s is one-time and cannot carry a daily cap", key)
		}
		seenActivities[key] = struct{}{}
	}
	return nil
}
