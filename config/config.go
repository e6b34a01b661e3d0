package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default returns the rate tables used when no file has been written yet.
func Default() Config {
	return Config{
		Currency:           "RUB",
		CommissionRatesBps: []uint32{1000, 500, 300, 200, 100},
		TaxRatesBps: map[string]uint32{
			"INDIVIDUAL":    1300,
			"SELF_EMPLOYED": 400,
			"ENTREPRENEUR":  600,
			"COMPANY":       0,
		},
		PartnerLevels: []PartnerLevel{
			{Number: 1, Name: "Bronze", DisplayCommissionBps: 1000, MinReferrals: 0, MinTeamVolume: 0},
			{Number: 2, Name: "Silver", DisplayCommissionBps: 1200, MinReferrals: 5, MinTeamVolume: 50_000},
			{Number: 3, Name: "Gold", DisplayCommissionBps: 1500, MinReferrals: 20, MinTeamVolume: 250_000},
			{Number: 4, Name: "Platinum", DisplayCommissionBps: 1800, MinReferrals: 50, MinTeamVolume: 1_000_000},
			{Number: 5, Name: "Diamond", DisplayCommissionBps: 2000, MinReferrals: 100, MinTeamVolume: 5_000_000},
		},
		Bonus: Bonus{
			DefaultExpiryDays:       365,
			MinWithdrawalAmount:     1000,
			MaxBonusPercentCheckout: 50,
			ReferralBonusPercent:    5,
			ExpirationWarningDays:   []int{30, 7, 1},
		},
		Activities: []Activity{
			{Type: "REGISTRATION", Amount: 100, OneTime: true},
			{Type: "FIRST_PURCHASE", Amount: 500, OneTime: true},
			{Type: "PROFILE_COMPLETED", Amount: 50, OneTime: true},
			{Type: "SUBSCRIPTION_STARTED", Amount: 200, OneTime: true},
			{Type: "REVIEW_WRITTEN", Amount: 20, MaxPerDay: 5},
			{Type: "DAILY_LOGIN", Amount: 5, MaxPerDay: 1},
			{Type: "CONTENT_SHARED", Amount: 10, MaxPerDay: 10},
		},
	}
}

// Load loads the rate tables from the given path. A missing file is created
// with the defaults so operators have a template to edit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	normalize(cfg)
	if err := ValidateConfig(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "RUB"
	}
	if cfg.TaxRatesBps != nil {
		normalized := make(map[string]uint32, len(cfg.TaxRatesBps))
		for status, bps := range cfg.TaxRatesBps {
			normalized[strings.ToUpper(strings.TrimSpace(status))] = bps
		}
		cfg.TaxRatesBps = normalized
	}
	sort.SliceStable(cfg.PartnerLevels, func(i, j int) bool {
		return cfg.PartnerLevels[i].Number < cfg.PartnerLevels[j].Number
	})
	for i := range cfg.Activities {
		cfg.Activities[i].Type = strings.ToUpper(strings.TrimSpace(cfg.Activities[i].Type))
	}
	if cfg.Bonus.ExpirationWarningDays == nil {
		cfg.Bonus.ExpirationWarningDays = []int{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
