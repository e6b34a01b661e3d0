package rates

import (
	"errors"
	"math"
	"testing"

	"partnerledger/config"
	ledgererrors "partnerledger/core/errors"
)

func TestDefaultTables(t *testing.T) {
	tables := Default()
	expected := []uint32{1000, 500, 300, 200, 100}
	if tables.MaxDepth() != len(expected) {
		t.Fatalf("expected depth %d got %d", len(expected), tables.MaxDepth())
	}
	for i, want := range expected {
		got, err := tables.CommissionRate(i + 1)
		if err != nil {
			t.Fatalf("depth %d: %v", i+1, err)
		}
		if got != want {
			t.Fatalf("depth %d: expected %d got %d", i+1, want, got)
		}
	}
	if bps, _ := tables.TaxRate(TaxEntrepreneur); bps != 600 {
		t.Fatalf("expected ENTREPRENEUR 600 got %d", bps)
	}
	level, err := tables.Level(3)
	if err != nil || level.Name != "Gold" || level.MinReferrals != 20 {
		t.Fatalf("unexpected level 3: %+v %v", level, err)
	}
	activity, err := tables.Activity(ActivityFirstPurchase)
	if err != nil || activity.Amount != 500 || !activity.OneTime {
		t.Fatalf("unexpected FIRST_PURCHASE: %+v %v", activity, err)
	}
	if login, _ := tables.Activity(ActivityDailyLogin); login.OneTime || login.MaxPerDay != 1 {
		t.Fatalf("DAILY_LOGIN must be repeatable once a day: %+v", login)
	}
	bonus := tables.Bonus()
	if bonus.MinWithdrawal != 1000 || bonus.MaxBonusPercentCheckout != 50 {
		t.Fatalf("unexpected bonus config %+v", bonus)
	}
	if bonus.ExpirationWarningDays[0] != 30 {
		t.Fatalf("expected warning windows sorted widest first, got %v", bonus.ExpirationWarningDays)
	}
}

func TestLookupsRejectUnknownKeys(t *testing.T) {
	tables := Default()
	if _, err := tables.CommissionRate(6); !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error for depth 6, got %v", err)
	}
	if _, err := tables.CommissionRate(0); !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error for depth 0, got %v", err)
	}
	if _, err := tables.TaxRate("FOREIGNER"); !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown status, got %v", err)
	}
	if _, err := tables.Level(9); !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown level, got %v", err)
	}
	if _, err := tables.Activity("JUMPING"); !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown activity, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.PartnerLevels[1].MinTeamVolume = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestTablesAreCopiedOnRead(t *testing.T) {
	tables := Default()
	levels := tables.Levels()
	levels[0].Name = "mutated"
	if lvl, _ := tables.Level(1); lvl.Name != "Bronze" {
		t.Fatalf("levels leaked internal state")
	}
	bonus := tables.Bonus()
	bonus.ExpirationWarningDays[0] = 99
	if tables.Bonus().ExpirationWarningDays[0] != 30 {
		t.Fatalf("bonus config leaked internal state")
	}
}

func TestApplyBpsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint32
		want   int64
	}{
		{10_000, 1000, 1000},
		{10_000, 100, 100},
		{5, 1000, 1}, // 0.5 rounds up
		{4, 1000, 0}, // 0.4 rounds down
		{15, 300, 0}, // 0.45
		{17, 300, 1}, // 0.51
		{1000, 1300, 130},
		{0, 1000, 0},
		{-50, 1000, 0},
		{4_000_000_000_000_000_000, 1300, 520_000_000_000_000_000},
		{math.MaxInt64, 10_000, math.MaxInt64},
	}
	for _, tc := range cases {
		if got := ApplyBps(tc.amount, tc.bps); got != tc.want {
			t.Fatalf("ApplyBps(%d, %d) = %d want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestApplyPercentFloorsWithoutOverflow(t *testing.T) {
	cases := []struct {
		amount, percent, want int64
	}{
		{999, 50, 499},
		{1000, 5, 50},
		{19, 5, 0},
		{0, 50, 0},
		{100, 0, 0},
		{math.MaxInt64, 50, math.MaxInt64 / 2},
	}
	for _, tc := range cases {
		if got := ApplyPercent(tc.amount, tc.percent); got != tc.want {
			t.Fatalf("ApplyPercent(%d, %d) = %d want %d", tc.amount, tc.percent, got, tc.want)
		}
	}
}
