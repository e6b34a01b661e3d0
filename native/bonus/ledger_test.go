package bonus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/core/events"
	"partnerledger/native/rates"
)

func mustGrant(t *testing.T, l *Ledger, req GrantRequest) *Transaction {
	t.Helper()
	tx, err := l.GrantEarned(context.Background(), req)
	if err != nil {
		t.Fatalf("grant %+v: %v", req, err)
	}
	return tx
}

func mustBalance(t *testing.T, l *Ledger, userID string) int64 {
	t.Helper()
	balance, err := l.CurrentBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func TestGrantEarnedDefaultsExpiry(t *testing.T) {
	ledger, _, clk := newTestLedger()
	tx := mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 250, Source: SourcePromo})
	if tx.ExpiresAt == nil {
		t.Fatalf("expected default expiry")
	}
	want := clk.Now().AddDate(0, 0, 365)
	if !tx.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s got %s", want, tx.ExpiresAt)
	}
	if tx.Seq != 1 || tx.Direction != 1 {
		t.Fatalf("unexpected seq/direction %d/%d", tx.Seq, tx.Direction)
	}
	if got := mustBalance(t, ledger, "u1"); got != 250 {
		t.Fatalf("expected balance 250 got %d", got)
	}
}

func TestGrantEarnedValidation(t *testing.T) {
	ledger, _, clk := newTestLedger()
	ctx := context.Background()
	past := clk.Now().Add(-time.Hour)
	cases := []struct {
		req  GrantRequest
		want error
	}{
		{GrantRequest{UserID: "", Amount: 1, Source: SourcePromo}, ErrInvalidUser},
		{GrantRequest{UserID: "u", Amount: 0, Source: SourcePromo}, ErrInvalidAmount},
		{GrantRequest{UserID: "u", Amount: 1, Source: "GIFT"}, ErrInvalidSource},
		{GrantRequest{UserID: "u", Amount: 1, Source: SourceActivity}, ErrActivityRequired},
		{GrantRequest{UserID: "u", Amount: 1, Source: SourcePromo, ExpiresAt: &past}, ErrInvalidExpiry},
	}
	for _, tc := range cases {
		if _, err := ledger.GrantEarned(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("grant %+v: expected %v got %v", tc.req, tc.want, err)
		}
	}
	_, err := ledger.GrantEarned(ctx, GrantRequest{UserID: "u", Amount: 1, Source: SourceActivity, Activity: "DANCING"})
	if !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown activity, got %v", err)
	}
}

func TestOneTimeActivityGrantedOnce(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	if _, err := ledger.GrantActivity(ctx, "u1", rates.ActivityFirstPurchase, "order-1"); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	_, err := ledger.GrantActivity(ctx, "u1", rates.ActivityFirstPurchase, "order-2")
	var already *ledgererrors.AlreadyGrantedError
	if !errors.As(err, &already) || already.Activity != string(rates.ActivityFirstPurchase) {
		t.Fatalf("expected AlreadyGrantedError, got %v", err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 500 {
		t.Fatalf("second grant must not change balance, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if _, err := ledger.GrantActivity(ctx, "u1", rates.ActivityReviewWritten, ""); err != nil {
			t.Fatalf("repeatable grant %d: %v", i, err)
		}
	}
	if got := mustBalance(t, ledger, "u1"); got != 560 {
		t.Fatalf("expected 560 got %d", got)
	}
}

func TestRepeatableActivityDailyLimit(t *testing.T) {
	ledger, _, clk := newTestLedger()
	ctx := context.Background()
	if _, err := ledger.GrantActivity(ctx, "u1", rates.ActivityDailyLogin, "login-1"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	_, err := ledger.GrantActivity(ctx, "u1", rates.ActivityDailyLogin, "login-2")
	if !errors.Is(err, ErrActivityLimit) {
		t.Fatalf("expected ErrActivityLimit, got %v", err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 5 {
		t.Fatalf("limited grant must not change balance, got %d", got)
	}
	clk.Advance(days(1))
	if _, err := ledger.GrantActivity(ctx, "u1", rates.ActivityDailyLogin, "login-3"); err != nil {
		t.Fatalf("next day login: %v", err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 10 {
		t.Fatalf("expected 10 got %d", got)
	}
}

func TestSpendRejectsOverdraft(t *testing.T) {
	ledger, store, _ := newTestLedger()
	ctx := context.Background()
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 100, Source: SourcePromo})
	_, err := ledger.Spend(ctx, "u1", 101, "order-1")
	var insufficient *ledgererrors.InsufficientBalanceError
	if !errors.As(err, &insufficient) || insufficient.Available != 100 || insufficient.Requested != 101 {
		t.Fatalf("expected insufficient balance detail, got %v", err)
	}
	if len(store.entries["u1"]) != 1 {
		t.Fatalf("failed spend must not append")
	}
	if _, err := ledger.Spend(ctx, "u1", 100, "order-1"); err != nil {
		t.Fatalf("exact spend: %v", err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 0 {
		t.Fatalf("expected zero balance got %d", got)
	}
	if _, err := ledger.Spend(ctx, "u1", 0, "order-2"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount got %v", err)
	}
}

func TestConcurrentSpendsNeverOverdraw(t *testing.T) {
	ledger, _, _ := newTestLedger()
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 100, Source: SourcePromo})
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Spend(context.Background(), "u1", 20, "order"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 5 {
		t.Fatalf("expected 5 successful spends got %d", succeeded)
	}
	if got := mustBalance(t, ledger, "u1"); got != 0 {
		t.Fatalf("expected zero balance got %d", got)
	}
}

func TestFIFOConsumptionAndExpiry(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	later := clk.Now().Add(days(10))
	sooner := clk.Now().Add(days(5))
	lotA := mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 100, Source: SourcePromo, ExpiresAt: &later})
	lotB := mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 100, Source: SourcePromo, ExpiresAt: &sooner})
	if _, err := ledger.Spend(ctx, "u1", 120, "order-1"); err != nil {
		t.Fatalf("spend: %v", err)
	}

	summary, err := ledger.Expire(ctx, clk.Now().Add(days(6)))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if summary.Entries != 0 {
		t.Fatalf("lot B was consumed first, nothing should expire yet: %+v", summary)
	}

	summary, err = ledger.Expire(ctx, clk.Now().Add(days(11)))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if summary.Users != 1 || summary.Entries != 1 || summary.Total != 80 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	entries := store.entries["u1"]
	last := entries[len(entries)-1]
	if last.Type != EntryExpired || last.ReferenceID != lotA.ID || last.Amount != 80 {
		t.Fatalf("expected EXPIRED 80 referencing lot A, got %+v", last)
	}
	if lotB.ID == last.ReferenceID {
		t.Fatalf("lot B must not be referenced")
	}
	if got := mustBalance(t, ledger, "u1"); got != 0 {
		t.Fatalf("expected zero balance got %d", got)
	}

	again, err := ledger.Expire(ctx, clk.Now().Add(days(11)))
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if again.Entries != 0 || len(store.entries["u1"]) != len(entries) {
		t.Fatalf("expiry must be idempotent, got %+v", again)
	}
}

func TestExpireSplitsLotsIndependently(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	first := clk.Now().Add(days(1))
	second := clk.Now().Add(days(2))
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 30, Source: SourcePromo, ExpiresAt: &first})
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 40, Source: SourcePromo, ExpiresAt: &second})
	mustGrant(t, ledger, GrantRequest{UserID: "u2", Amount: 10, Source: SourcePromo, ExpiresAt: &first})
	summary, err := ledger.Expire(ctx, clk.Now().Add(days(3)))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if summary.Users != 2 || summary.Entries != 3 || summary.Total != 80 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if store.projections["u1"] != 0 || store.projections["u2"] != 0 {
		t.Fatalf("projection not rewritten: %+v", store.projections)
	}
}

func TestAdjustments(t *testing.T) {
	ledger, _, clk := newTestLedger()
	ctx := context.Background()
	if _, err := ledger.Adjust(ctx, "u1", 50, "", "admin"); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected reason required got %v", err)
	}
	if _, err := ledger.Adjust(ctx, "u1", 50, "goodwill", "admin"); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	_, err := ledger.Adjust(ctx, "u1", -60, "clawback", "admin")
	if !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance got %v", err)
	}
	neg, err := ledger.Adjust(ctx, "u1", -20, "clawback", "admin")
	if err != nil {
		t.Fatalf("negative adjust: %v", err)
	}
	if neg.Direction != -1 || neg.Amount != 20 || neg.Signed() != -20 {
		t.Fatalf("unexpected negative adjustment %+v", neg)
	}
	summary, err := ledger.Expire(ctx, clk.Now().Add(days(5000)))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if summary.Entries != 0 {
		t.Fatalf("adjustment lots never expire")
	}
	if got := mustBalance(t, ledger, "u1"); got != 30 {
		t.Fatalf("expected 30 got %d", got)
	}
}

func TestHoldsReduceAvailable(t *testing.T) {
	ledger, store, _ := newTestLedger()
	ctx := context.Background()
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 1000, Source: SourcePromo})
	store.holds["u1"] = 600
	available, err := ledger.AvailableBalance(ctx, "u1")
	if err != nil || available != 400 {
		t.Fatalf("expected 400 available got %d %v", available, err)
	}
	if _, err := ledger.Spend(ctx, "u1", 500, "order"); !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("held funds must not be spendable, got %v", err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 1000 {
		t.Fatalf("holds must not change the balance, got %d", got)
	}
}

func TestHeldFundsSurviveExpiryAndAdjustments(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	soon := clk.Now().Add(days(2))
	later := clk.Now().Add(days(30))
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 1000, Source: SourcePromo, ExpiresAt: &soon})
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 300, Source: SourcePromo, ExpiresAt: &later})
	store.holds["u1"] = 1100

	summary, err := ledger.Expire(ctx, clk.Now().Add(days(3)))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if summary.Entries != 1 || summary.Total != 200 {
		t.Fatalf("only the unheld part may expire, got %+v", summary)
	}
	if got := mustBalance(t, ledger, "u1"); got != 1100 {
		t.Fatalf("held funds must remain, balance %d", got)
	}
	again, err := ledger.Expire(ctx, clk.Now().Add(days(3)))
	if err != nil || again.Entries != 0 {
		t.Fatalf("repeat sweep must be a no-op, got %+v %v", again, err)
	}
	if _, err := ledger.Adjust(ctx, "u1", -1, "chargeback", "admin"); !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("negative adjustment must not touch held funds, got %v", err)
	}
	if _, err := ledger.Withdraw(ctx, "u1", 1100, "withdrawal:w1"); !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("withdraw while held: %v", err)
	}

	// Completion releases the hold before debiting.
	store.holds["u1"] = 0
	if _, err := ledger.Withdraw(ctx, "u1", 1100, "withdrawal:w1"); err != nil {
		t.Fatalf("withdraw after release: %v", err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 0 {
		t.Fatalf("expected empty balance got %d", got)
	}
}

func TestReleasedHoldLetsRemainderExpire(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	soon := clk.Now().Add(days(2))
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 1000, Source: SourcePromo, ExpiresAt: &soon})
	store.holds["u1"] = 400
	first, err := ledger.Expire(ctx, clk.Now().Add(days(3)))
	if err != nil || first.Total != 600 {
		t.Fatalf("expected 600 expired got %+v %v", first, err)
	}
	store.holds["u1"] = 0
	second, err := ledger.Expire(ctx, clk.Now().Add(days(3)))
	if err != nil || second.Total != 400 {
		t.Fatalf("expected the released 400 to expire, got %+v %v", second, err)
	}
	if got := mustBalance(t, ledger, "u1"); got != 0 {
		t.Fatalf("expected empty balance got %d", got)
	}
}

func TestGrantOnceIsIdempotent(t *testing.T) {
	ledger, store, _ := newTestLedger()
	ctx := context.Background()
	req := GrantRequest{UserID: "p1", Amount: 75, Source: SourcePartner, ReferenceID: "commission-1"}
	first, err := ledger.GrantOnce(ctx, req)
	if err != nil {
		t.Fatalf("grant once: %v", err)
	}
	second, err := ledger.GrantOnce(ctx, req)
	if err != nil {
		t.Fatalf("grant once again: %v", err)
	}
	if first.ID != second.ID || len(store.entries["p1"]) != 1 {
		t.Fatalf("expected a single entry, got %d", len(store.entries["p1"]))
	}
	if _, err := ledger.GrantOnce(ctx, GrantRequest{UserID: "p1", Amount: 1, Source: SourcePartner}); !errors.Is(err, ErrReferenceRequired) {
		t.Fatalf("expected reference required got %v", err)
	}
}

func TestReferralBonus(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	tx, err := ledger.GrantReferralBonus(ctx, "u1", 2000, "order-1")
	if err != nil || tx == nil || tx.Amount != 100 || tx.Source != SourceReferralBonus {
		t.Fatalf("expected 5%% referral bonus, got %+v %v", tx, err)
	}
	tiny, err := ledger.GrantReferralBonus(ctx, "u1", 10, "order-2")
	if err != nil || tiny != nil {
		t.Fatalf("expected no grant for tiny purchases, got %+v %v", tiny, err)
	}
}

func TestEventsEmittedOnlyAfterCommit(t *testing.T) {
	ledger, store, _ := newTestLedger()
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 10, Source: SourcePromo})
	if got := len(rec.OfType(events.TypeBonusEntryAppended)); got != 1 {
		t.Fatalf("expected one event got %d", got)
	}
	store.failAppend = errors.New("disk full")
	if _, err := ledger.GrantEarned(context.Background(), GrantRequest{UserID: "u1", Amount: 10, Source: SourcePromo}); err == nil {
		t.Fatalf("expected store failure")
	}
	if got := len(rec.Events()); got != 1 {
		t.Fatalf("failed append must not emit, have %d events", got)
	}
}

func TestAuditRepairsDrift(t *testing.T) {
	ledger, store, _ := newTestLedger()
	ctx := context.Background()
	mustGrant(t, ledger, GrantRequest{UserID: "u1", Amount: 40, Source: SourcePromo})
	store.projections["u1"] = 55
	report, err := ledger.Audit(ctx, "u1", false)
	if err != nil || report.Drift != 15 || report.Repaired {
		t.Fatalf("unexpected report %+v %v", report, err)
	}
	report, err = ledger.Audit(ctx, "u1", true)
	if err != nil || !report.Repaired || store.projections["u1"] != 40 {
		t.Fatalf("expected repair, got %+v %v", report, err)
	}
}
