package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/core/events"
	"partnerledger/native/bonus"
	"partnerledger/native/common"
	"partnerledger/native/rates"
)

var testCard = Card{Number: "4111 1111 1111 1111", Holder: "IVAN PETROV"}

type fixture struct {
	engine *Engine
	ledger *bonus.Ledger
	store  *memStore
	rec    *events.Recorder
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	tables := rates.Default()
	store := newMemStore()
	ledger := bonus.NewLedger(bonusStore{store}, tables)
	ledger.SetNowFunc(func() time.Time { return now })
	if balance > 0 {
		if _, err := ledger.GrantEarned(context.Background(), bonus.GrantRequest{UserID: "u1", Amount: balance, Source: bonus.SourcePartner}); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	rec := &events.Recorder{}
	engine := NewEngine(tables)
	engine.SetState(store)
	engine.SetLedger(ledger)
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() time.Time { return now })
	return &fixture{engine: engine, ledger: ledger, store: store, rec: rec}
}

func TestQuote(t *testing.T) {
	engine := NewEngine(rates.Default())
	cases := []struct {
		status rates.TaxStatus
		amount int64
		tax    int64
	}{
		{rates.TaxIndividual, 1000, 130},
		{rates.TaxSelfEmployed, 1000, 40},
		{rates.TaxEntrepreneur, 1000, 60},
		{rates.TaxCompany, 1000, 0},
		{rates.TaxIndividual, 1234, 160},  // 160.42
		{rates.TaxSelfEmployed, 1237, 49}, // 49.48
		{rates.TaxEntrepreneur, 1075, 65}, // 64.5 rounds up
	}
	for _, tc := range cases {
		quote, err := engine.Quote(tc.amount, tc.status)
		if err != nil {
			t.Fatalf("%s: %v", tc.status, err)
		}
		if quote.TaxAmount != tc.tax || quote.NetAmount != tc.amount-tc.tax {
			t.Fatalf("%s %d: expected tax %d got %+v", tc.status, tc.amount, tc.tax, quote)
		}
	}
	if _, err := engine.Quote(1000, "ALIEN"); !errors.Is(err, ledgererrors.ErrConfiguration) {
		t.Fatalf("expected configuration error got %v", err)
	}
	if _, err := engine.Quote(0, rates.TaxCompany); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount got %v", err)
	}
}

func TestCreateValidations(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()
	_, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 999, TaxStatus: rates.TaxIndividual, PaymentDetails: testCard})
	var below *ledgererrors.BelowMinimumError
	if !errors.As(err, &below) || below.Minimum != 1000 {
		t.Fatalf("expected below minimum got %v", err)
	}
	_, err = f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 6000, TaxStatus: rates.TaxIndividual, PaymentDetails: testCard})
	if !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance got %v", err)
	}
	_, err = f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 1000, TaxStatus: rates.TaxIndividual, PaymentDetails: Card{Number: "4111111111111112", Holder: "X"}})
	if !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected invalid card got %v", err)
	}
	_, err = f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 1000, TaxStatus: rates.TaxIndividual})
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected payment required got %v", err)
	}
	if len(f.store.requests) != 0 {
		t.Fatalf("failed creates must not persist")
	}
}

func TestCreateHoldsFunds(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	req, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 2000, TaxStatus: rates.TaxSelfEmployed, PaymentDetails: testCard})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != StatusPending || req.TaxAmount != 80 || req.NetAmount != 1920 {
		t.Fatalf("unexpected request %+v", req)
	}
	card, ok := req.Payment.(Card)
	if !ok || card.Number != "************1111" {
		t.Fatalf("expected masked card got %+v", req.Payment)
	}
	available, _ := f.ledger.AvailableBalance(ctx, "u1")
	if available != 1000 {
		t.Fatalf("expected 1000 available got %d", available)
	}
	if balance, _ := f.ledger.CurrentBalance(ctx, "u1"); balance != 3000 {
		t.Fatalf("create must not debit the ledger, balance %d", balance)
	}
	if _, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 1500, TaxStatus: rates.TaxSelfEmployed, PaymentDetails: testCard}); !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("second request must see the hold, got %v", err)
	}
	if _, err := f.ledger.Spend(ctx, "u1", 1500, "order"); !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("spend must see the hold, got %v", err)
	}
}

func TestConcurrentCreatesRespectBalance(t *testing.T) {
	f := newFixture(t, 5000)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Create(context.Background(), CreateRequest{UserID: "u1", Amount: 1000, TaxStatus: rates.TaxCompany, PaymentDetails: testCard})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 5 {
		t.Fatalf("expected 5 requests got %d", created)
	}
}

func TestHappyPathCompletes(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	req, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 2000, TaxStatus: rates.TaxIndividual, PaymentDetails: testCard})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.Complete(ctx, req.ID); !errors.Is(err, ledgererrors.ErrInvalidStateTransition) {
		t.Fatalf("PENDING -> COMPLETED must fail, got %v", err)
	}
	if _, err := f.engine.Approve(ctx, req.ID, "admin"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.StartProcessing(ctx, req.ID, "payout-7"); err != nil {
		t.Fatalf("start processing: %v", err)
	}
	done, err := f.engine.Complete(ctx, req.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil || done.LedgerEntryID == "" || done.PayoutRef != "payout-7" {
		t.Fatalf("unexpected completed request %+v", done)
	}
	balance, _ := f.ledger.CurrentBalance(ctx, "u1")
	available, _ := f.ledger.AvailableBalance(ctx, "u1")
	if balance != 1000 || available != 1000 {
		t.Fatalf("expected 1000/1000 got %d/%d", balance, available)
	}
	entries := f.store.entries["u1"]
	last := entries[len(entries)-1]
	if last.Type != bonus.EntryWithdrawn || last.Amount != 2000 || last.ReferenceID != "withdrawal:"+req.ID {
		t.Fatalf("unexpected ledger entry %+v", last)
	}
	if _, err := f.engine.Reject(ctx, req.ID, "admin", "late"); !errors.Is(err, ledgererrors.ErrInvalidStateTransition) {
		t.Fatalf("COMPLETED is terminal, got %v", err)
	}
	transitions := f.rec.OfType(events.TypeWithdrawalTransitioned)
	if len(transitions) != 4 {
		t.Fatalf("expected 4 withdrawal events got %d", len(transitions))
	}
	if len(f.rec.OfType(events.TypeBonusEntryAppended)) != 0 {
		t.Fatalf("withdrawal engine recorder should not see ledger events")
	}
}

func TestPausedModulesRefuseWork(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	req, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 1000, TaxStatus: rates.TaxCompany, PaymentDetails: testCard})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.Approve(ctx, req.ID, "admin"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	f.engine.SetPauses(common.NewPauses([]string{ModuleWithdrawals, ModulePayouts}))
	if _, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 1000, TaxStatus: rates.TaxCompany, PaymentDetails: testCard}); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("create while paused: %v", err)
	}
	if _, err := f.engine.StartProcessing(ctx, req.ID, "payout-1"); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("start processing while paused: %v", err)
	}

	f.engine.SetPauses(nil)
	if _, err := f.engine.StartProcessing(ctx, req.ID, "payout-1"); err != nil {
		t.Fatalf("start processing after resume: %v", err)
	}
}

func TestRejectReleasesHold(t *testing.T) {
	f := newFixture(t, 2000)
	ctx := context.Background()
	req, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 2000, TaxStatus: rates.TaxIndividual, PaymentDetails: testCard})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.Reject(ctx, req.ID, "admin", "  "); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected reason required got %v", err)
	}
	if _, err := f.engine.Approve(ctx, req.ID, "admin"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rejected, err := f.engine.Reject(ctx, req.ID, "admin", "document mismatch")
	if err != nil || rejected.Status != StatusRejected || rejected.RejectionReason != "document mismatch" {
		t.Fatalf("reject: %+v %v", rejected, err)
	}
	if available, _ := f.ledger.AvailableBalance(ctx, "u1"); available != 2000 {
		t.Fatalf("rejection must release the hold, available %d", available)
	}
	if _, err := f.engine.StartProcessing(ctx, req.ID, ""); !errors.Is(err, ledgererrors.ErrInvalidStateTransition) {
		t.Fatalf("REJECTED is terminal, got %v", err)
	}
	if _, err := f.engine.Approve(ctx, "missing", "admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestHeldFundsCannotShrinkBeforeCompletion(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	expires := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)
	if _, err := f.ledger.GrantEarned(ctx, bonus.GrantRequest{UserID: "u1", Amount: 1500, Source: bonus.SourcePromo, ExpiresAt: &expires}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	req, err := f.engine.Create(ctx, CreateRequest{UserID: "u1", Amount: 1500, TaxStatus: rates.TaxCompany, PaymentDetails: testCard})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.Approve(ctx, req.ID, "admin"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.StartProcessing(ctx, req.ID, ""); err != nil {
		t.Fatalf("processing: %v", err)
	}
	summary, err := f.ledger.Expire(ctx, expires.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("held funds must not expire, got %+v", summary)
	}
	if _, err := f.ledger.Adjust(ctx, "u1", -600, "chargeback", "admin"); !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("held funds must not be adjusted away, got %v", err)
	}
	done, err := f.engine.Complete(ctx, req.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.LedgerEntryID == "" {
		t.Fatalf("unexpected completion %+v", done)
	}
	balance, err := f.ledger.CurrentBalance(ctx, "u1")
	if err != nil || balance != 0 {
		t.Fatalf("expected empty balance got %d %v", balance, err)
	}
}
