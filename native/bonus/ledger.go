package bonus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/core/events"
	"partnerledger/native/common"
	"partnerledger/native/rates"
)

var (
	ErrInvalidAmount       = errors.New("bonus: amount must be positive")
	ErrInvalidUser         = errors.New("bonus: user id required")
	ErrInvalidSource       = errors.New("bonus: unknown source")
	ErrActivityRequired    = errors.New("bonus: activity type required for activity grants")
	ErrInvalidExpiry       = errors.New("bonus: expiry must be in the future")
	ErrReferenceRequired   = errors.New("bonus: reference id required")
	ErrReasonRequired      = errors.New("bonus: adjustment reason required")
	ErrCheckoutCapExceeded = errors.New("bonus: amount exceeds checkout cap")
	ErrActivityLimit       = errors.New("bonus: daily activity limit reached")
	errNilStore            = errors.New("bonus ledger: store not configured")
)

// Ledger is the append-only bonus ledger. Every read-then-write operation runs
// under an in-process per-user lock and the store's exclusive user scope.
type Ledger struct {
	store   Store
	tables  *rates.Tables
	locks   common.KeyedMutex
	emitter events.Emitter
	nowFn   func() time.Time
	newID   func() string
}

// NewLedger creates a ledger over the provided store.
func NewLedger(store Store, tables *rates.Tables) *Ledger {
	return &Ledger{
		store:   store,
		tables:  tables,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
		newID:   uuid.NewString,
	}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetNowFunc overrides the clock. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

// Tables exposes the rate tables the ledger was built with.
func (l *Ledger) Tables() *rates.Tables { return l.tables }

func (l *Ledger) now() time.Time { return l.nowFn().UTC() }

// LockUser acquires the in-process lock for userID. Collaborators that open
// their own store scope over the same user (withdrawals) must hold it.
func (l *Ledger) LockUser(userID string) func() { return l.locks.Lock(userID) }

// session buffers the events produced inside a scope so they are only
// emitted after the scope commits.
type session struct {
	scope   Scope
	userID  string
	book    *book
	pending []events.Event
}

func (l *Ledger) open(scope Scope, userID string) (*session, error) {
	entries, err := scope.Entries(userID)
	if err != nil {
		return nil, err
	}
	b, err := replay(entries)
	if err != nil {
		return nil, err
	}
	return &session{scope: scope, userID: userID, book: b}, nil
}

func (l *Ledger) withSession(ctx context.Context, userID string, fn func(*session) error) error {
	if l.store == nil {
		return errNilStore
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidUser
	}
	unlock := l.locks.Lock(userID)
	defer unlock()
	var s *session
	err := l.store.WithUser(ctx, userID, func(scope Scope) error {
		var err error
		if s, err = l.open(scope, userID); err != nil {
			return err
		}
		return fn(s)
	})
	if err != nil {
		return err
	}
	for _, evt := range s.pending {
		l.emitter.Emit(evt)
	}
	return nil
}

func (l *Ledger) appendEntry(s *session, entry *Transaction) error {
	entry.ID = l.newID()
	entry.UserID = s.userID
	entry.CreatedAt = l.now()
	switch {
	case entry.Type == EntryAdjustment && entry.Direction == 0:
		entry.Direction = 1
	case entry.Type != EntryAdjustment && entry.Signed() < 0:
		entry.Direction = -1
	case entry.Type != EntryAdjustment:
		entry.Direction = 1
	}
	balance := s.book.balance + entry.Signed()
	if err := s.scope.Append(entry, balance); err != nil {
		return err
	}
	s.book.entries = append(s.book.entries, *entry)
	next, err := replay(s.book.entries)
	if err != nil {
		return err
	}
	if tracker, ok := s.scope.(LotTracker); ok {
		if err := syncLots(tracker, s.book, next); err != nil {
			return err
		}
	}
	s.book = next
	s.pending = append(s.pending, events.BonusEntryAppended{
		EntryID:     entry.ID,
		UserID:      entry.UserID,
		EntryType:   string(entry.Type),
		Source:      string(entry.Source),
		Amount:      entry.Amount,
		Direction:   entry.Direction,
		ReferenceID: entry.ReferenceID,
		ExpiresAt:   entry.ExpiresAt,
		Balance:     balance,
		CreatedAt:   entry.CreatedAt,
	})
	return nil
}

func (l *Ledger) available(s *session) (int64, error) {
	holds, err := s.scope.Holds(s.userID)
	if err != nil {
		return 0, err
	}
	available := s.book.balance - holds
	if available < 0 {
		available = 0
	}
	return available, nil
}

// GrantEarned appends an EARNED entry. Activity grants must name the
// activity; one-time activities are granted at most once per user.
func (l *Ledger) GrantEarned(ctx context.Context, req GrantRequest) (*Transaction, error) {
	if err := l.validateGrant(&req); err != nil {
		return nil, err
	}
	var out *Transaction
	err := l.withSession(ctx, req.UserID, func(s *session) error {
		var err error
		out, err = l.grant(s, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GrantOnce appends an EARNED entry unless one with the same source and
// reference already exists, in which case the existing entry is returned.
func (l *Ledger) GrantOnce(ctx context.Context, req GrantRequest) (*Transaction, error) {
	if strings.TrimSpace(req.ReferenceID) == "" {
		return nil, ErrReferenceRequired
	}
	if err := l.validateGrant(&req); err != nil {
		return nil, err
	}
	var out *Transaction
	err := l.withSession(ctx, req.UserID, func(s *session) error {
		if existing := s.book.find(EntryEarned, req.Source, req.ReferenceID); existing != nil {
			clone := *existing
			out = &clone
			return nil
		}
		var err error
		out, err = l.grant(s, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GrantActivity grants the configured bonus for the activity.
func (l *Ledger) GrantActivity(ctx context.Context, userID string, activity rates.ActivityType, referenceID string) (*Transaction, error) {
	cfg, err := l.tables.Activity(activity)
	if err != nil {
		return nil, err
	}
	return l.GrantEarned(ctx, GrantRequest{
		UserID:      userID,
		Amount:      cfg.Amount,
		Source:      SourceActivity,
		ReferenceID: referenceID,
		Activity:    activity,
	})
}

// GrantReferralBonus credits a referred purchaser with the configured share
// of their purchase. Returns nil when the share rounds down to zero.
func (l *Ledger) GrantReferralBonus(ctx context.Context, userID string, purchaseAmount int64, referenceID string) (*Transaction, error) {
	amount := rates.ApplyPercent(purchaseAmount, l.tables.Bonus().ReferralBonusPercent)
	if amount <= 0 {
		return nil, nil
	}
	return l.GrantOnce(ctx, GrantRequest{
		UserID:      userID,
		Amount:      amount,
		Source:      SourceReferralBonus,
		ReferenceID: referenceID,
	})
}

func (l *Ledger) validateGrant(req *GrantRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return ErrInvalidUser
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !req.Source.Valid() {
		return ErrInvalidSource
	}
	if req.Source == SourceActivity {
		if req.Activity == "" {
			return ErrActivityRequired
		}
		if _, err := l.tables.Activity(req.Activity); err != nil {
			return err
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(l.now()) {
		return ErrInvalidExpiry
	}
	return nil
}

func (l *Ledger) grant(s *session, req GrantRequest) (*Transaction, error) {
	var activity rates.ActivityBonus
	if req.Source == SourceActivity {
		var err error
		if activity, err = l.tables.Activity(req.Activity); err != nil {
			return nil, err
		}
		if activity.OneTime {
			granted, err := s.scope.ActivityGranted(s.userID, req.Activity)
			if err != nil {
				return nil, err
			}
			if granted {
				return nil, &ledgererrors.AlreadyGrantedError{UserID: s.userID, Activity: string(req.Activity)}
			}
		}
		if activity.MaxPerDay > 0 {
			if err := l.checkDailyLimit(s, activity, req.Amount); err != nil {
				return nil, err
			}
		}
	}
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		at := l.now().AddDate(0, 0, l.tables.Bonus().DefaultExpiryDays)
		expiresAt = &at
	} else {
		at := expiresAt.UTC()
		expiresAt = &at
	}
	entry := &Transaction{
		Type:         EntryEarned,
		Amount:       req.Amount,
		Source:       req.Source,
		ReferenceID:  req.ReferenceID,
		ActivityType: req.Activity,
		ExpiresAt:    expiresAt,
	}
	if err := l.appendEntry(s, entry); err != nil {
		return nil, err
	}
	if req.Source == SourceActivity && activity.OneTime {
		if err := s.scope.RecordActivity(ActivityGrant{
			UserID:        s.userID,
			Activity:      req.Activity,
			TransactionID: entry.ID,
			GrantedAt:     entry.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}
	out := *entry
	return &out, nil
}

func (l *Ledger) checkDailyLimit(s *session, activity rates.ActivityBonus, amount int64) error {
	window := common.DayWindow(l.now().Unix())
	usage := common.QuotaUsage{Window: window}
	for _, entry := range s.book.entries {
		if entry.Type != EntryEarned || entry.Source != SourceActivity || entry.ActivityType != activity.Type {
			continue
		}
		if common.DayWindow(entry.CreatedAt.Unix()) != window {
			continue
		}
		usage.Count++
		usage.Amount += entry.Amount
	}
	if _, err := common.CheckQuota(common.Quota{MaxCount: activity.MaxPerDay}, window, usage, 1, amount); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActivityLimit, activity.Type, err)
	}
	return nil
}

// Spend appends a SPENT entry when amount does not exceed the available
// balance. Never partial.
func (l *Ledger) Spend(ctx context.Context, userID string, amount int64, referenceID string) (*Transaction, error) {
	return l.debit(ctx, userID, EntrySpent, amount, referenceID)
}

// Withdraw appends a WITHDRAWN entry under the same rule as Spend.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount int64, referenceID string) (*Transaction, error) {
	return l.debit(ctx, userID, EntryWithdrawn, amount, referenceID)
}

func (l *Ledger) debit(ctx context.Context, userID string, typ EntryType, amount int64, referenceID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var out *Transaction
	err := l.withSession(ctx, userID, func(s *session) error {
		var err error
		out, err = l.debitIn(s, typ, amount, referenceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) debitIn(s *session, typ EntryType, amount int64, referenceID string) (*Transaction, error) {
	available, err := l.available(s)
	if err != nil {
		return nil, err
	}
	if amount > available {
		return nil, &ledgererrors.InsufficientBalanceError{UserID: s.userID, Requested: amount, Available: available}
	}
	entry := &Transaction{Type: typ, Amount: amount, ReferenceID: referenceID}
	if err := l.appendEntry(s, entry); err != nil {
		return nil, err
	}
	out := *entry
	return &out, nil
}

// Adjust appends an ADJUSTMENT entry. Positive adjustments form
// non-expiring lots; negative ones may not exceed the available balance, so
// funds held by open withdrawals stay intact.
func (l *Ledger) Adjust(ctx context.Context, userID string, delta int64, reason, actor string) (*Transaction, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	var out *Transaction
	err := l.withSession(ctx, userID, func(s *session) error {
		entry := &Transaction{Type: EntryAdjustment, Amount: delta, Direction: 1, Memo: reason, Actor: actor}
		if delta < 0 {
			entry.Amount = -delta
			entry.Direction = -1
			available, err := l.available(s)
			if err != nil {
				return err
			}
			if entry.Amount > available {
				return &ledgererrors.InsufficientBalanceError{UserID: s.userID, Requested: entry.Amount, Available: available}
			}
		}
		if err := l.appendEntry(s, entry); err != nil {
			return err
		}
		clone := *entry
		out = &clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentBalance returns the fold of every entry of the user.
func (l *Ledger) CurrentBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := l.withSession(ctx, userID, func(s *session) error {
		balance = s.book.balance
		return nil
	})
	return balance, err
}

// AvailableBalance returns the balance minus open withdrawal holds.
func (l *Ledger) AvailableBalance(ctx context.Context, userID string) (int64, error) {
	var available int64
	err := l.withSession(ctx, userID, func(s *session) error {
		var err error
		available, err = l.available(s)
		return err
	})
	return available, err
}

// InScope runs fn against a ledger view bound to an already opened store
// scope. The caller must hold LockUser(userID). Events produced through the
// view are emitted once fn returns without error; the caller is responsible
// for having committed the scope by then.
func (l *Ledger) InScope(scope Scope, userID string, fn func(*ScopedLedger) error) (func(), error) {
	s, err := l.open(scope, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(&ScopedLedger{ledger: l, session: s}); err != nil {
		return nil, err
	}
	return func() {
		for _, evt := range s.pending {
			l.emitter.Emit(evt)
		}
	}, nil
}

// ScopedLedger exposes ledger operations inside a collaborator's scope.
type ScopedLedger struct {
	ledger  *Ledger
	session *session
}

// Balance returns the folded balance.
func (v *ScopedLedger) Balance() int64 { return v.session.book.balance }

// Available returns the balance minus open holds as seen by the scope.
func (v *ScopedLedger) Available() (int64, error) { return v.ledger.available(v.session) }

// Withdraw appends a WITHDRAWN entry subject to the available balance.
func (v *ScopedLedger) Withdraw(amount int64, referenceID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return v.ledger.debitIn(v.session, EntryWithdrawn, amount, referenceID)
}
