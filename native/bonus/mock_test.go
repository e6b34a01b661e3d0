package bonus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"partnerledger/native/rates"
)

type memStore struct {
	mu          sync.Mutex
	entries     map[string][]Transaction
	projections map[string]int64
	holds       map[string]int64
	activities  map[string]bool
	failAppend  error
}

func newMemStore() *memStore {
	return &memStore{
		entries:     make(map[string][]Transaction),
		projections: make(map[string]int64),
		holds:       make(map[string]int64),
		activities:  make(map[string]bool),
	}
}

type memScope struct {
	store      *memStore
	userID     string
	entries    []Transaction
	projection int64
	activities map[string]bool
	nextSeq    int64
}

func (m *memStore) WithUser(_ context.Context, userID string, fn func(Scope) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := &memScope{
		store:      m,
		userID:     userID,
		entries:    append([]Transaction(nil), m.entries[userID]...),
		projection: m.projections[userID],
		activities: make(map[string]bool),
		nextSeq:    int64(len(m.entries[userID])) + 1,
	}
	if err := fn(scope); err != nil {
		return err
	}
	m.entries[userID] = scope.entries
	m.projections[userID] = scope.projection
	for k := range scope.activities {
		m.activities[k] = true
	}
	return nil
}

func (m *memStore) UsersWithOpenLots(_ context.Context, from, to time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []string
	for userID, entries := range m.entries {
		for _, e := range entries {
			if e.Type != EntryEarned || e.ExpiresAt == nil {
				continue
			}
			if e.ExpiresAt.Before(from) || e.ExpiresAt.After(to) {
				continue
			}
			users = append(users, userID)
			break
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *memStore) History(_ context.Context, userID string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[userID]
	out := make([]Transaction, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *memScope) check(userID string) error {
	if userID != s.userID {
		return errors.New("mem scope: cross-user access")
	}
	return nil
}

func (s *memScope) Entries(userID string) ([]Transaction, error) {
	if err := s.check(userID); err != nil {
		return nil, err
	}
	return append([]Transaction(nil), s.entries...), nil
}

func (s *memScope) Append(entry *Transaction, balanceAfter int64) error {
	if err := s.check(entry.UserID); err != nil {
		return err
	}
	if s.store.failAppend != nil {
		return s.store.failAppend
	}
	entry.Seq = s.nextSeq
	s.nextSeq++
	s.entries = append(s.entries, *entry)
	s.projection = balanceAfter
	return nil
}

func (s *memScope) Holds(userID string) (int64, error) {
	if err := s.check(userID); err != nil {
		return 0, err
	}
	return s.store.holds[userID], nil
}

func (s *memScope) ActivityGranted(userID string, activity rates.ActivityType) (bool, error) {
	key := userID + "|" + string(activity)
	return s.store.activities[key] || s.activities[key], nil
}

func (s *memScope) RecordActivity(grant ActivityGrant) error {
	key := grant.UserID + "|" + string(grant.Activity)
	if s.store.activities[key] || s.activities[key] {
		return errors.New("mem scope: duplicate activity")
	}
	s.activities[key] = true
	return nil
}

func (s *memScope) Projection(userID string) (int64, error) {
	if err := s.check(userID); err != nil {
		return 0, err
	}
	return s.projection, nil
}

func (s *memScope) SetProjection(userID string, balance int64) error {
	if err := s.check(userID); err != nil {
		return err
	}
	s.projection = balance
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLedger() (*Ledger, *memStore, *clock) {
	store := newMemStore()
	clk := newClock()
	ledger := NewLedger(store, rates.Default())
	ledger.SetNowFunc(clk.Now)
	return ledger, store, clk
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
