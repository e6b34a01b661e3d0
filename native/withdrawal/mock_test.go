package withdrawal

import (
	"context"
	"sort"
	"sync"
	"time"

	"partnerledger/native/bonus"
	"partnerledger/native/rates"
)

type memStore struct {
	mu          sync.Mutex
	entries     map[string][]bonus.Transaction
	projections map[string]int64
	activities  map[string]bool
	requests    map[string]*Request
}

func newMemStore() *memStore {
	return &memStore{
		entries:     make(map[string][]bonus.Transaction),
		projections: make(map[string]int64),
		activities:  make(map[string]bool),
		requests:    make(map[string]*Request),
	}
}

// memScope stages writes and commits them when the callback succeeds.
type memScope struct {
	store      *memStore
	userID     string
	entries    []bonus.Transaction
	projection int64
	requests   map[string]*Request
	activities map[string]bool
}

func (m *memStore) WithUser(_ context.Context, userID string, fn func(Scope) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := &memScope{
		store:      m,
		userID:     userID,
		entries:    append([]bonus.Transaction(nil), m.entries[userID]...),
		projection: m.projections[userID],
		requests:   make(map[string]*Request),
		activities: make(map[string]bool),
	}
	if err := fn(scope); err != nil {
		return err
	}
	m.entries[userID] = scope.entries
	m.projections[userID] = scope.projection
	for id, r := range scope.requests {
		m.requests[id] = r
	}
	for k := range scope.activities {
		m.activities[k] = true
	}
	return nil
}

// bonusStore adapts memStore for a standalone bonus ledger.
type bonusStore struct{ *memStore }

func (b bonusStore) WithUser(ctx context.Context, userID string, fn func(bonus.Scope) error) error {
	return b.memStore.WithUser(ctx, userID, func(s Scope) error { return fn(s) })
}

func (b bonusStore) UsersWithOpenLots(context.Context, time.Time, time.Time) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var users []string
	for userID := range b.entries {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

func (b bonusStore) History(context.Context, string, int) ([]bonus.Transaction, error) {
	return nil, nil
}

func (m *memStore) Withdrawal(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *memStore) ListWithdrawals(_ context.Context, filter Filter) ([]*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Request
	for _, r := range m.requests {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				match = match || s == r.Status
			}
			if !match {
				continue
			}
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memScope) Entries(string) ([]bonus.Transaction, error) {
	return append([]bonus.Transaction(nil), s.entries...), nil
}

func (s *memScope) Append(entry *bonus.Transaction, balanceAfter int64) error {
	entry.Seq = int64(len(s.entries)) + 1
	s.entries = append(s.entries, *entry)
	s.projection = balanceAfter
	return nil
}

func (s *memScope) Holds(userID string) (int64, error) {
	var total int64
	seen := make(map[string]bool)
	for id, r := range s.requests {
		seen[id] = true
		if r.UserID == userID && IsOpen(r.Status) {
			total += r.Amount
		}
	}
	for id, r := range s.store.requests {
		if seen[id] {
			continue
		}
		if r.UserID == userID && IsOpen(r.Status) {
			total += r.Amount
		}
	}
	return total, nil
}

func (s *memScope) ActivityGranted(userID string, activity rates.ActivityType) (bool, error) {
	key := userID + "|" + string(activity)
	return s.store.activities[key] || s.activities[key], nil
}

func (s *memScope) RecordActivity(grant bonus.ActivityGrant) error {
	s.activities[grant.UserID+"|"+string(grant.Activity)] = true
	return nil
}

func (s *memScope) Projection(string) (int64, error) { return s.projection, nil }

func (s *memScope) SetProjection(_ string, balance int64) error {
	s.projection = balance
	return nil
}

func (s *memScope) Withdrawal(id string) (*Request, error) {
	if r, ok := s.requests[id]; ok {
		return r.Clone(), nil
	}
	if r, ok := s.store.requests[id]; ok {
		return r.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *memScope) PutWithdrawal(r *Request) error {
	s.requests[r.ID] = r.Clone()
	return nil
}
