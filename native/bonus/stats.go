package bonus

import (
	"context"
)

// Stats summarises the user's position including expiry windows.
func (l *Ledger) Stats(ctx context.Context, userID string) (Stats, error) {
	stats := Stats{UserID: userID, Expiring: make(map[int]int64)}
	err := l.withSession(ctx, userID, func(s *session) error {
		stats.UserID = s.userID
		stats.Balance = s.book.balance
		holds, err := s.scope.Holds(s.userID)
		if err != nil {
			return err
		}
		stats.Held = holds
		if stats.Available, err = l.available(s); err != nil {
			return err
		}
		for _, entry := range s.book.entries {
			switch entry.Type {
			case EntryEarned:
				stats.TotalEarned += entry.Amount
			case EntrySpent:
				stats.TotalSpent += entry.Amount
			case EntryWithdrawn:
				stats.TotalWithdrawn += entry.Amount
			case EntryExpired:
				stats.TotalExpired += entry.Amount
			case EntryAdjustment:
				stats.NetAdjusted += entry.Signed()
			}
		}
		now := l.now()
		for _, days := range l.tables.Bonus().ExpirationWarningDays {
			stats.Expiring[days], _ = s.book.expiringBetween(now, now.AddDate(0, 0, days))
		}
		for _, lot := range s.book.ordered() {
			if lot.ExpiresAt != nil && lot.ExpiresAt.After(now) {
				at := *lot.ExpiresAt
				stats.NextExpiry = &at
				break
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// History returns the user's latest entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if l.store == nil {
		return nil, errNilStore
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return l.store.History(ctx, userID, limit)
}

// Audit recomputes the user's balance from the entries and compares it with
// the stored projection. With repair set, drift is corrected in place.
func (l *Ledger) Audit(ctx context.Context, userID string, repair bool) (AuditReport, error) {
	var report AuditReport
	err := l.withSession(ctx, userID, func(s *session) error {
		projected, err := s.scope.Projection(s.userID)
		if err != nil {
			return err
		}
		report = AuditReport{
			UserID:    s.userID,
			Projected: projected,
			Folded:    s.book.balance,
			Drift:     projected - s.book.balance,
		}
		if report.Drift != 0 && repair {
			if err := s.scope.SetProjection(s.userID, s.book.balance); err != nil {
				return err
			}
			report.Repaired = true
		}
		return nil
	})
	return report, err
}
