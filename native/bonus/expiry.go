package bonus

import (
	"context"
	"time"

	"partnerledger/core/events"
)

// Expire appends one EXPIRED entry per lot whose expiry is at or before asOf
// and that still has a remainder. Funds held by open withdrawals never
// expire. Running it again for the same asOf is a no-op.
func (l *Ledger) Expire(ctx context.Context, asOf time.Time) (ExpirySummary, error) {
	var summary ExpirySummary
	if l.store == nil {
		return summary, errNilStore
	}
	asOf = asOf.UTC()
	users, err := l.store.UsersWithOpenLots(ctx, time.Time{}, asOf)
	if err != nil {
		return summary, err
	}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		var (
			entries int
			total   int64
		)
		err := l.withSession(ctx, userID, func(s *session) error {
			held, err := s.scope.Holds(s.userID)
			if err != nil {
				return err
			}
			for _, exp := range s.book.expirable(asOf, held) {
				if exp.amount <= 0 {
					continue
				}
				entry := &Transaction{Type: EntryExpired, Amount: exp.amount, ReferenceID: exp.lot.EntryID}
				if err := l.appendEntry(s, entry); err != nil {
					return err
				}
				entries++
				total += entry.Amount
			}
			return nil
		})
		if err != nil {
			return summary, err
		}
		if entries > 0 {
			summary.Users++
			summary.Entries += entries
			summary.Total += total
		}
	}
	return summary, nil
}

// ExpiringWithin sums the open lots of the user expiring between now and
// now+days.
func (l *Ledger) ExpiringWithin(ctx context.Context, userID string, days int) (int64, error) {
	var total int64
	err := l.withSession(ctx, userID, func(s *session) error {
		now := l.now()
		total, _ = s.book.expiringBetween(now, now.AddDate(0, 0, days))
		return nil
	})
	return total, err
}

// Warnings lists, for every configured warning window, the users with bonus
// expiring inside it. A BonusExpiryWarning event is emitted per warning.
func (l *Ledger) Warnings(ctx context.Context, asOf time.Time) ([]Warning, error) {
	if l.store == nil {
		return nil, errNilStore
	}
	windows := l.tables.Bonus().ExpirationWarningDays
	if len(windows) == 0 {
		return nil, nil
	}
	asOf = asOf.UTC()
	widest := windows[0]
	for _, days := range windows {
		if days > widest {
			widest = days
		}
	}
	users, err := l.store.UsersWithOpenLots(ctx, asOf, asOf.AddDate(0, 0, widest))
	if err != nil {
		return nil, err
	}
	var out []Warning
	for _, userID := range users {
		err := l.withSession(ctx, userID, func(s *session) error {
			for _, days := range windows {
				amount, earliest := s.book.expiringBetween(asOf, asOf.AddDate(0, 0, days))
				if amount <= 0 || earliest == nil {
					continue
				}
				out = append(out, Warning{UserID: userID, WindowDays: days, Amount: amount, EarliestExpiry: *earliest})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	now := l.now()
	for _, w := range out {
		l.emitter.Emit(events.BonusExpiryWarning{
			UserID:         w.UserID,
			WindowDays:     w.WindowDays,
			Amount:         w.Amount,
			EarliestExpiry: w.EarliestExpiry,
			At:             now,
		})
	}
	return out, nil
}
