package bonus

import (
	"fmt"
	"sort"
	"time"

	ledgererrors "partnerledger/core/errors"
)

// book is the replayed state of a user's ledger.
type book struct {
	entries []Transaction
	lots    []*Lot
	byID    map[string]*Lot
	balance int64
}

// replay folds entries in Seq order, assigning every debit to lots by
// earliest expiry (non-expiring lots last, ties by Seq) and every EXPIRED
// entry to the lot it references.
func replay(entries []Transaction) (*book, error) {
	b := &book{entries: entries, byID: make(map[string]*Lot)}
	for _, entry := range entries {
		switch {
		case entry.Type == EntryEarned || (entry.Type == EntryAdjustment && entry.Direction >= 0):
			lot := &Lot{
				EntryID:   entry.ID,
				Amount:    entry.Amount,
				Remaining: entry.Amount,
				ExpiresAt: entry.ExpiresAt,
				Seq:       entry.Seq,
				CreatedAt: entry.CreatedAt,
			}
			if entry.Type == EntryAdjustment {
				lot.ExpiresAt = nil
			}
			b.lots = append(b.lots, lot)
			b.byID[entry.ID] = lot
		case entry.Type == EntryExpired:
			lot, ok := b.byID[entry.ReferenceID]
			if !ok || lot.Remaining < entry.Amount {
				return nil, &ledgererrors.InvariantViolationError{
					Detail: fmt.Sprintf("expiry %s does not match lot %s", entry.ID, entry.ReferenceID),
				}
			}
			lot.Remaining -= entry.Amount
		default:
			if err := b.consume(entry.Amount); err != nil {
				return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
			}
		}
		b.balance += entry.Signed()
	}
	return b, nil
}

// consume draws amount from open lots in FIFO-by-expiry order.
func (b *book) consume(amount int64) error {
	for _, lot := range b.ordered() {
		if amount == 0 {
			break
		}
		take := lot.Remaining
		if take > amount {
			take = amount
		}
		lot.Remaining -= take
		amount -= take
	}
	if amount > 0 {
		return &ledgererrors.InvariantViolationError{Detail: fmt.Sprintf("debit exceeds open lots by %d", amount)}
	}
	return nil
}

func (b *book) ordered() []*Lot {
	open := make([]*Lot, 0, len(b.lots))
	for _, lot := range b.lots {
		if lot.Remaining > 0 {
			open = append(open, lot)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, c := open[i], open[j]
		switch {
		case a.ExpiresAt == nil && c.ExpiresAt == nil:
			return a.Seq < c.Seq
		case a.ExpiresAt == nil:
			return false
		case c.ExpiresAt == nil:
			return true
		case !a.ExpiresAt.Equal(*c.ExpiresAt):
			return a.ExpiresAt.Before(*c.ExpiresAt)
		}
		return a.Seq < c.Seq
	})
	return open
}

// expiredAt lists open lots whose expiry is at or before asOf.
func (b *book) expiredAt(asOf time.Time) []*Lot {
	var out []*Lot
	for _, lot := range b.ordered() {
		if lot.ExpiresAt != nil && !lot.ExpiresAt.After(asOf) {
			out = append(out, lot)
		}
	}
	return out
}

// syncLots reports every lot whose remainder differs between two books.
func syncLots(tracker LotTracker, prev, next *book) error {
	for _, lot := range next.lots {
		if old, ok := prev.byID[lot.EntryID]; ok && old.Remaining == lot.Remaining {
			continue
		}
		if err := tracker.SetLotRemaining(lot.EntryID, lot.Remaining); err != nil {
			return err
		}
	}
	return nil
}

// lotExpiry is the part of an expired lot that may actually expire.
type lotExpiry struct {
	lot    *Lot
	amount int64
}

// expirable lists the expired lots at asOf with the amount each may lose
// while still covering held funds. Holds are covered by unexpired lots
// first; the shortfall is kept back from the latest expiring of the expired
// lots, which a later WITHDRAWN entry consumes first.
func (b *book) expirable(asOf time.Time, held int64) []lotExpiry {
	expired := b.expiredAt(asOf)
	reserve := held
	for _, lot := range b.ordered() {
		if lot.ExpiresAt == nil || lot.ExpiresAt.After(asOf) {
			reserve -= lot.Remaining
		}
	}
	out := make([]lotExpiry, len(expired))
	for i := len(expired) - 1; i >= 0; i-- {
		amount := expired[i].Remaining
		if reserve > 0 {
			keep := min(reserve, amount)
			amount -= keep
			reserve -= keep
		}
		out[i] = lotExpiry{lot: expired[i], amount: amount}
	}
	return out
}

// expiringBetween sums open lots expiring within [from, to] and reports the
// earliest expiry among them.
func (b *book) expiringBetween(from, to time.Time) (int64, *time.Time) {
	var (
		total    int64
		earliest *time.Time
	)
	for _, lot := range b.ordered() {
		if lot.ExpiresAt == nil || lot.ExpiresAt.Before(from) || lot.ExpiresAt.After(to) {
			continue
		}
		total += lot.Remaining
		if earliest == nil || lot.ExpiresAt.Before(*earliest) {
			at := *lot.ExpiresAt
			earliest = &at
		}
	}
	return total, earliest
}

func (b *book) find(typ EntryType, source Source, referenceID string) *Transaction {
	for i := range b.entries {
		e := &b.entries[i]
		if e.Type == typ && e.Source == source && e.ReferenceID == referenceID {
			return e
		}
	}
	return nil
}
