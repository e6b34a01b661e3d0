package bonus

import (
	"context"
	"time"

	"partnerledger/native/rates"
)

// Scope is a user's exclusive ledger view. Implementations must hold a lock
// on the user's ledger (for SQL stores a SELECT ... FOR UPDATE on the
// account row) for the lifetime of the scope and commit atomically.
type Scope interface {
	// Entries returns every entry of the user in Seq order.
	Entries(userID string) ([]Transaction, error)
	// Append assigns the next Seq, stores the entry and rewrites the balance
	// projection to balanceAfter.
	Append(entry *Transaction, balanceAfter int64) error
	// Holds is the sum of open withdrawal requests of the user.
	Holds(userID string) (int64, error)
	ActivityGranted(userID string, activity rates.ActivityType) (bool, error)
	RecordActivity(grant ActivityGrant) error
	Projection(userID string) (int64, error)
	SetProjection(userID string, balance int64) error
}

// LotTracker is implemented by scopes that keep each lot's open remainder
// next to its entry so cross-user queries can skip consumed lots.
type LotTracker interface {
	SetLotRemaining(entryID string, remaining int64) error
}

// Store opens user scopes and answers cross-user queries.
type Store interface {
	WithUser(ctx context.Context, userID string, fn func(Scope) error) error
	// UsersWithOpenLots lists users holding earnings with an open remainder
	// that expire within [from, to].
	UsersWithOpenLots(ctx context.Context, from, to time.Time) ([]string, error)
	// History returns the latest entries of a user, newest first.
	History(ctx context.Context, userID string, limit int) ([]Transaction, error)
}
