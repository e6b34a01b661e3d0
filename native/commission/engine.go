package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"partnerledger/core/events"
	"partnerledger/native/bonus"
	"partnerledger/native/rates"
)

var (
	ErrNotFound           = errors.New("commission: not found")
	ErrInvalidAmount      = errors.New("commission: transaction amount must be positive")
	ErrInvalidTransaction = errors.New("commission: transaction id and payer required")
	ErrStaleStatus        = errors.New("commission: status changed concurrently")
	errNilState           = errors.New("commission engine: state not configured")
	errNilUpline          = errors.New("commission engine: upline resolver not configured")
	errNilGranter         = errors.New("commission engine: bonus ledger not configured")
)

// State is the persistence contract of the commission engine.
type State interface {
	SourceTransaction(ctx context.Context, id string) (*SourceTransaction, bool, error)
	CommissionsForSource(ctx context.Context, sourceTransactionID string) ([]*Commission, error)
	// RecordSource stores the transaction and its commissions atomically.
	RecordSource(ctx context.Context, tx SourceTransaction, commissions []*Commission) error
	Commission(ctx context.Context, id string) (*Commission, error)
	// UpdateCommission persists c only when the stored status still equals
	// expected, returning ErrStaleStatus otherwise.
	UpdateCommission(ctx context.Context, c *Commission, expected Status) error
	ListCommissions(ctx context.Context, filter Filter) ([]*Commission, error)
}

// UplineResolver walks the referral chain above a user.
type UplineResolver interface {
	Upline(ctx context.Context, userID string, maxDepth int) ([]string, error)
}

// BonusGranter credits settled commissions to the partner's bonus ledger.
type BonusGranter interface {
	GrantOnce(ctx context.Context, req bonus.GrantRequest) (*bonus.Transaction, error)
}

// Engine computes multi-level commissions and drives their lifecycle.
type Engine struct {
	state   State
	upline  UplineResolver
	granter BonusGranter
	tables  *rates.Tables
	emitter events.Emitter
	nowFn   func() time.Time
	newID   func() string
}

// NewEngine creates a commission engine bound to the provided rate tables.
func NewEngine(tables *rates.Tables) *Engine {
	return &Engine{
		tables:  tables,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
		newID:   uuid.NewString,
	}
}

// SetState configures the persistence backend.
func (e *Engine) SetState(state State) { e.state = state }

// SetUpline configures the referral chain resolver.
func (e *Engine) SetUpline(upline UplineResolver) { e.upline = upline }

// SetBonusGranter configures the ledger credited on settlement.
func (e *Engine) SetBonusGranter(granter BonusGranter) { e.granter = granter }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

func (e *Engine) now() time.Time { return e.nowFn().UTC() }

// Calculate creates PENDING commissions for every partner up to the maximum
// depth above the payer. Each level is computed from the original amount and
// rounded half up independently; zero amounts are skipped. Calculation is
// idempotent per transaction id: a repeated call returns the stored rows.
func (e *Engine) Calculate(ctx context.Context, tx SourceTransaction) ([]*Commission, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.upline == nil {
		return nil, errNilUpline
	}
	tx.ID = strings.TrimSpace(tx.ID)
	tx.PayerID = strings.TrimSpace(tx.PayerID)
	if tx.ID == "" || tx.PayerID == "" {
		return nil, ErrInvalidTransaction
	}
	if tx.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, exists, err := e.state.SourceTransaction(ctx, tx.ID); err != nil {
		return nil, err
	} else if exists {
		return e.state.CommissionsForSource(ctx, tx.ID)
	}

	chain, err := e.upline.Upline(ctx, tx.PayerID, e.tables.MaxDepth())
	if err != nil {
		return nil, fmt.Errorf("commission: resolve upline of %s: %w", tx.PayerID, err)
	}
	now := e.now()
	if tx.OccurredAt.IsZero() {
		tx.OccurredAt = now
	}
	rows := make([]*Commission, 0, len(chain))
	for i, partnerID := range chain {
		depth := i + 1
		bps, err := e.tables.CommissionRate(depth)
		if err != nil {
			return nil, err
		}
		amount := rates.ApplyBps(tx.Amount, bps)
		if amount == 0 {
			continue
		}
		rows = append(rows, &Commission{
			ID:                  e.newID(),
			PartnerID:           partnerID,
			SourceUserID:        tx.PayerID,
			SourceTransactionID: tx.ID,
			Level:               depth,
			Amount:              amount,
			Status:              StatusPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}
	if err := e.state.RecordSource(ctx, tx, rows); err != nil {
		// A concurrent calculation for the same transaction won the insert.
		if _, exists, lookupErr := e.state.SourceTransaction(ctx, tx.ID); lookupErr == nil && exists {
			return e.state.CommissionsForSource(ctx, tx.ID)
		}
		return nil, err
	}
	for _, row := range rows {
		e.emitter.Emit(events.CommissionCreated{
			CommissionID:        row.ID,
			PartnerID:           row.PartnerID,
			SourceUserID:        row.SourceUserID,
			SourceTransactionID: row.SourceTransactionID,
			Level:               row.Level,
			Amount:              row.Amount,
			CreatedAt:           row.CreatedAt,
		})
	}
	return rows, nil
}

// Get returns a single commission.
func (e *Engine) Get(ctx context.Context, id string) (*Commission, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.Commission(ctx, id)
}

// List returns commissions matching the filter.
func (e *Engine) List(ctx context.Context, filter Filter) ([]*Commission, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.ListCommissions(ctx, filter)
}

// Approve moves a PENDING commission to APPROVED.
func (e *Engine) Approve(ctx context.Context, id, actor string) (*Commission, error) {
	return e.transition(ctx, id, StatusApproved, actor, "", func(c *Commission, now time.Time) {
		c.ApprovedAt = &now
		c.ApprovedBy = actor
	})
}

// Cancel moves a PENDING or APPROVED commission to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, id, actor, reason string) (*Commission, error) {
	reason = strings.TrimSpace(reason)
	return e.transition(ctx, id, StatusCancelled, actor, reason, func(c *Commission, now time.Time) {
		c.CancelledAt = &now
		c.CancelReason = reason
	})
}

// MarkPaid moves an APPROVED commission to PAID without touching the bonus
// ledger. Use Settle when the payout is credited as bonus.
func (e *Engine) MarkPaid(ctx context.Context, id, payoutRef string) (*Commission, error) {
	return e.transition(ctx, id, StatusPaid, "payout", "", func(c *Commission, now time.Time) {
		c.PaidAt = &now
		c.PayoutRef = payoutRef
	})
}

// BonusPayoutPrefix marks the payout reference of commissions paid into the
// bonus ledger.
const BonusPayoutPrefix = "bonus:"

// Settle pays an APPROVED commission into the partner's bonus ledger as an
// EARNED entry referencing the commission, then records the entry on the
// commission. A PAID commission without a recorded entry is credited again;
// the grant is idempotent on the commission id.
func (e *Engine) Settle(ctx context.Context, id string) (*Commission, error) {
	if e.granter == nil {
		return nil, errNilGranter
	}
	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPaid {
		if current, err = e.MarkPaid(ctx, id, BonusPayoutPrefix+id); err != nil {
			return nil, err
		}
	}
	if current.LedgerEntryID != "" {
		return current, nil
	}
	entry, err := e.granter.GrantOnce(ctx, bonus.GrantRequest{
		UserID:      current.PartnerID,
		Amount:      current.Amount,
		Source:      bonus.SourcePartner,
		ReferenceID: current.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("commission: credit %s: %w", id, err)
	}
	credited := current.Clone()
	credited.LedgerEntryID = entry.ID
	if err := e.state.UpdateCommission(ctx, credited, StatusPaid); err != nil {
		return nil, fmt.Errorf("commission: record credit %s: %w", id, err)
	}
	return credited, nil
}

// ApproveAllPending approves every PENDING commission created before the
// cut-off and returns the number approved.
func (e *Engine) ApproveAllPending(ctx context.Context, before time.Time, actor string) (int, error) {
	pending, err := e.List(ctx, Filter{Statuses: []Status{StatusPending}, CreatedBefore: &before})
	if err != nil {
		return 0, err
	}
	approved := 0
	for _, c := range pending {
		if _, err := e.Approve(ctx, c.ID, actor); err != nil {
			if errors.Is(err, ErrStaleStatus) {
				continue
			}
			return approved, err
		}
		approved++
	}
	return approved, nil
}

// SettleApproved first finishes commissions left PAID by an interrupted
// credit, then settles up to limit APPROVED commissions (all when limit is
// not positive). It returns the number settled.
func (e *Engine) SettleApproved(ctx context.Context, limit int) (int, error) {
	stranded, err := e.List(ctx, Filter{Statuses: []Status{StatusPaid}, Uncredited: true})
	if err != nil {
		return 0, err
	}
	approved, err := e.List(ctx, Filter{Statuses: []Status{StatusApproved}, Limit: limit})
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, c := range append(stranded, approved...) {
		if _, err := e.Settle(ctx, c.ID); err != nil {
			if errors.Is(err, ErrStaleStatus) {
				continue
			}
			return settled, err
		}
		settled++
	}
	return settled, nil
}

func (e *Engine) transition(ctx context.Context, id string, next Status, actor, reason string, mutate func(*Commission, time.Time)) (*Commission, error) {
	if e.state == nil {
		return nil, errNilState
	}
	current, err := e.state.Commission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(current.ID, current.Status, next); err != nil {
		return nil, err
	}
	now := e.now()
	updated := current.Clone()
	updated.Status = next
	updated.UpdatedAt = now
	mutate(updated, now)
	if err := e.state.UpdateCommission(ctx, updated, current.Status); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.CommissionTransitioned{
		CommissionID: updated.ID,
		PartnerID:    updated.PartnerID,
		From:         string(current.Status),
		To:           string(next),
		Actor:        actor,
		Reason:       reason,
		Amount:       updated.Amount,
		At:           now,
	})
	return updated, nil
}
