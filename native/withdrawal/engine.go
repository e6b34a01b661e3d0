package withdrawal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/core/events"
	"partnerledger/native/bonus"
	"partnerledger/native/common"
	"partnerledger/native/rates"
)

// Module names checked against the pause view.
const (
	ModuleWithdrawals = "withdrawals"
	ModulePayouts     = "payouts"
)

var (
	ErrNotFound       = errors.New("withdrawal: not found")
	ErrInvalidAmount  = errors.New("withdrawal: amount must be positive")
	ErrInvalidUser    = errors.New("withdrawal: user id required")
	ErrReasonRequired = errors.New("withdrawal: rejection reason required")
	errNilState       = errors.New("withdrawal engine: state not configured")
	errNilLedger      = errors.New("withdrawal engine: bonus ledger not configured")
)

// Scope extends the bonus ledger scope with withdrawal records so requests
// and ledger entries commit together.
type Scope interface {
	bonus.Scope
	Withdrawal(id string) (*Request, error)
	PutWithdrawal(req *Request) error
}

// Store opens user scopes and serves unlocked reads.
type Store interface {
	WithUser(ctx context.Context, userID string, fn func(Scope) error) error
	Withdrawal(ctx context.Context, id string) (*Request, error)
	ListWithdrawals(ctx context.Context, filter Filter) ([]*Request, error)
}

// Engine quotes tax and drives the withdrawal state machine.
type Engine struct {
	state   Store
	ledger  *bonus.Ledger
	tables  *rates.Tables
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() time.Time
	newID   func() string
}

// NewEngine creates a withdrawal engine bound to the rate tables.
func NewEngine(tables *rates.Tables) *Engine {
	return &Engine{
		tables:  tables,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
		newID:   uuid.NewString,
	}
}

// SetState configures the persistence backend.
func (e *Engine) SetState(state Store) { e.state = state }

// SetLedger configures the bonus ledger debited on completion.
func (e *Engine) SetLedger(ledger *bonus.Ledger) { e.ledger = ledger }

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

// Quote computes the tax withheld from amount for the tax status.
func (e *Engine) Quote(amount int64, status rates.TaxStatus) (TaxQuote, error) {
	if amount <= 0 {
		return TaxQuote{}, ErrInvalidAmount
	}
	bps, err := e.tables.TaxRate(status)
	if err != nil {
		return TaxQuote{}, err
	}
	tax := rates.ApplyBps(amount, bps)
	if tax > amount {
		tax = amount
	}
	return TaxQuote{
		Amount:     amount,
		TaxStatus:  status,
		TaxRateBps: bps,
		TaxAmount:  tax,
		NetAmount:  amount - tax,
	}, nil
}

// SetPauses installs the operator pause switches. New requests are refused
// while "withdrawals" is paused and payouts may not start while "payouts" is.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Create opens a PENDING withdrawal. The amount must meet the configured
// minimum and fit within the available balance; it is held from then on.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if err := common.Guard(e.pauses, ModuleWithdrawals); err != nil {
		return nil, err
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return nil, ErrInvalidUser
	}
	if req.PaymentDetails == nil {
		return nil, ErrPaymentRequired
	}
	if err := req.PaymentDetails.Validate(); err != nil {
		return nil, err
	}
	quote, err := e.Quote(req.Amount, req.TaxStatus)
	if err != nil {
		return nil, err
	}
	if minimum := e.tables.Bonus().MinWithdrawal; req.Amount < minimum {
		return nil, &ledgererrors.BelowMinimumError{Requested: req.Amount, Minimum: minimum}
	}

	now := e.now()
	created := &Request{
		ID:         e.newID(),
		UserID:     req.UserID,
		Amount:     quote.Amount,
		TaxStatus:  quote.TaxStatus,
		TaxRateBps: quote.TaxRateBps,
		TaxAmount:  quote.TaxAmount,
		NetAmount:  quote.NetAmount,
		Payment:    req.PaymentDetails.Masked(),
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	unlock := e.ledger.LockUser(req.UserID)
	defer unlock()
	err = e.state.WithUser(ctx, req.UserID, func(scope Scope) error {
		_, err := e.ledger.InScope(scope, req.UserID, func(view *bonus.ScopedLedger) error {
			available, err := view.Available()
			if err != nil {
				return err
			}
			if created.Amount > available {
				return &ledgererrors.InsufficientBalanceError{UserID: req.UserID, Requested: created.Amount, Available: available}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return scope.PutWithdrawal(created)
	})
	if err != nil {
		return nil, err
	}
	e.emitTransition(created, "", "", "")
	return created.Clone(), nil
}

// Get returns a single request.
func (e *Engine) Get(ctx context.Context, id string) (*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.Withdrawal(ctx, id)
}

// List returns requests matching the filter.
func (e *Engine) List(ctx context.Context, filter Filter) ([]*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.ListWithdrawals(ctx, filter)
}

// Approve moves a PENDING request to APPROVED.
func (e *Engine) Approve(ctx context.Context, id, actor string) (*Request, error) {
	return e.transition(ctx, id, StatusApproved, actor, "", func(_ Scope, r *Request, now time.Time) (func(), error) {
		r.ApprovedAt = &now
		r.ReviewedBy = actor
		return nil, nil
	})
}

// Reject moves a PENDING or APPROVED request to REJECTED, releasing the hold.
func (e *Engine) Reject(ctx context.Context, id, actor, reason string) (*Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return e.transition(ctx, id, StatusRejected, actor, reason, func(_ Scope, r *Request, now time.Time) (func(), error) {
		r.RejectedAt = &now
		r.ReviewedBy = actor
		r.RejectionReason = reason
		return nil, nil
	})
}

// StartProcessing moves an APPROVED request to PROCESSING.
func (e *Engine) StartProcessing(ctx context.Context, id, payoutRef string) (*Request, error) {
	if err := common.Guard(e.pauses, ModulePayouts); err != nil {
		return nil, err
	}
	return e.transition(ctx, id, StatusProcessing, "payout", "", func(_ Scope, r *Request, now time.Time) (func(), error) {
		r.ProcessingAt = &now
		if payoutRef != "" {
			r.PayoutRef = payoutRef
		}
		return nil, nil
	})
}

// Complete moves a PROCESSING request to COMPLETED and appends the matching
// WITHDRAWN ledger entry in the same scope.
func (e *Engine) Complete(ctx context.Context, id string) (*Request, error) {
	return e.transition(ctx, id, StatusCompleted, "payout", "", func(scope Scope, r *Request, now time.Time) (func(), error) {
		r.CompletedAt = &now
		// Release the hold first so the debit sees the funds as available.
		if err := scope.PutWithdrawal(r); err != nil {
			return nil, err
		}
		return e.ledger.InScope(scope, r.UserID, func(view *bonus.ScopedLedger) error {
			entry, err := view.Withdraw(r.Amount, "withdrawal:"+r.ID)
			if err != nil {
				return err
			}
			r.LedgerEntryID = entry.ID
			return nil
		})
	})
}

type mutation func(scope Scope, r *Request, now time.Time) (func(), error)

func (e *Engine) transition(ctx context.Context, id string, next Status, actor, reason string, mutate mutation) (*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	peek, err := e.state.Withdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := e.ledger.LockUser(peek.UserID)
	defer unlock()

	var (
		from    Status
		updated *Request
		after   func()
	)
	err = e.state.WithUser(ctx, peek.UserID, func(scope Scope) error {
		current, err := scope.Withdrawal(id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(current.ID, current.Status, next); err != nil {
			return err
		}
		now := e.now()
		from = current.Status
		updated = current.Clone()
		updated.Status = next
		updated.UpdatedAt = now
		if after, err = mutate(scope, updated, now); err != nil {
			return err
		}
		return scope.PutWithdrawal(updated)
	})
	if err != nil {
		return nil, err
	}
	if after != nil {
		after()
	}
	e.emitTransition(updated, from, actor, reason)
	return updated.Clone(), nil
}

func (e *Engine) emitTransition(r *Request, from Status, actor, reason string) {
	e.emitter.Emit(events.WithdrawalTransitioned{
		WithdrawalID: r.ID,
		UserID:       r.UserID,
		From:         string(from),
		To:           string(r.Status),
		Amount:       r.Amount,
		TaxAmount:    r.TaxAmount,
		Actor:        actor,
		Reason:       reason,
		At:           r.UpdatedAt,
	})
}
