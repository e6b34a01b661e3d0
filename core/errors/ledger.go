package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrInsufficientBalance    = stderrors.New("ledger: insufficient balance")
	ErrBelowMinimum           = stderrors.New("ledger: amount below minimum")
	ErrAlreadyGranted         = stderrors.New("ledger: activity bonus already granted")
	ErrConfiguration          = stderrors.New("ledger: configuration error")
	ErrInvalidStateTransition = stderrors.New("ledger: invalid state transition")
	ErrInvariantViolation     = stderrors.New("ledger: invariant violation")
)

// InsufficientBalanceError is returned when a debit exceeds the funds the user
// can currently dispose of.
type InsufficientBalanceError struct {
	UserID    string
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance for user %s: requested %d, available %d", e.UserID, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// BelowMinimumError reports a withdrawal under the configured floor.
type BelowMinimumError struct {
	Requested int64
	Minimum   int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("ledger: amount %d below minimum %d", e.Requested, e.Minimum)
}

func (e *BelowMinimumError) Is(target error) bool { return target == ErrBelowMinimum }

// AlreadyGrantedError is returned for a second grant of a one-time activity.
type AlreadyGrantedError struct {
	UserID   string
	Activity string
}

func (e *AlreadyGrantedError) Error() string {
	return fmt.Sprintf("ledger: activity %s already granted to user %s", e.Activity, e.UserID)
}

func (e *AlreadyGrantedError) Is(target error) bool { return target == ErrAlreadyGranted }

// ConfigurationError signals a lookup outside the configured rate tables.
type ConfigurationError struct {
	Table string
	Key   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ledger: no %s entry for %q", e.Table, e.Key)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InvalidStateTransitionError is returned when a workflow transition is not
// permitted from the record's current status.
type InvalidStateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("ledger: %s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// InvariantViolationError marks data that should be impossible, such as a
// cycle in the referral chain. Callers must not retry these.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return "ledger: invariant violation: " + e.Detail
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

// Kind returns a stable machine readable name for the error family, or an
// empty string when err is not a ledger error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case stderrors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case stderrors.Is(err, ErrAlreadyGranted):
		return "already_granted"
	case stderrors.Is(err, ErrConfiguration):
		return "configuration"
	case stderrors.Is(err, ErrInvalidStateTransition):
		return "invalid_state_transition"
	case stderrors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	default:
		return ""
	}
}
